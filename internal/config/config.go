package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses duration-valued variables
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for
// time-based behaviour.
type Config struct {
	Env               string        // application environment (e.g. "dev", "prod")
	Port              string        // HTTP port to listen on
	DBUser            string        // database username
	DBPass            string        // database password (optional)
	DBHost            string        // database host address
	DBPort            string        // database port number
	DBName            string        // database name
	JWTSecret         string        // secret used to sign JWTs
	AccessTTLMin      int           // access token time-to-live in minutes
	BcryptCost        int           // bcrypt cost for password hashing
	AMQPURL           string        // broker connection URL (amqp://...)
	HoldTTL           time.Duration // how long a seat hold stays reserved before expiring
	SchedulerInterval time.Duration // how often the background maintenance loop runs
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:               must("APP_ENV"),                           // environment (dev/test/prod)
		Port:              must("APP_PORT"),                          // port to bind the HTTP server
		DBUser:            must("DB_USER"),                           // database user
		DBPass:            os.Getenv("DB_PASS"),                      // database password (empty allowed)
		DBHost:            must("DB_HOST"),                           // database host
		DBPort:            must("DB_PORT"),                           // database port
		DBName:            must("DB_NAME"),                           // database name
		JWTSecret:         must("JWT_SECRET"),                        // secret used for signing JWTs
		AccessTTLMin:      mustInt("ACCESS_TOKEN_TTL_MIN"),           // TTL for access tokens in minutes
		BcryptCost:        mustInt("BCRYPT_COST"),                    // bcrypt cost factor
		AMQPURL:           must("AMQP_URL"),                          // message broker URL
		HoldTTL:           durOr("HOLD_TTL", 5*time.Minute),          // seat hold lifetime
		SchedulerInterval: durOr("SCHEDULER_INTERVAL", 30*time.Second), // maintenance tick
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// durOr parses an optional duration variable (e.g. "5m", "90s"), falling
// back to the given default when unset.  A malformed value is fatal rather
// than silently shortened.
func durOr(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		log.Fatalf("invalid duration for %s: %q", key, s)
	}
	return d
}
