package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/movaght/cinema-booking/internal/handler"
	"github.com/movaght/cinema-booking/internal/middleware"
	"github.com/movaght/cinema-booking/internal/model"
)

// Deps bundles the handlers the HTTP surface is built from.
type Deps struct {
	Auth      *handler.AuthHandler
	Showings  *handler.ShowingHandler
	Bookings  *handler.BookingHandler
	Manage    *handler.ManageHandler
	JWTSecret string
	// RateLimit is applied to the booking mutation endpoints when
	// non-nil; a nil value (e.g. Redis unavailable) disables it.
	RateLimit echo.MiddlewareFunc
}

// Register wires every route on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	// Health check for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	// Unauthenticated identity endpoints.
	auth := e.Group("/v1/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)

	// Public browse endpoints: showings and live seat maps are
	// readable without a session so guests can look before signing up.
	e.GET("/v1/showings", d.Showings.List)
	e.GET("/v1/showings/:id", d.Showings.Get)
	e.GET("/v1/showings/:id/seats", d.Showings.SeatMap)

	// Everything below requires a valid access token.
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(d.JWTSecret))
	v1.Use(middleware.RequireRole(model.RoleCustomer, model.RoleManager))

	v1.GET("/me", d.Auth.Me)
	v1.GET("/bookings", d.Bookings.ListMine)
	v1.GET("/bookings/:id", d.Bookings.Get)

	// Booking mutations take the rate limiter when configured.
	mutate := v1.Group("/bookings")
	if d.RateLimit != nil {
		mutate.Use(d.RateLimit)
	}
	mutate.POST("", d.Bookings.Reserve)
	mutate.POST("/hold", d.Bookings.Hold)
	mutate.POST("/:id/confirm", d.Bookings.Confirm)
	mutate.POST("/:id/cancel", d.Bookings.Cancel)

	// Manager-only setup endpoints.
	manage := e.Group("/v1/manage")
	manage.Use(middleware.JWTAuth(d.JWTSecret))
	manage.Use(middleware.RequireRole(model.RoleManager))
	manage.POST("/rooms", d.Manage.CreateRoom)
	manage.POST("/showings", d.Manage.CreateShowing)
	manage.POST("/showings/:id/cancel", d.Manage.CancelShowing)
}
