package model

import "time"

// User is an account able to hold and book seats.  Identity issuance
// is otherwise external to this service; the reservation core only
// ever sees the opaque user ID.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique, normalized to lower case.
//  PasswordHash – bcrypt hash of the password.
//  Role         – CUSTOMER or MANAGER.
//  IsActive     – soft-disable flag.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Roles stored in users.role.
const (
	RoleCustomer = "CUSTOMER"
	RoleManager  = "MANAGER"
)
