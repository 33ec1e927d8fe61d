package models

import "time"

// UserRole represents the available roles.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleDriver UserRole = "driver"
)

// Profile represents a driver or admin account stored in the profiles table.
// RangeStart/RangeEnd are a legacy numeric bucket assignment kept for display
// ordering only; no pricing or ID logic depends on them.
type Profile struct {
	ID         string     `db:"id" json:"id"`
	Username   string     `db:"username" json:"username"`
	PinHash    string     `db:"pin_hash" json:"-"`
	FullName   string     `db:"full_name" json:"full_name"`
	Role       UserRole   `db:"role" json:"role"`
	RangeStart int        `db:"range_start" json:"range_start"`
	RangeEnd   int        `db:"range_end" json:"range_end"`
	Active     bool       `db:"active" json:"active"`
	LastLogin  *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
