package models

import "time"

// Credentials holds connection secrets for a unit. Password is plaintext in
// memory and sealed at rest.
type Credentials struct {
	UnitID    int64
	Username  string
	Password  string
	Port      int
	KeyPath   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const DefaultSSHPort = 22
