// Package auth is the identity source for the registry: signup issues an
// opaque bearer token whose SHA-256 is the only thing stored, and resolution
// maps a presented token back to a user id and tier.
package auth

import "time"

// User is an account. The raw access token is never persisted; TokenHash is
// the hex SHA-256 of it.
type User struct {
	ID        string
	Email     string
	TokenHash string
	Tier      string
	CreatedAt time.Time
}

// Principal is the authenticated identity attached to request contexts.
type Principal struct {
	UserID string
	Email  string
	Tier   string
}

// DefaultTier is assigned at signup.
const DefaultTier = "free"
