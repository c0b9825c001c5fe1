// Package registry implements the content registration core: UUID issuance,
// fingerprint persistence, tier-gated registration and ownership checks.
package registry

import (
	"errors"
	"fmt"
	"time"
)

// Record is one registered artifact. Records are immutable after creation;
// the only mutation is cascade deletion via account removal.
type Record struct {
	ID           string    `json:"uuid"`
	Fingerprint  string    `json:"sha256"`
	Filename     string    `json:"filename"`
	Filepath     string    `json:"filepath,omitempty"`
	Filesize     int64     `json:"filesize"`
	OwnerID      string    `json:"-"`
	OwnerEmail   string    `json:"owner,omitempty"`
	License      string    `json:"license"`
	Tags         string    `json:"tags,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Auto         bool      `json:"auto_registered"`
	RegisteredAt time.Time `json:"registered_at"`
}

var (
	ErrNotFound       = errors.New("registry: not found")
	ErrInvalidInput   = errors.New("registry: title is required")
	ErrConflict       = errors.New("registry: identifier conflict")
	ErrUnknownLicense = errors.New("registry: unknown license")
)

// QuotaExceededError reports a denied registration together with the numeric
// limit so callers can display it.
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly limit reached (%d files)", e.Limit)
}

// LicenseCatalog maps license tags to display names. Built once at startup
// and passed into the service; never read from global state.
type LicenseCatalog map[string]string

// DefaultLicense is applied when a registration names no license.
const DefaultLicense = "Proprietary"

// DefaultLicenses is the shipped license catalog.
func DefaultLicenses() LicenseCatalog {
	return LicenseCatalog{
		"CC0-1.0":    "Public Domain (No Rights Reserved)",
		"CC-BY-4.0":  "Attribution 4.0 International",
		"MIT":        "MIT License",
		"Apache-2.0": "Apache License 2.0",
		"GPL-3.0":    "GNU General Public License v3.0",
		"Proprietary": "All Rights Reserved",
	}
}

// Knows reports whether the tag is part of the catalog.
func (c LicenseCatalog) Knows(tag string) bool {
	_, ok := c[tag]
	return ok
}
