// Package uuid generates the time-ordered identifiers used as primary keys.
package uuid

import (
	guuid "github.com/google/uuid"
)

// NewV7 returns a new UUID v7 string. v7 ids sort by creation time, which keeps
// the SQLite primary key indexes append-mostly.
func NewV7() string {
	id, err := guuid.NewV7()
	if err != nil {
		// Only fails when the random source fails; fall back to v4.
		return guuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a UUID of any version.
func Valid(s string) bool {
	_, err := guuid.Parse(s)
	return err == nil
}
