// Package uuid provides local record ID generation and validation. Local IDs
// are UUID v4 strings: unique, generated at creation time, never reused.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new local record ID.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a well-formed local record ID.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Validate returns an error if the string is not a well-formed local record
// ID.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid local record ID: %q", s)
	}
	return nil
}
