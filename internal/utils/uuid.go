package utils

import (
	"regexp"

	"github.com/google/uuid"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// GenerateUUID returns a random RFC 4122 version 4 identifier
func GenerateUUID() string {
	return uuid.New().String()
}

// IsValidUUID reports whether s is a canonical lower-case RFC 4122 UUID
func IsValidUUID(s string) bool {
	return uuidPattern.MatchString(s)
}
