package core

import "github.com/google/uuid"

// NewID generates a new random (UUID v4) identifier.
func NewID() string {
	return uuid.New().String()
}
