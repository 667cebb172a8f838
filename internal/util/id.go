package util

import "github.com/google/uuid"

// NewID returns a random document id, optionally prefixed.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
