package workspace

import "github.com/google/uuid"

// NewUUID returns a random item id.
func NewUUID() string {
	return uuid.NewString()
}
