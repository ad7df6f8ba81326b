package models

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7 string. Ids sort in creation order, which
// gives messages created in the same clock tick a stable order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
