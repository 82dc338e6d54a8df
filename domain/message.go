// Package domain contains core concepts of the direct-message relay.
// This file defines the durable Message record.
// Records are written before any delivery attempt.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one direct message between two users.
type Message struct {
	ID          uuid.UUID // unique identifier
	SenderID    string
	RecipientID string
	Content     string
	CreatedAt   time.Time
	Delivered   bool
}

// ConversationKey returns the canonical key shared by both directions
// of a two-party conversation: the lexicographically smaller identity
// always comes first.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
