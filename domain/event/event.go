// Package event defines the outbound events pushed to connected clients.
// Event names match the wire protocol verbatim.
package event

import (
	"dm-relay/domain"
)

type Event interface {
	Name() string
}

// PresenceChanged carries the full online-identity snapshot.
// Broadcast to all connections on every registration or disconnect.
type PresenceChanged struct {
	Online []string
}

func (PresenceChanged) Name() string { return "userList" }

// UserDisconnected is broadcast when a registered connection closes.
type UserDisconnected struct {
	UserID string
}

func (UserDisconnected) Name() string { return "userDisconnected" }

// MessageReceived is sent to the recipient on delivery or replay.
type MessageReceived struct {
	Message domain.Message
}

func (MessageReceived) Name() string { return "receiveMessage" }

// MessageSent acknowledges a send attempt back to the sender,
// regardless of whether immediate delivery happened.
type MessageSent struct {
	Message domain.Message
}

func (MessageSent) Name() string { return "messageSent" }

// UserTyping is a transient signal, never persisted.
type UserTyping struct {
	UserID string
}

func (UserTyping) Name() string { return "userTyping" }

// Error is sent to the originating connection on a protocol failure.
type Error struct {
	Reason string
}

func (Error) Name() string { return "error" }

// MessageError is sent to the sender when persistence fails.
type MessageError struct {
	Reason string
}

func (MessageError) Name() string { return "messageError" }
