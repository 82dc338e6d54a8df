// Package gateway terminates client WebSocket connections and drives the
// per-connection state machine between the wire protocol and the relay.
package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"dm-relay/domain"
	"dm-relay/domain/event"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Envelope is the single frame shape on the wire, inbound and outbound:
// an event name plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	eventRegister    = "register"
	eventSendMessage = "sendMessage"
	eventTyping      = "typing"
)

type SendMessagePayload struct {
	SenderID    string `json:"senderId" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	Content     string `json:"content" validate:"required"`
}

func (p SendMessagePayload) Validate() error { return validate.Struct(p) }

type TypingPayload struct {
	SenderID    string `json:"senderId" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
}

func (p TypingPayload) Validate() error { return validate.Struct(p) }

// wireMessage is the outbound shape shared by receiveMessage and the
// messageSent acknowledgment.
type wireMessage struct {
	MessageID string    `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type typingNotice struct {
	UserID string `json:"userId"`
}

func fromMessage(m domain.Message) wireMessage {
	return wireMessage{
		MessageID: m.ID.String(),
		SenderID:  m.SenderID,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}

// toWire turns a domain event into the frame sent to clients.
func toWire(e event.Event) ([]byte, error) {
	var data any
	switch evt := e.(type) {
	case event.PresenceChanged:
		online := evt.Online
		if online == nil {
			online = []string{}
		}
		data = online
	case event.UserDisconnected:
		data = evt.UserID
	case event.MessageReceived:
		data = fromMessage(evt.Message)
	case event.MessageSent:
		data = fromMessage(evt.Message)
	case event.UserTyping:
		data = typingNotice{UserID: evt.UserID}
	case event.Error:
		data = evt.Reason
	case event.MessageError:
		data = evt.Reason
	default:
		return nil, fmt.Errorf("event %q has no wire mapping", e.Name())
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: raw})
}
