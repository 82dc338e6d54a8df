package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"dm-relay/observability"
	"dm-relay/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// RelayService persists every message before any delivery attempt and
// forwards it to the recipient only if a presence lookup says they are
// online. Durability is the sole delivery guarantee: there is no retry.
type RelayService struct {
	log       *slog.Logger
	messages  repositories.IMessageRepository
	directory contract.IDirectory
	stats     *observability.Stats
}

func NewRelayService(log *slog.Logger, messages repositories.IMessageRepository,
	directory contract.IDirectory, stats *observability.Stats) *RelayService {
	return &RelayService{log: log, messages: messages, directory: directory, stats: stats}
}

// Send stores the record, then attempts immediate delivery.
// A persistence failure aborts the send: nothing was delivered and the
// record is not visible anywhere. A delivery failure is soft: the
// record stays stored and will surface in the recipient's next replay.
// The returned record is acknowledged back to the sender by the caller
// whether or not immediate delivery happened.
func (s *RelayService) Send(ctx context.Context, senderID, recipientID, content string) (domain.Message, error) {
	message := domain.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.messages.StoreMessage(toDiskMessage(message)); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	s.stats.MessageRelayed()

	if sink, online := s.directory.Lookup(recipientID); online {
		if err := sink.Consume(ctx, event.MessageReceived{Message: message}); err != nil {
			// Recipient went away between lookup and emit. Silent by
			// contract: the record is durable and replayable.
			s.log.Debug("Immediate delivery dropped",
				"recipient", recipientID, "message_id", message.ID, "error", err)
		} else if err := s.messages.MarkDelivered(toDiskMessage(message)); err != nil {
			// Worst case the record replays once more at the next
			// registration.
			s.log.Warn("Delivered message could not be marked delivered",
				"message_id", message.ID, "error", err)
		}
	}

	return message, nil
}

// Replay pushes every undelivered record for the identity to the given
// sink, oldest first, and marks each one delivered so the next
// registration does not replay it again.
func (s *RelayService) Replay(ctx context.Context, identity string, sink contract.EventSink) (int, error) {
	pending, err := s.messages.Undelivered(identity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	delivered := 0
	for _, dm := range pending {
		if err := sink.Consume(ctx, event.MessageReceived{Message: fromDiskMessage(dm)}); err != nil {
			// Connection gone mid-replay: the rest stays pending for
			// the next registration.
			s.log.Debug("Replay interrupted", "identity", identity, "delivered", delivered, "error", err)
			break
		}
		if err := s.messages.MarkDelivered(dm); err != nil {
			s.log.Warn("Replayed message could not be marked delivered",
				"message_id", dm.ID, "error", err)
		}
		s.stats.MessageReplayed()
		delivered++
	}
	return delivered, nil
}

// History returns all messages between two users, oldest first.
func (s *RelayService) History(userA, userB string) ([]domain.Message, error) {
	diskMessages, err := s.messages.Conversation(userA, userB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return lo.Map(diskMessages, func(item repositories.DiskMessage, _ int) domain.Message {
		return fromDiskMessage(item)
	}), nil
}

func toDiskMessage(message domain.Message) repositories.DiskMessage {
	return repositories.DiskMessage{
		ID:        message.ID,
		Sender:    message.SenderID,
		Recipient: message.RecipientID,
		Content:   message.Content,
		At:        message.CreatedAt,
		Delivered: message.Delivered,
	}
}

func fromDiskMessage(dm repositories.DiskMessage) domain.Message {
	return domain.Message{
		ID:          dm.ID,
		SenderID:    dm.Sender,
		RecipientID: dm.Recipient,
		Content:     dm.Content,
		CreatedAt:   dm.At,
		Delivered:   dm.Delivered,
	}
}
