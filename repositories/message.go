//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"dm-relay/domain"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	Conversation(userA, userB string) ([]DiskMessage, error)
	Undelivered(recipient string) ([]DiskMessage, error)
	MarkDelivered(message DiskMessage) error
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID        uuid.UUID
	Sender    string
	Recipient string
	Content   string
	At        time.Time
	Delivered bool
}

// messageRecord is the CBOR shape stored in BadgerDB.
// Timestamps are kept as UnixNano so keys can be recomputed exactly.
type messageRecord struct {
	ID        string `cbor:"id"`
	Sender    string `cbor:"sender"`
	Recipient string `cbor:"recipient"`
	Content   string `cbor:"content"`
	At        int64  `cbor:"at"`
	Delivered bool   `cbor:"delivered"`
}

// messageKey formats the conversation key as "msg:{pair}:{timestamp_padded}:{uuid}" to:
//  1. Group both directions of a two-party conversation under one prefix.
//  2. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  3. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func messageKey(m DiskMessage) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		domain.ConversationKey(m.Sender, m.Recipient),
		m.At.UnixNano(),
		m.ID,
	))
}

// undeliveredKey indexes a record by recipient for deferred replay.
// The value is the primary message key, not a second copy of the record.
func undeliveredKey(m DiskMessage) []byte {
	return []byte(fmt.Sprintf("undelivered:%s:%019d:%s",
		m.Recipient,
		m.At.UnixNano(),
		m.ID,
	))
}

// StoreMessage persists a message and its undelivered index entry in a
// single transaction. Either both keys land or neither does: a record
// must never be partially visible.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	bytes, err := cbor.Marshal(fromDiskMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message), bytes); err != nil {
			return err
		}
		return txn.Set(undeliveredKey(message), messageKey(message))
	})
}

// Conversation retrieves all messages between two users using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted
// by time, oldest first. It stops once the configured limitMessages is reached.
func (m MessageRepository) Conversation(userA, userB string) ([]DiskMessage, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", domain.ConversationKey(userA, userB)))
	var byteMessages [][]byte

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return decodeAll(byteMessages)
}

// Undelivered retrieves every record addressed to the recipient that has
// not been marked delivered, oldest first. The index holds references,
// so each hit is resolved against the primary key inside the same view.
func (m MessageRepository) Undelivered(recipient string) ([]DiskMessage, error) {
	prefix := []byte(fmt.Sprintf("undelivered:%s:", recipient))
	var byteMessages [][]byte

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var primary []byte
			err := it.Item().Value(func(value []byte) error {
				primary = append([]byte(nil), value...)
				return nil
			})
			if err != nil {
				return err
			}

			item, err := txn.Get(primary)
			if err != nil {
				// Dangling index entry: skip rather than fail the whole replay.
				m.log.Warn("Undelivered index points at a missing record",
					"key", string(primary), "error", err)
				continue
			}
			err = item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return decodeAll(byteMessages)
}

// MarkDelivered flips the delivered flag on the stored record and drops
// the undelivered index entry, in one transaction.
func (m MessageRepository) MarkDelivered(message DiskMessage) error {
	message.Delivered = true
	bytes, err := cbor.Marshal(fromDiskMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message), bytes); err != nil {
			return err
		}
		return txn.Delete(undeliveredKey(message))
	})
}

// DecodeMessage decodes a stored message value. Inspection tools read
// raw Badger values and need the wire shape without the repository.
func DecodeMessage(value []byte) (DiskMessage, error) {
	var record messageRecord
	if err := cbor.Unmarshal(value, &record); err != nil {
		return DiskMessage{}, err
	}
	return toDiskMessage(record)
}

func decodeAll(byteMessages [][]byte) ([]DiskMessage, error) {
	var diskMessages []DiskMessage
	for _, b := range byteMessages {
		var record messageRecord
		if err := cbor.Unmarshal(b, &record); err != nil {
			return nil, err
		}
		message, err := toDiskMessage(record)
		if err != nil {
			return nil, err
		}
		diskMessages = append(diskMessages, message)
	}
	return diskMessages, nil
}

func fromDiskMessage(message DiskMessage) messageRecord {
	return messageRecord{
		ID:        message.ID.String(),
		Sender:    message.Sender,
		Recipient: message.Recipient,
		Content:   message.Content,
		At:        message.At.UnixNano(),
		Delivered: message.Delivered,
	}
}

func toDiskMessage(record messageRecord) (DiskMessage, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return DiskMessage{}, err
	}
	return DiskMessage{
		ID:        parsedID,
		Sender:    record.Sender,
		Recipient: record.Recipient,
		Content:   record.Content,
		At:        time.Unix(0, record.At).UTC(),
		Delivered: record.Delivered,
	}, nil
}
