//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"dm-relay/errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(username, hashedPassword string) (string, error)
	GetUserByName(username string) (User, error)
	GetUserByID(id string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the domain-friendly representation of a user in the repository layer.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type userRecord struct {
	ID           string `cbor:"id"`
	Username     string `cbor:"username"`
	PasswordHash string `cbor:"password_hash"`
	CreatedAt    int64  `cbor:"created_at"`
}

func userKey(username string) []byte { return []byte("user:" + username) }

// uidKey is a secondary index: user id -> username. Connections announce
// themselves by id, so the gateway needs the reverse lookup.
func uidKey(id string) []byte { return []byte("uid:" + id) }

// CreateUser persists the user and returns the newly generated user ID.
// The caller hashes the password; this layer never sees it in plain text.
func (u UserRepository) CreateUser(username, hashedPassword string) (string, error) {
	newID := uuid.NewString()
	record := userRecord{
		ID:           newID,
		Username:     username,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().Unix(),
	}

	data, err := cbor.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err = txn.Get(userKey(username)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(userKey(username), data); err != nil {
			return err
		}
		return txn.Set(uidKey(newID), []byte(username))
	})
	if err != nil {
		return "", err
	}

	return newID, nil
}

// GetUserByName retrieves a user from Badger and converts it to the
// repository.User struct.
func (u UserRepository) GetUserByName(username string) (User, error) {
	var record userRecord

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	return toUserStruct(record), nil
}

// GetUserByID resolves the id index first, then loads the user record.
func (u UserRepository) GetUserByID(id string) (User, error) {
	var record userRecord

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(uidKey(id))
		if err != nil {
			return err
		}
		var username []byte
		if err := item.Value(func(val []byte) error {
			username = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err = txn.Get(userKey(string(username)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	return toUserStruct(record), nil
}

// DecodeUser decodes a stored user value for inspection tools.
func DecodeUser(value []byte) (User, error) {
	var record userRecord
	if err := cbor.Unmarshal(value, &record); err != nil {
		return User{}, err
	}
	return toUserStruct(record), nil
}

func toUserStruct(record userRecord) User {
	return User{
		ID:           record.ID,
		Username:     record.Username,
		PasswordHash: record.PasswordHash,
		CreatedAt:    time.Unix(record.CreatedAt, 0).UTC(),
	}
}
