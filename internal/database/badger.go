package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

const (
	messagePrefix  = "msg:"
	userPrefix     = "user:"
	usernamePrefix = "username:"
)

// BadgerDB is an embedded single-node store. Messages are keyed as
// "msg:{unixnano padded}:{id padded}" so a forward prefix scan yields
// chronological order with id as tie-breaker.
type BadgerDB struct {
	db      *badger.DB
	msgSeq  *badger.Sequence
	userSeq *badger.Sequence

	mu     sync.Mutex
	lastAt time.Time
}

func NewBadgerDB(path string) (*BadgerDB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}

	store := &BadgerDB{db: db}
	if store.msgSeq, err = db.GetSequence([]byte("seq:messages"), 100); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open message sequence: %w", err)
	}
	if store.userSeq, err = db.GetSequence([]byte("seq:users"), 10); err != nil {
		store.msgSeq.Release()
		db.Close()
		return nil, fmt.Errorf("failed to open user sequence: %w", err)
	}
	if store.lastAt, err = store.newestMessageTime(); err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("Opened badger store at %s", path)
	return store, nil
}

func (b *BadgerDB) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return ctx.Err()
}

func (b *BadgerDB) Close() error {
	if err := b.msgSeq.Release(); err != nil {
		logger.Warn("Failed to release message sequence: %v", err)
	}
	if err := b.userSeq.Release(); err != nil {
		logger.Warn("Failed to release user sequence: %v", err)
	}
	return b.db.Close()
}

// User Repository Implementation
func (b *BadgerDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *models.User
	err := b.db.View(func(txn *badger.Txn) error {
		id, err := readValue(txn, []byte(usernamePrefix+username))
		if err != nil {
			return err
		}
		user, err = getUser(txn, []byte(userPrefix+string(id)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (b *BadgerDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *models.User
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, userKey(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (b *BadgerDB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next, err := b.userSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate user id: %w", err)
	}
	user := &models.User{
		ID:           int(next) + 1,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		indexKey := []byte(usernamePrefix + username)
		if _, err := txn.Get(indexKey); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(indexKey, []byte(strconv.Itoa(user.ID))); err != nil {
			return err
		}
		return putUser(txn, user)
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (b *BadgerDB) SetNickname(ctx context.Context, userID int, nickname string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, userKey(userID))
		if err != nil {
			return err
		}
		user.Nickname = nickname
		return putUser(txn, user)
	})
}

// Message Repository Implementation

// Append assigns the id and a created_at never earlier than the newest
// stored message.
func (b *BadgerDB) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := b.msgSeq.Next()
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to allocate message id: %w", err)
	}

	at := time.Now().UTC()
	if at.Before(b.lastAt) {
		at = b.lastAt
	}
	msg.ID = int64(next) + 1
	msg.CreatedAt = at

	data, err := json.Marshal(diskMessage{
		ID:           msg.ID,
		AuthorID:     msg.AuthorID,
		PresenceName: msg.PresenceName,
		Body:         msg.Body,
		At:           at.UnixNano(),
	})
	if err != nil {
		return models.Message{}, err
	}

	key := fmt.Sprintf("%s%019d:%020d", messagePrefix, at.UnixNano(), msg.ID)
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	b.lastAt = at
	return msg, nil
}

func (b *BadgerDB) ListChronological(ctx context.Context) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := []models.Message{}
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			messages = append(messages, dm.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (b *BadgerDB) newestMessageTime() (time.Time, error) {
	var newest time.Time
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(messagePrefix)
		// Reverse iteration must seek past the last possible key for the prefix.
		it.Seek(append([]byte(messagePrefix), 0xff))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		return it.Item().Value(func(value []byte) error {
			var dm diskMessage
			if err := json.Unmarshal(value, &dm); err != nil {
				return err
			}
			newest = time.Unix(0, dm.At).UTC()
			return nil
		})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read newest message: %w", err)
	}
	return newest, nil
}

type diskMessage struct {
	ID           int64  `json:"id"`
	AuthorID     int    `json:"author_id"`
	PresenceName string `json:"presence_name"`
	Body         string `json:"body"`
	At           int64  `json:"at"`
}

func (dm diskMessage) toModel() models.Message {
	return models.Message{
		ID:           dm.ID,
		AuthorID:     dm.AuthorID,
		PresenceName: dm.PresenceName,
		Body:         dm.Body,
		CreatedAt:    time.Unix(0, dm.At).UTC(),
	}
}

// storedUser keeps the password hash, which models.User hides from JSON.
type storedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func putUser(txn *badger.Txn, user *models.User) error {
	data, err := json.Marshal(storedUser{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return err
	}
	return txn.Set(userKey(user.ID), data)
}

func getUser(txn *badger.Txn, key []byte) (*models.User, error) {
	raw, err := readValue(txn, key)
	if err != nil {
		return nil, err
	}
	var stored storedUser
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}

func userKey(id int) []byte {
	return []byte(userPrefix + strconv.Itoa(id))
}

func readValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
