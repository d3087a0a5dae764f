package database

import (
	"context"
	"errors"

	"groupchat/internal/models"
)

// ErrNotFound is returned when a user lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// ErrUsernameTaken is returned by CreateUser for an existing username.
var ErrUsernameTaken = errors.New("username already taken")

type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	SetNickname(ctx context.Context, userID int, nickname string) error
}

// MessageRepository is the durable message log consumed by the chat engine.
type MessageRepository interface {
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	ListChronological(ctx context.Context) ([]models.Message, error)
}

type Database interface {
	UserRepository
	MessageRepository
	Ping(ctx context.Context) error
	Close() error
}
