package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

const uniqueViolation = "23505"

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, nickname, password_hash, created_at FROM users WHERE username = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.Nickname, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, username, nickname, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Nickname, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, username, nickname, created_at`

	user := &models.User{PasswordHash: passwordHash}
	err := db.pool.QueryRow(ctx, query, username, passwordHash).Scan(
		&user.ID, &user.Username, &user.Nickname, &user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) SetNickname(ctx context.Context, userID int, nickname string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET nickname = $2 WHERE id = $1`, userID, nickname)
	if err != nil {
		return fmt.Errorf("failed to update nickname: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Message Repository Implementation

// Append clamps created_at to the newest stored message so timestamps never
// go backwards, even if the server clock does.
func (db *PostgresDB) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	query := `
		INSERT INTO messages (author_id, presence_name, body, created_at)
		SELECT $1::integer, $2::text, $3::text,
		       GREATEST(clock_timestamp(), COALESCE(MAX(created_at), '-infinity'::timestamptz))
		FROM messages
		RETURNING id, author_id, presence_name, body, created_at`

	var out models.Message
	err := db.pool.QueryRow(ctx, query, msg.AuthorID, msg.PresenceName, msg.Body).Scan(
		&out.ID, &out.AuthorID, &out.PresenceName, &out.Body, &out.CreatedAt,
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	return out, nil
}

func (db *PostgresDB) ListChronological(ctx context.Context) ([]models.Message, error) {
	query := `
		SELECT id, author_id, presence_name, body, created_at
		FROM messages
		ORDER BY created_at ASC, id ASC`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.AuthorID, &msg.PresenceName, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
