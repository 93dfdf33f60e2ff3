package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"parlor/pkg/interfaces"
	"parlor/pkg/types"
)

// Store implements interfaces.MessageStore on SQLite. All writes funnel
// through a single goroutine; SQLite holds one write lock, so funneling
// avoids lock contention while WAL mode keeps reads concurrent.
type Store struct {
	db           *sql.DB
	log          zerolog.Logger
	writeTimeout time.Duration
	writeCh      chan writeOp
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// Open opens (or creates) the database at path and prepares the schema.
func Open(path string, writeTimeout time.Duration, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(sqlitePragmas); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:           db,
		log:          log.With().Str("component", "store").Logger(),
		writeTimeout: writeTimeout,
		writeCh:      make(chan writeOp, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine,
// retrying once after a short backoff before reporting failure.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.fn(s.db)
			if err != nil && isRetryable(err) {
				s.log.Warn().Err(err).Msg("write failed, retrying")
				time.Sleep(250 * time.Millisecond)
				err = op.fn(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func isRetryable(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(ctx context.Context, fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeCh <- writeOp{fn: fn, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-time.After(s.writeTimeout):
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// CreateMessage persists a message with a store-assigned id and
// creation time and returns the stored record.
func (s *Store) CreateMessage(ctx context.Context, room, author, content string) (*types.Message, error) {
	msg := &types.Message{
		ID:        uuid.New().String(),
		Room:      room,
		Author:    author,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err := s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO messages (id, room, author, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.Room, msg.Author, msg.Content, msg.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	return msg, nil
}

// ListMessages returns a room's messages ascending by creation time.
// The message id breaks ties between equal timestamps so replay order
// is stable.
func (s *Store) ListMessages(ctx context.Context, room string) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room, author, content, created_at
		 FROM messages WHERE room = ?
		 ORDER BY created_at ASC, id ASC`,
		room,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.Room, &m.Author, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// CreateUser stores a new account. The unique constraint on name maps
// to interfaces.ErrUserExists.
func (s *Store) CreateUser(ctx context.Context, name, passwordHash string) (*types.User, error) {
	user := &types.User{
		ID:           uuid.New().String(),
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	err := s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			user.ID, user.Name, user.PasswordHash, user.CreatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, interfaces.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// GetUserByName looks up an account by its unique name.
func (s *Store) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, created_at FROM users WHERE name = ?`,
		name,
	)

	var u types.User
	err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &u, nil
}

// FindOrCreateUser returns the named account, creating it with an empty
// password hash when missing. A concurrent create loses the insert race
// to the unique constraint and falls back to the existing row.
func (s *Store) FindOrCreateUser(ctx context.Context, name string) (*types.User, error) {
	user, err := s.GetUserByName(ctx, name)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, interfaces.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.CreateUser(ctx, name, "")
	if errors.Is(err, interfaces.ErrUserExists) {
		return s.GetUserByName(ctx, name)
	}
	return user, err
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the write loop and closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}

var _ interfaces.MessageStore = (*Store)(nil)
