package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Store persists transcripts server-side so the voice agent can be handed
// recent context on the next call.
type Store interface {
	Append(ctx context.Context, m Message) error
	// Recent returns up to n most recent messages for a phone, oldest first.
	Recent(ctx context.Context, phone string, n int) ([]Message, error)
}

var ErrInvalidMessage = errors.New("conversations: invalid message")

// MemoryStore keeps transcripts in process. Used when no database is
// configured, and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	byPhone map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPhone: map[string][]Message{}}
}

func (s *MemoryStore) Append(ctx context.Context, m Message) error {
	if m.Phone == "" || m.Text == "" {
		return ErrInvalidMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPhone[m.Phone] = append(s.byPhone[m.Phone], m)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, phone string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.byPhone[phone]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// PostgresStore persists transcripts in the transcripts table:
//
//	CREATE TABLE transcripts (
//	    id          BIGSERIAL PRIMARY KEY,
//	    phone       TEXT NOT NULL,
//	    sender      TEXT NOT NULL,
//	    text        TEXT NOT NULL,
//	    received_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX transcripts_phone_id_idx ON transcripts (phone, id);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, m Message) error {
	if m.Phone == "" || m.Text == "" {
		return ErrInvalidMessage
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (phone, sender, text, received_at) VALUES ($1, $2, $3, $4)`,
		m.Phone, m.Sender, m.Text, m.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, phone string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, sender, text, received_at
		   FROM transcripts
		  WHERE phone = $1
		  ORDER BY id DESC
		  LIMIT $2`,
		phone, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent transcripts: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Phone, &m.Sender, &m.Text, &m.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; flip to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
