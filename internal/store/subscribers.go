package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscribers is the recipient registry. The pipeline only reads the set to
// fan out; membership is managed by the bot command handlers.
type Subscribers struct {
	pool *pgxpool.Pool
}

// NewSubscribers creates a Subscribers registry.
func NewSubscribers(pool *pgxpool.Pool) *Subscribers {
	return &Subscribers{pool: pool}
}

// List returns all subscribed chat IDs.
func (s *Subscribers) List(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, "subscribers_all")
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Add registers a chat. Returns true when the chat was not subscribed yet.
func (s *Subscribers) Add(ctx context.Context, chatID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO subscribers (chat_id) VALUES ($1)
		ON CONFLICT (chat_id) DO NOTHING`, chatID)
	if err != nil {
		return false, fmt.Errorf("add subscriber %d: %w", chatID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove unregisters a chat.
func (s *Subscribers) Remove(ctx context.Context, chatID int64) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM subscribers WHERE chat_id = $1", chatID); err != nil {
		return fmt.Errorf("remove subscriber %d: %w", chatID, err)
	}
	return nil
}
