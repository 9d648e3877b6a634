package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides persistence for deals and their history.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveObservation upserts the deal and appends one history row in a single
// transaction. Returns the deal ID.
func (s *Store) SaveObservation(ctx context.Context, raw RawDeal, obs Observation) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	dealID, err := upsertDeal(ctx, tx, raw)
	if err != nil {
		return 0, err
	}
	if err := appendHistory(ctx, tx, dealID, obs); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit observation: %w", err)
	}
	return dealID, nil
}

// upsertDeal inserts a deal or refreshes its mutable attributes on URL
// conflict. max_rating_notified is never touched here.
func upsertDeal(ctx context.Context, tx pgx.Tx, raw RawDeal) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO deals (
			url, title, merchant, image_url, price, discount,
			coupon, description, published_at, expired
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			merchant = EXCLUDED.merchant,
			image_url = EXCLUDED.image_url,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			coupon = EXCLUDED.coupon,
			description = EXCLUDED.description,
			expired = EXCLUDED.expired,
			updated_at = NOW()
		RETURNING id`,
		raw.URL, raw.Title, raw.Merchant, raw.ImageURL, raw.Price,
		raw.Discount, raw.Coupon, raw.Description, raw.PublishedAt, raw.Expired,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert deal %s: %w", raw.URL, err)
	}
	return id, nil
}

// appendHistory inserts one history row stamped with the current time.
func appendHistory(ctx context.Context, tx pgx.Tx, dealID int64, obs Observation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO deal_history (
			deal_id, temperature, hours_since_published,
			velocity, viral_score, final_score
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		dealID, obs.Temperature, obs.Hours, obs.Velocity, obs.ViralScore, obs.FinalScore,
	)
	if err != nil {
		return fmt.Errorf("append history for deal %d: %w", dealID, err)
	}
	return nil
}

// PriorSnapshot returns the most recent history row strictly before the
// given time, or nil when the deal has no earlier observations.
func (s *Store) PriorSnapshot(ctx context.Context, dealID int64, before time.Time) (*HistoryRow, error) {
	var h HistoryRow
	err := s.pool.QueryRow(ctx, "prior_snapshot", dealID, before).Scan(
		&h.ID, &h.DealID, &h.ObservedAt, &h.Temperature,
		&h.Hours, &h.Velocity, &h.ViralScore, &h.FinalScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prior snapshot for deal %d: %w", dealID, err)
	}
	return &h, nil
}

// PriorSnapshots returns the latest history row per URL for a batch of
// deals. One query for the whole cycle instead of one per deal.
func (s *Store) PriorSnapshots(ctx context.Context, urls []string) (map[string]HistoryRow, error) {
	if len(urls) == 0 {
		return map[string]HistoryRow{}, nil
	}

	rows, err := s.pool.Query(ctx, "prior_snapshots_batch", urls)
	if err != nil {
		return nil, fmt.Errorf("batch snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[string]HistoryRow, len(urls))
	for rows.Next() {
		var url string
		var h HistoryRow
		if err := rows.Scan(
			&url, &h.ID, &h.DealID, &h.ObservedAt, &h.Temperature,
			&h.Hours, &h.Velocity, &h.ViralScore, &h.FinalScore,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots[url] = h
	}
	return snapshots, rows.Err()
}

// MaxRating returns the highest rating already notified for a deal.
func (s *Store) MaxRating(ctx context.Context, dealID int64) (int, error) {
	var rating int
	err := s.pool.QueryRow(ctx, "max_rating_by_id", dealID).Scan(&rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("max rating for deal %d: %w", dealID, err)
	}
	return rating, nil
}

// UpdateMaxRating raises max_rating_notified, never lowers it. The guard is
// in SQL so concurrent writers cannot regress the value.
func (s *Store) UpdateMaxRating(ctx context.Context, dealID int64, rating int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE deals SET max_rating_notified = $2, updated_at = NOW()
		WHERE id = $1 AND max_rating_notified < $2`,
		dealID, rating,
	)
	if err != nil {
		return fmt.Errorf("update max rating for deal %d: %w", dealID, err)
	}
	return nil
}
