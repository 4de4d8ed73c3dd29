package repository

import (
	"context"
	"time"
)

// TapCooldownRepository is the durable backing store for duplicate tap suppression.
type TapCooldownRepository interface {
	// Swap stores at as the last tap and returns the previously stored value, if any.
	Swap(ctx context.Context, terminalID, cardUID string, at, expiresAt time.Time) (*time.Time, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type tapCooldownRepository struct {
	db DBTX
}

// NewTapCooldownRepository builds repository.
func NewTapCooldownRepository(db DBTX) TapCooldownRepository {
	return &tapCooldownRepository{db: db}
}

// Swap stores the new tap and returns the one it replaced. The previous values are kept in the
// row itself so concurrent swaps of the same key serialize on the row lock. An expired row is
// reported as having no previous tap.
func (r *tapCooldownRepository) Swap(ctx context.Context, terminalID, cardUID string, at, expiresAt time.Time) (*time.Time, error) {
	const query = `
        INSERT INTO tap_cooldowns (terminal_id, card_uid, last_tap_at, expires_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (terminal_id, card_uid) DO UPDATE
        SET prev_tap_at=tap_cooldowns.last_tap_at,
            prev_expires_at=tap_cooldowns.expires_at,
            last_tap_at=EXCLUDED.last_tap_at,
            expires_at=EXCLUDED.expires_at
        RETURNING CASE WHEN prev_expires_at >= $3 THEN prev_tap_at END`
	var previous *time.Time
	if err := r.db.QueryRow(ctx, query, terminalID, cardUID, at, expiresAt).Scan(&previous); err != nil {
		return nil, err
	}
	return previous, nil
}

func (r *tapCooldownRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM tap_cooldowns WHERE expires_at < $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
