package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/access-service/internal/repository"
)

// StoreDeduplicator keeps last taps in the tap_cooldowns table.
type StoreDeduplicator struct {
	cooldowns repository.TapCooldownRepository
	now       func() time.Time
}

// NewStoreDeduplicator builds a database-backed deduplicator.
func NewStoreDeduplicator(cooldowns repository.TapCooldownRepository) *StoreDeduplicator {
	return &StoreDeduplicator{cooldowns: cooldowns, now: time.Now}
}

func (d *StoreDeduplicator) IsDuplicateAndRecordTap(ctx context.Context, terminalID, cardUID string, cooldown time.Duration) (Result, error) {
	now := d.now().UTC()
	previous, err := d.cooldowns.Swap(ctx, terminalID, cardUID, now, now.Add(cooldown+ExpiryMargin))
	if err != nil {
		return Result{Cooldown: cooldown}, fmt.Errorf("record tap: %w", err)
	}
	return evaluate(previous, now, cooldown), nil
}

// Purge removes rows whose expiry has passed.
func (d *StoreDeduplicator) Purge(ctx context.Context) (int64, error) {
	return d.cooldowns.DeleteExpired(ctx, d.now().UTC())
}
