// Package dedup suppresses repeated taps of the same card on the same terminal.
//
// Every call overwrites the stored last-tap time with now and compares the value it replaced,
// so the window slides with each tap rather than being anchored at the first one.
package dedup

import (
	"context"
	"time"
)

// ExpiryMargin keeps a record around slightly past the cooldown so a tap landing right at the
// edge still finds its predecessor.
const ExpiryMargin = 2 * time.Second

// Result describes one recorded tap.
type Result struct {
	IsDuplicate bool
	Delta       *time.Duration
	Cooldown    time.Duration
}

// Deduplicator records a tap and reports whether it repeats the previous one.
type Deduplicator interface {
	IsDuplicateAndRecordTap(ctx context.Context, terminalID, cardUID string, cooldown time.Duration) (Result, error)
}

func evaluate(previous *time.Time, now time.Time, cooldown time.Duration) Result {
	res := Result{Cooldown: cooldown}
	if previous == nil {
		return res
	}
	delta := now.Sub(*previous)
	res.Delta = &delta
	res.IsDuplicate = delta >= 0 && delta < cooldown
	return res
}

func key(terminalID, cardUID string) string {
	return terminalID + ":" + cardUID
}
