package usecase

import (
	"cmp"
	"slices"
	"time"

	"github.com/me2d/cmlsync/internal/domain"
)

// HistoryTracker records per-day command executions and ranks commands by usage.
type HistoryTracker struct {
	now func() time.Time
}

// NewHistoryTracker creates a tracker that dates executions with the local wall clock.
func NewHistoryTracker() *HistoryTracker {
	return &HistoryTracker{now: time.Now}
}

// NewHistoryTrackerWithClock creates a tracker with a custom clock (for testing).
func NewHistoryTrackerWithClock(now func() time.Time) *HistoryTracker {
	return &HistoryTracker{now: now}
}

// Today returns today's ledger key.
func (t *HistoryTracker) Today() string {
	return t.now().Format(domain.HistoryDateLayout)
}

// Record returns a copy of ledger with today's count for number incremented and
// at most domain.RetentionDays days retained (oldest dropped first).
func (t *HistoryTracker) Record(number int, ledger domain.HistoryLedger) domain.HistoryLedger {
	out := ledger.Clone()

	today := t.Today()
	daily, ok := out[today]
	if !ok {
		daily = make(map[int]int)
		out[today] = daily
	}
	daily[number]++

	if excess := len(out) - domain.RetentionDays; excess > 0 {
		for _, day := range out.Days()[:excess] {
			delete(out, day)
		}
	}
	return out
}

// Totals sums each command's counts across all retained days.
func (t *HistoryTracker) Totals(ledger domain.HistoryLedger) map[int]int {
	totals := make(map[int]int)
	for _, daily := range ledger {
		for number, count := range daily {
			totals[number] += count
		}
	}
	return totals
}

// Rank returns commands ordered by total executions, most used first.
// The sort is stable: equal totals keep their input order.
func (t *HistoryTracker) Rank(commands []domain.Command, ledger domain.HistoryLedger) []domain.Command {
	totals := t.Totals(ledger)
	ranked := slices.Clone(commands)
	slices.SortStableFunc(ranked, func(a, b domain.Command) int {
		return cmp.Compare(totals[b.Number], totals[a.Number])
	})
	return ranked
}
