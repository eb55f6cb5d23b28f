package processing

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/domain/battle"
	"esim_battle_cache/internal/metrics"

	"github.com/rs/zerolog/log"
)

// SyncReport summarizes one EnsureCached call
type SyncReport struct {
	Requested       int
	Refreshed       int
	Skipped         int
	Active          int
	RoundsCommitted int
	RowsInserted    int64
	Duration        time.Duration
}

// BattleCache is the entry point used by presentation code. It keeps the
// store in step with upstream for the battles asked about and answers
// queries from the store.
type BattleCache struct {
	store      Store
	reconciler *BatchReconciler
	rounds     *RoundSynchronizer
	tracker    *APICallTracker
	metrics    *metrics.SyncMetrics
}

// NewBattleCache wires a reconciler and a round synchronizer over client and
// store, pacing every upstream request by pacingDelay. m may be nil.
func NewBattleCache(client BattleClient, store Store, pacingDelay time.Duration, m *metrics.SyncMetrics) *BattleCache {
	pacer := NewPacer(pacingDelay, pacingDelay/4)
	tracker := NewAPICallTracker()
	return &BattleCache{
		store:      store,
		reconciler: NewBatchReconciler(client, store, pacer, tracker, m),
		rounds:     NewRoundSynchronizer(client, store, pacer, tracker, m),
		tracker:    tracker,
		metrics:    m,
	}
}

// Tracker returns the cache's upstream call tracker
func (c *BattleCache) Tracker() *APICallTracker {
	return c.tracker
}

// EnsureCached brings the stored snapshots and rounds of ids up to date.
// Work stops at the first failure, reported as a *SyncError naming the
// battle and round. Everything committed before it stays valid.
func (c *BattleCache) EnsureCached(ctx context.Context, ids []uint64) (SyncReport, error) {
	start := time.Now()
	defer c.metrics.ObserveSync(start)

	ids = uniqueSorted(ids)
	report := SyncReport{Requested: len(ids)}

	reconciled, err := c.reconciler.Reconcile(ctx, ids)
	report.Refreshed = len(reconciled.Refreshed)
	report.Skipped = len(reconciled.Skipped)
	if err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	battleIDs := slices.Sorted(maps.Keys(reconciled.Battles))
	cursors, err := c.store.RoundCursors(ctx, battleIDs)
	if err != nil {
		report.Duration = time.Since(start)
		return report, fmt.Errorf("failed to load round cursors: %w", err)
	}

	for _, id := range battleIDs {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, &SyncError{BattleID: id, Err: err}
		}

		b := reconciled.Battles[id]
		if !battle.IsTerminal(b) {
			report.Active++
		}

		result, err := c.rounds.Sync(ctx, b, cursors[id])
		report.RoundsCommitted += result.RoundsCommitted
		report.RowsInserted += result.RowsInserted
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	log.Info().
		Int("requested", report.Requested).
		Int("refreshed", report.Refreshed).
		Int("skipped", report.Skipped).
		Int("active", report.Active).
		Int("rounds_committed", report.RoundsCommitted).
		Int64("rows_inserted", report.RowsInserted).
		Dur("duration", report.Duration).
		Msg("Battle cache synchronized")

	return report, nil
}

// GetBattle returns the stored snapshot of one battle without contacting upstream
func (c *BattleCache) GetBattle(ctx context.Context, battleID uint64) (app.BattleRecord, bool, error) {
	return c.store.GetBattle(ctx, battleID)
}

// GetFights returns the stored hits of ids matching filter
func (c *BattleCache) GetFights(ctx context.Context, ids []uint64, filter app.FightFilter) ([]app.FightRecord, error) {
	return c.store.GetFights(ctx, ids, filter)
}

// GetFightTotals returns per-citizen totals over ids, highest damage first.
// Order among equal damage is unspecified.
func (c *BattleCache) GetFightTotals(ctx context.Context, ids []uint64) ([]app.CitizenTotals, error) {
	return c.store.FightTotals(ctx, ids)
}

func uniqueSorted(ids []uint64) []uint64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
