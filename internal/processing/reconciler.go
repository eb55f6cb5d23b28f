package processing

import (
	"context"
	"fmt"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/domain/battle"
	"esim_battle_cache/internal/esim"
	"esim_battle_cache/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ReconcileResult holds the current snapshot of every requested battle
type ReconcileResult struct {
	Battles   map[uint64]app.BattleRecord
	Refreshed []uint64
	Skipped   []uint64
}

// BatchReconciler refreshes the stored snapshots of a set of battles,
// fetching only those that are missing or not yet terminal.
type BatchReconciler struct {
	client  BattleClient
	store   BattleStore
	pacer   *Pacer
	tracker *APICallTracker
	metrics *metrics.SyncMetrics
}

// NewBatchReconciler creates a batch reconciler. pacer, tracker and m may be nil.
func NewBatchReconciler(client BattleClient, store BattleStore, pacer *Pacer, tracker *APICallTracker, m *metrics.SyncMetrics) *BatchReconciler {
	return &BatchReconciler{
		client:  client,
		store:   store,
		pacer:   pacer,
		tracker: tracker,
		metrics: m,
	}
}

// Reconcile loads the stored snapshots of ids with a single store query, then
// refetches and replaces, in ascending id order, each one that is absent or
// non-terminal. Terminal snapshots are returned without touching upstream.
// On failure the result holds whatever was reconciled before the error.
func (r *BatchReconciler) Reconcile(ctx context.Context, ids []uint64) (ReconcileResult, error) {
	ids = uniqueSorted(ids)
	result := ReconcileResult{Battles: make(map[uint64]app.BattleRecord, len(ids))}
	if len(ids) == 0 {
		return result, nil
	}

	stored, err := r.store.BattlesForIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to load stored battles: %w", err)
	}

	for _, id := range ids {
		existing, found := stored[id]
		if !battle.NeedsRefresh(existing, found) {
			result.Battles[id] = existing
			result.Skipped = append(result.Skipped, id)
			r.metrics.RecordBattle(false)
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, &SyncError{BattleID: id, Err: err}
		}

		resp, err := r.client.GetBattle(ctx, id, esim.OnRequest(func() {
			r.tracker.RecordCall(EndpointBattle)
		}))
		if err != nil {
			return result, &SyncError{BattleID: id, Err: err}
		}

		record := esim.BattleRecordFromResponse(resp)
		if err := r.store.UpsertBattle(ctx, record); err != nil {
			return result, &SyncError{BattleID: id, Err: err}
		}

		result.Battles[id] = record
		result.Refreshed = append(result.Refreshed, id)
		r.metrics.RecordBattle(true)

		log.Debug().
			Uint64("battle_id", id).
			Bool("was_stored", found).
			Bool("terminal", battle.IsTerminal(record)).
			Msg("Battle snapshot refreshed")

		r.pacer.Wait(ctx)
	}

	log.Info().
		Int("requested", len(ids)).
		Int("refreshed", len(result.Refreshed)).
		Int("skipped", len(result.Skipped)).
		Msg("Battles reconciled")

	return result, nil
}
