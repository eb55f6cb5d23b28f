package processing

import (
	"context"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/domain/battle"
	"esim_battle_cache/internal/esim"
	"esim_battle_cache/internal/metrics"

	"github.com/rs/zerolog/log"
)

// SyncResult summarizes one RoundSynchronizer.Sync call
type SyncResult struct {
	BattleID        uint64
	FromCursor      uint16
	ToCursor        uint16
	RoundsCommitted int
	RowsInserted    int64
}

// RoundSynchronizer fetches and commits the rounds a battle is missing
type RoundSynchronizer struct {
	client  BattleClient
	store   FightStore
	pacer   *Pacer
	tracker *APICallTracker
	metrics *metrics.SyncMetrics
}

// NewRoundSynchronizer creates a round synchronizer. pacer, tracker and m may be nil.
func NewRoundSynchronizer(client BattleClient, store FightStore, pacer *Pacer, tracker *APICallTracker, m *metrics.SyncMetrics) *RoundSynchronizer {
	return &RoundSynchronizer{
		client:  client,
		store:   store,
		pacer:   pacer,
		tracker: tracker,
		metrics: m,
	}
}

// Sync commits every round after cursor up to the battle's round bound, in
// ascending order, one transaction per round. Rounds at or before cursor are
// never refetched, so an active round captured earlier is not refreshed
// until the battle moves past it.
func (s *RoundSynchronizer) Sync(ctx context.Context, b app.BattleRecord, cursor uint16) (SyncResult, error) {
	result := SyncResult{BattleID: b.BattleID, FromCursor: cursor, ToCursor: cursor}

	rounds := battle.MissingRounds(cursor, battle.RoundUpperBound(b))
	if len(rounds) == 0 {
		return result, nil
	}

	log.Debug().
		Uint64("battle_id", b.BattleID).
		Uint16("cursor", cursor).
		Int("missing_rounds", len(rounds)).
		Msg("Synchronizing rounds")

	for _, roundID := range rounds {
		if err := ctx.Err(); err != nil {
			return result, &SyncError{BattleID: b.BattleID, RoundID: roundID, Err: err}
		}

		hits, err := s.client.GetRoundFights(ctx, b.BattleID, roundID, esim.OnRequest(func() {
			s.tracker.RecordCall(EndpointFights)
		}))
		if err != nil {
			return result, &SyncError{BattleID: b.BattleID, RoundID: roundID, Err: err}
		}

		records, err := esim.FightRecordsFromHits(b.BattleID, roundID, hits)
		if err != nil {
			return result, &SyncError{BattleID: b.BattleID, RoundID: roundID, Err: err}
		}

		inserted, err := s.store.InsertRoundFights(ctx, b.BattleID, roundID, records)
		if err != nil {
			return result, &SyncError{BattleID: b.BattleID, RoundID: roundID, Err: err}
		}

		result.RoundsCommitted++
		result.RowsInserted += inserted
		result.ToCursor = roundID
		s.metrics.RecordRound(inserted)

		s.pacer.Wait(ctx)
	}

	log.Info().
		Uint64("battle_id", b.BattleID).
		Uint16("from_round", result.FromCursor).
		Uint16("to_round", result.ToCursor).
		Int64("rows_inserted", result.RowsInserted).
		Msg("Rounds synchronized")

	return result, nil
}
