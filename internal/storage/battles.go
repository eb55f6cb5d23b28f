package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"esim_battle_cache/internal/app"
)

const battleColumns = `battle_id, current_round, attacker_score, defender_score, region_id,
	frozen, type, defender_id, attacker_id, total_seconds_remaining`

// UpsertBattle replaces the stored snapshot of b.BattleID with b
func (s *Store) UpsertBattle(ctx context.Context, b app.BattleRecord) error {
	query := `INSERT OR REPLACE INTO battles (` + battleColumns + `) VALUES (
		:battle_id, :current_round, :attacker_score, :defender_score, :region_id,
		:frozen, :type, :defender_id, :attacker_id, :total_seconds_remaining)`

	err := s.withWriteRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, query, b)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert battle %d: %w", b.BattleID, err)
	}
	return nil
}

// BattlesForIDs returns the stored snapshots among ids, keyed by battle id.
// Absent ids are simply missing from the map. The lookup is one range query
// with an explicit exclusion list. Sets so sparse that the exclusions exceed
// the bound-parameter budget are looked up with a plain IN list instead,
// still in one query; sets larger than the budget are split into chunks.
func (s *Store) BattlesForIDs(ctx context.Context, ids []uint64) (map[uint64]app.BattleRecord, error) {
	result := make(map[uint64]app.BattleRecord, len(ids))
	for _, clause := range rangeWithExclusions(ids) {
		query := s.db.Rebind(`SELECT ` + battleColumns + ` FROM battles WHERE ` + clause.SQL("battle_id"))

		var rows []app.BattleRecord
		if err := s.db.SelectContext(ctx, &rows, query, clause.Args()...); err != nil {
			return nil, fmt.Errorf("failed to query battles %d-%d: %w", clause.low, clause.high, err)
		}
		for _, row := range rows {
			result[row.BattleID] = row
		}
	}
	return result, nil
}

// GetBattle returns the stored snapshot of one battle
func (s *Store) GetBattle(ctx context.Context, battleID uint64) (app.BattleRecord, bool, error) {
	query := s.db.Rebind(`SELECT ` + battleColumns + ` FROM battles WHERE battle_id = ?`)

	var b app.BattleRecord
	err := s.db.GetContext(ctx, &b, query, battleID)
	if errors.Is(err, sql.ErrNoRows) {
		return app.BattleRecord{}, false, nil
	}
	if err != nil {
		return app.BattleRecord{}, false, fmt.Errorf("failed to get battle %d: %w", battleID, err)
	}
	return b, true, nil
}
