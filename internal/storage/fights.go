package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"esim_battle_cache/internal/app"

	"github.com/rs/zerolog/log"
)

const fightColumns = `battle_id, round_id, damage, weapon, berserk, defender_side,
	citizenship, citizen_id, time, military_unit`

// fightRow is the stored shape of app.FightRecord
type fightRow struct {
	BattleID     uint64        `db:"battle_id"`
	RoundID      uint16        `db:"round_id"`
	Damage       uint32        `db:"damage"`
	Weapon       uint8         `db:"weapon"`
	Berserk      bool          `db:"berserk"`
	DefenderSide bool          `db:"defender_side"`
	Citizenship  sql.NullInt64 `db:"citizenship"`
	CitizenID    int           `db:"citizen_id"`
	TimeMillis   int64         `db:"time"`
	MilitaryUnit sql.NullInt64 `db:"military_unit"`
}

func toFightRow(f app.FightRecord) fightRow {
	return fightRow{
		BattleID:     f.BattleID,
		RoundID:      f.RoundID,
		Damage:       f.Damage,
		Weapon:       f.Weapon,
		Berserk:      f.Berserk,
		DefenderSide: f.DefenderSide,
		Citizenship:  nullInt(f.Citizenship),
		CitizenID:    f.CitizenID,
		TimeMillis:   f.Time.UnixMilli(),
		MilitaryUnit: nullInt(f.MilitaryUnit),
	}
}

func (r fightRow) record() app.FightRecord {
	return app.FightRecord{
		BattleID:     r.BattleID,
		RoundID:      r.RoundID,
		Damage:       r.Damage,
		Weapon:       r.Weapon,
		Berserk:      r.Berserk,
		DefenderSide: r.DefenderSide,
		Citizenship:  intPtr(r.Citizenship),
		CitizenID:    r.CitizenID,
		Time:         time.UnixMilli(r.TimeMillis).UTC(),
		MilitaryUnit: intPtr(r.MilitaryUnit),
	}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// InsertRoundFights commits all records of one round in a single transaction and
// returns how many rows were new. Rows already present are ignored. An empty
// round is stored as its sentinel row so that "checked, no hits" differs from
// "never checked".
func (s *Store) InsertRoundFights(ctx context.Context, battleID uint64, roundID uint16, records []app.FightRecord) (int64, error) {
	if len(records) == 0 {
		records = []app.FightRecord{app.SentinelFight(battleID, roundID)}
	}

	rows := make([]fightRow, len(records))
	for i, record := range records {
		if record.BattleID != battleID || record.RoundID != roundID {
			return 0, fmt.Errorf("record for battle %d round %d in batch for battle %d round %d",
				record.BattleID, record.RoundID, battleID, roundID)
		}
		rows[i] = toFightRow(record)
	}

	var inserted int64
	err := s.withWriteRetry(ctx, func(ctx context.Context) error {
		n, err := s.insertFightRows(ctx, rows)
		inserted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert fights for battle %d round %d: %w", battleID, roundID, err)
	}

	log.Debug().
		Uint64("battle_id", battleID).
		Uint16("round_id", roundID).
		Int("records", len(rows)).
		Int64("inserted", inserted).
		Msg("Committed round")

	return inserted, nil
}

func (s *Store) insertFightRows(ctx context.Context, rows []fightRow) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT OR IGNORE INTO fights (`+fightColumns+`) VALUES (
		:battle_id, :round_id, :damage, :weapon, :berserk, :defender_side,
		:citizenship, :citizen_id, :time, :military_unit)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// RoundCursors returns the highest stored round per battle. Battles with no
// stored rounds are absent, their cursor is 0.
func (s *Store) RoundCursors(ctx context.Context, ids []uint64) (map[uint64]uint16, error) {
	cursors := make(map[uint64]uint16, len(ids))
	for _, clause := range rangeWithExclusions(ids) {
		query := s.db.Rebind(`SELECT battle_id, MAX(round_id) AS max_round FROM fights WHERE ` +
			clause.SQL("battle_id") + ` GROUP BY battle_id`)

		var rows []struct {
			BattleID uint64 `db:"battle_id"`
			MaxRound uint16 `db:"max_round"`
		}
		if err := s.db.SelectContext(ctx, &rows, query, clause.Args()...); err != nil {
			return nil, fmt.Errorf("failed to query round cursors %d-%d: %w", clause.low, clause.high, err)
		}
		for _, row := range rows {
			cursors[row.BattleID] = row.MaxRound
		}
	}
	return cursors, nil
}

// RoundRowCount returns how many rows, sentinel included, are stored for one round
func (s *Store) RoundRowCount(ctx context.Context, battleID uint64, roundID uint16) (int, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM fights WHERE battle_id = ? AND round_id = ?`)
	if err := s.db.GetContext(ctx, &count, query, battleID, roundID); err != nil {
		return 0, fmt.Errorf("failed to count fights for battle %d round %d: %w", battleID, roundID, err)
	}
	return count, nil
}

// GetFights returns the stored rows of ids matching filter, ordered by battle,
// round and then insertion order (oldest hit first).
func (s *Store) GetFights(ctx context.Context, ids []uint64, filter app.FightFilter) ([]app.FightRecord, error) {
	var conditions []string
	var filterArgs []any
	if filter.RoundID != nil {
		conditions = append(conditions, "round_id = ?")
		filterArgs = append(filterArgs, *filter.RoundID)
	}
	if filter.CitizenID != nil {
		conditions = append(conditions, "citizen_id = ?")
		filterArgs = append(filterArgs, *filter.CitizenID)
	}
	if filter.DefenderSide != nil {
		conditions = append(conditions, "defender_side = ?")
		filterArgs = append(filterArgs, *filter.DefenderSide)
	}
	if !filter.IncludeSentinels {
		conditions = append(conditions, fmt.Sprintf("citizen_id <> %d", app.SentinelCitizenID))
	}

	var records []app.FightRecord
	for _, clause := range rangeWithExclusions(ids) {
		where := append([]string{"(" + clause.SQL("battle_id") + ")"}, conditions...)
		query := s.db.Rebind(`SELECT ` + fightColumns + ` FROM fights WHERE ` +
			strings.Join(where, " AND ") + ` ORDER BY battle_id, round_id, rowid`)

		var rows []fightRow
		args := append(clause.Args(), filterArgs...)
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, fmt.Errorf("failed to query fights %d-%d: %w", clause.low, clause.high, err)
		}
		for _, row := range rows {
			records = append(records, row.record())
		}
	}
	return records, nil
}
