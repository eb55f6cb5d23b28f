package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"esim_battle_cache/internal/app"
)

// hitWeight counts a berserk hit as BerserkWeight hits and any other hit as one
var hitWeight = fmt.Sprintf("(CASE WHEN berserk THEN %d ELSE 1 END)", app.BerserkWeight)

var totalsQuery = func() string {
	var b strings.Builder
	b.WriteString("SELECT citizen_id, SUM(damage) AS damage")
	for tier := 0; tier < app.WeaponTiers; tier++ {
		fmt.Fprintf(&b, ", SUM(CASE WHEN weapon = %d THEN %s ELSE 0 END) AS q%d", tier, hitWeight, tier)
	}
	fmt.Fprintf(&b, ", SUM(%s) AS weighted_hits", hitWeight)
	fmt.Fprintf(&b, " FROM fights WHERE %%s AND citizen_id <> %d", app.SentinelCitizenID)
	b.WriteString(" GROUP BY citizen_id ORDER BY SUM(damage) DESC")
	return b.String()
}()

type totalsRow struct {
	CitizenID    int    `db:"citizen_id"`
	Damage       uint64 `db:"damage"`
	Q0           uint64 `db:"q0"`
	Q1           uint64 `db:"q1"`
	Q2           uint64 `db:"q2"`
	Q3           uint64 `db:"q3"`
	Q4           uint64 `db:"q4"`
	Q5           uint64 `db:"q5"`
	WeightedHits uint64 `db:"weighted_hits"`
}

func (r totalsRow) totals() app.CitizenTotals {
	return app.CitizenTotals{
		CitizenID:    r.CitizenID,
		Damage:       r.Damage,
		HitsByWeapon: [app.WeaponTiers]uint64{r.Q0, r.Q1, r.Q2, r.Q3, r.Q4, r.Q5},
		WeightedHits: r.WeightedHits,
	}
}

// FightTotals aggregates damage and weighted hit counts per citizen over the
// fights of ids, computed by the database. Sentinel rows are excluded.
// Results are ordered by damage descending; the order among equal damage is
// unspecified and must not be relied upon.
func (s *Store) FightTotals(ctx context.Context, ids []uint64) ([]app.CitizenTotals, error) {
	clauses := rangeWithExclusions(ids)
	if len(clauses) == 0 {
		return nil, nil
	}

	byCitizen := make(map[int]*app.CitizenTotals)
	var ordered []app.CitizenTotals
	for _, clause := range clauses {
		query := s.db.Rebind(fmt.Sprintf(totalsQuery, "("+clause.SQL("battle_id")+")"))

		var rows []totalsRow
		if err := s.db.SelectContext(ctx, &rows, query, clause.Args()...); err != nil {
			return nil, fmt.Errorf("failed to aggregate fights %d-%d: %w", clause.low, clause.high, err)
		}

		if len(clauses) == 1 {
			ordered = make([]app.CitizenTotals, len(rows))
			for i, row := range rows {
				ordered[i] = row.totals()
			}
			return ordered, nil
		}

		// Chunked id sets yield partial sums per chunk
		for _, row := range rows {
			t := row.totals()
			acc, ok := byCitizen[t.CitizenID]
			if !ok {
				byCitizen[t.CitizenID] = &t
				continue
			}
			acc.Damage += t.Damage
			acc.WeightedHits += t.WeightedHits
			for tier := range acc.HitsByWeapon {
				acc.HitsByWeapon[tier] += t.HitsByWeapon[tier]
			}
		}
	}

	ordered = make([]app.CitizenTotals, 0, len(byCitizen))
	for _, t := range byCitizen {
		ordered = append(ordered, *t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Damage > ordered[j].Damage
	})
	return ordered, nil
}
