package esim

import (
	"fmt"

	"esim_battle_cache/internal/app"
)

// BattleRecordFromResponse converts an apiBattles.html snapshot into a store row
func BattleRecordFromResponse(resp *app.BattleResponse) app.BattleRecord {
	return app.BattleRecord{
		BattleID:              resp.BattleID,
		CurrentRound:          resp.CurrentRound,
		AttackerScore:         resp.AttackerScore,
		DefenderScore:         resp.DefenderScore,
		RegionID:              resp.RegionID,
		Frozen:                resp.Frozen,
		Type:                  resp.Type,
		AttackerID:            resp.AttackerID,
		DefenderID:            resp.DefenderID,
		TotalSecondsRemaining: resp.HoursRemaining*3600 + resp.MinutesRemaining*60 + resp.SecondsRemaining,
	}
}

// FightRecordsFromHits converts one round of hits into store rows.
// Upstream lists hits newest first; the result is oldest first.
// An empty round yields an empty slice, the store writes its sentinel.
func FightRecordsFromHits(battleID uint64, roundID uint16, hits []app.FightHit) ([]app.FightRecord, error) {
	records := make([]app.FightRecord, 0, len(hits))
	for i := len(hits) - 1; i >= 0; i-- {
		hit := hits[i]
		t, err := ParseHitTime(hit.Time)
		if err != nil {
			return nil, fmt.Errorf("battle %d round %d: %w", battleID, roundID, err)
		}
		records = append(records, app.FightRecord{
			BattleID:     battleID,
			RoundID:      roundID,
			Damage:       hit.Damage,
			Weapon:       hit.Weapon,
			Berserk:      hit.Berserk,
			DefenderSide: hit.DefenderSide,
			Citizenship:  hit.Citizenship,
			CitizenID:    hit.CitizenID,
			Time:         t,
			MilitaryUnit: hit.MilitaryUnit,
		})
	}
	return records, nil
}
