package app

import "time"

// TerminalScore is the score at which a side wins a battle
const TerminalScore = 8

// WeaponTiers is the number of weapon qualities (0 = fists, 1..5 = Q1..Q5)
const WeaponTiers = 6

// BerserkWeight is how many hits a berserk hit counts for in hit aggregates
const BerserkWeight = 5

// SentinelCitizenID marks the placeholder row written for a round that was
// fetched and reported no hits. Real citizen ids start at 1.
const SentinelCitizenID = 0

// SentinelTime is the synthetic timestamp carried by sentinel rows
var SentinelTime = time.Unix(0, 0).UTC()

// Known battle categories reported in the "type" field
const (
	BattleTypeAttack          = "ATTACK"
	BattleTypeResistance      = "RESISTANCE"
	BattleTypePractice        = "PRACTICE_BATTLE"
	BattleTypeCountryTourney  = "COUNTRY_TOURNAMENT"
	BattleTypeTeamTournament  = "TEAM_TOURNAMENT"
	BattleTypeMilitaryUnitCup = "MILITARY_UNIT_CUP_EVENT_BATTLE"
	BattleTypeLeague          = "LEAGUE"
)

// BattleResponse represents the response from /apiBattles.html
type BattleResponse struct {
	BattleID         uint64 `json:"battleId"`
	CurrentRound     uint16 `json:"currentRound"`
	AttackerScore    uint8  `json:"attackerScore"`
	DefenderScore    uint8  `json:"defenderScore"`
	RegionID         int    `json:"regionId"`
	Frozen           bool   `json:"frozen"`
	Type             string `json:"type"`
	DefenderID       int    `json:"defenderId"`
	AttackerID       int    `json:"attackerId"`
	HoursRemaining   uint32 `json:"hoursRemaining"`
	MinutesRemaining uint32 `json:"minutesRemaining"`
	SecondsRemaining uint32 `json:"secondsRemaining"`
}

// FightHit represents one element of the array returned by /apiFights.html
type FightHit struct {
	Damage       uint32 `json:"damage"`
	Weapon       uint8  `json:"weapon"`
	Berserk      bool   `json:"berserk"`
	DefenderSide bool   `json:"defenderSide"`
	Citizenship  *int   `json:"citizenship"`
	CitizenID    int    `json:"citizenId"`
	Time         string `json:"time"`
	MilitaryUnit *int   `json:"militaryUnit"`
}

// BattleRecord is the stored snapshot of a battle
type BattleRecord struct {
	BattleID              uint64 `db:"battle_id"`
	CurrentRound          uint16 `db:"current_round"`
	AttackerScore         uint8  `db:"attacker_score"`
	DefenderScore         uint8  `db:"defender_score"`
	RegionID              int    `db:"region_id"`
	Frozen                bool   `db:"frozen"`
	Type                  string `db:"type"`
	AttackerID            int    `db:"attacker_id"`
	DefenderID            int    `db:"defender_id"`
	TotalSecondsRemaining uint32 `db:"total_seconds_remaining"`
}

// FightRecord is a single stored hit
type FightRecord struct {
	BattleID     uint64
	RoundID      uint16
	Damage       uint32
	Weapon       uint8
	Berserk      bool
	DefenderSide bool
	Citizenship  *int
	CitizenID    int
	Time         time.Time
	MilitaryUnit *int
}

// IsSentinel reports whether the record is the placeholder for an empty round
func (f FightRecord) IsSentinel() bool {
	return f.CitizenID == SentinelCitizenID && f.Damage == 0 && f.Time.Equal(SentinelTime)
}

// SentinelFight builds the placeholder row for a checked round with no hits
func SentinelFight(battleID uint64, roundID uint16) FightRecord {
	return FightRecord{
		BattleID:  battleID,
		RoundID:   roundID,
		CitizenID: SentinelCitizenID,
		Time:      SentinelTime,
	}
}

// CitizenTotals represents aggregated fight statistics for one citizen
type CitizenTotals struct {
	CitizenID    int
	Damage       uint64
	HitsByWeapon [WeaponTiers]uint64
	WeightedHits uint64
}

// FightFilter narrows GetFights results. Nil fields do not filter.
type FightFilter struct {
	RoundID          *uint16
	CitizenID        *int
	DefenderSide     *bool
	IncludeSentinels bool
}
