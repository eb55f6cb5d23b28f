package processing

import (
	"context"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/esim"
)

// BattleClient defines the upstream methods used by the synchronizers
type BattleClient interface {
	GetBattle(ctx context.Context, battleID uint64, opts ...esim.FetchOption) (*app.BattleResponse, error)
	GetRoundFights(ctx context.Context, battleID uint64, roundID uint16, opts ...esim.FetchOption) ([]app.FightHit, error)
}

// BattleStore defines the battle snapshot methods used by BatchReconciler
type BattleStore interface {
	UpsertBattle(ctx context.Context, b app.BattleRecord) error
	BattlesForIDs(ctx context.Context, ids []uint64) (map[uint64]app.BattleRecord, error)
	GetBattle(ctx context.Context, battleID uint64) (app.BattleRecord, bool, error)
}

// FightStore defines the fight row methods used by RoundSynchronizer and BattleCache
type FightStore interface {
	InsertRoundFights(ctx context.Context, battleID uint64, roundID uint16, records []app.FightRecord) (int64, error)
	RoundCursors(ctx context.Context, ids []uint64) (map[uint64]uint16, error)
	GetFights(ctx context.Context, ids []uint64, filter app.FightFilter) ([]app.FightRecord, error)
	FightTotals(ctx context.Context, ids []uint64) ([]app.CitizenTotals, error)
}

// Store is everything BattleCache needs from persistence
type Store interface {
	BattleStore
	FightStore
}
