package esim

import (
	"context"

	"esim_battle_cache/internal/app"
)

// BattleAPI defines the interface for interacting with the game's JSON endpoints
// This separates infrastructure concerns from business logic
type BattleAPI interface {
	// Core API endpoints
	GetBattle(ctx context.Context, battleID uint64, opts ...FetchOption) (*app.BattleResponse, error)
	GetRoundFights(ctx context.Context, battleID uint64, roundID uint16, opts ...FetchOption) ([]app.FightHit, error)

	// API call tracking
	GetAPICallCount() int64
	IncrementAPICall()
	ResetAPICallCount()
}

var _ BattleAPI = (*Client)(nil)
