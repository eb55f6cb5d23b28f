package mocks

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/esim"
)

// EsimClient interface defines the methods used by the synchronizers from esim.Client
type EsimClient interface {
	GetBattle(ctx context.Context, battleID uint64, opts ...esim.FetchOption) (*app.BattleResponse, error)
	GetRoundFights(ctx context.Context, battleID uint64, roundID uint16, opts ...esim.FetchOption) ([]app.FightHit, error)
}

// RoundKey identifies one round of one battle
type RoundKey struct {
	BattleID uint64
	RoundID  uint16
}

// MockEsimClient is a test double for the esim.Client. It is safe for
// concurrent use.
type MockEsimClient struct {
	mu sync.Mutex

	// Responses to return
	battles map[uint64]app.BattleResponse
	rounds  map[RoundKey][]app.FightHit

	// Errors to return
	battleErrors map[uint64]error
	roundErrors  map[RoundKey]error

	// Hooks run before a response is returned
	OnGetBattle      func(battleID uint64)
	OnGetRoundFights func(battleID uint64, roundID uint16)

	// Call tracking
	getBattleCalls      []uint64
	getRoundFightsCalls []RoundKey
}

var _ EsimClient = (*MockEsimClient)(nil)

// NewMockEsimClient creates a new mock e-sim client
func NewMockEsimClient() *MockEsimClient {
	return &MockEsimClient{
		battles:      make(map[uint64]app.BattleResponse),
		rounds:       make(map[RoundKey][]app.FightHit),
		battleErrors: make(map[uint64]error),
		roundErrors:  make(map[RoundKey]error),
	}
}

// SetBattle sets the snapshot returned for resp.BattleID
func (m *MockEsimClient) SetBattle(resp app.BattleResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battles[resp.BattleID] = resp
}

// SetRound sets the hits returned for one round, newest first like upstream
func (m *MockEsimClient) SetRound(battleID uint64, roundID uint16, hits []app.FightHit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[RoundKey{battleID, roundID}] = hits
}

// SetBattleError makes GetBattle fail for battleID
func (m *MockEsimClient) SetBattleError(battleID uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battleErrors[battleID] = err
}

// SetRoundError makes GetRoundFights fail for one round
func (m *MockEsimClient) SetRoundError(battleID uint64, roundID uint16, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roundErrors[RoundKey{battleID, roundID}] = err
}

func (m *MockEsimClient) GetBattle(ctx context.Context, battleID uint64, opts ...esim.FetchOption) (*app.BattleResponse, error) {
	m.mu.Lock()
	m.getBattleCalls = append(m.getBattleCalls, battleID)
	resp, found := m.battles[battleID]
	err := m.battleErrors[battleID]
	hook := m.OnGetBattle
	m.mu.Unlock()

	esim.RequestHook(opts...)()
	if hook != nil {
		hook(battleID)
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &esim.HTTPStatusError{StatusCode: http.StatusNotFound, Body: "battle not found"}
	}
	return &resp, nil
}

// GetRoundFights returns the configured hits; unconfigured rounds are empty
func (m *MockEsimClient) GetRoundFights(ctx context.Context, battleID uint64, roundID uint16, opts ...esim.FetchOption) ([]app.FightHit, error) {
	key := RoundKey{battleID, roundID}

	m.mu.Lock()
	m.getRoundFightsCalls = append(m.getRoundFightsCalls, key)
	hits := slices.Clone(m.rounds[key])
	err := m.roundErrors[key]
	hook := m.OnGetRoundFights
	m.mu.Unlock()

	esim.RequestHook(opts...)()
	if hook != nil {
		hook(battleID, roundID)
	}
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []app.FightHit{}
	}
	return hits, nil
}

// GetBattleCalls returns the battle ids requested so far, in order
func (m *MockEsimClient) GetBattleCalls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.getBattleCalls)
}

// GetRoundFightsCalls returns the rounds requested so far, in order
func (m *MockEsimClient) GetRoundFightsCalls() []RoundKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.getRoundFightsCalls)
}

// Reset clears call tracking but keeps responses and errors
func (m *MockEsimClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getBattleCalls = nil
	m.getRoundFightsCalls = nil
}
