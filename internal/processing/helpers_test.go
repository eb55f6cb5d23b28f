package processing

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/config"
	"esim_battle_cache/internal/processing/mocks"
	"esim_battle_cache/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "battles.db"), config.DefaultResilienceConfig.StoreWrite)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// newTestCache creates a BattleCache without pacing over a fresh store
func newTestCache(t *testing.T, client *mocks.MockEsimClient) (*BattleCache, *storage.Store) {
	t.Helper()
	store := newTestStore(t)
	return NewBattleCache(client, store, 0, nil), store
}

func battleResponse(id uint64, round uint16, attacker, defender uint8) app.BattleResponse {
	return app.BattleResponse{
		BattleID:      id,
		CurrentRound:  round,
		AttackerScore: attacker,
		DefenderScore: defender,
		Type:          app.BattleTypeAttack,
	}
}

// testHit builds an upstream hit at second past 10:00
func testHit(citizenID int, damage uint32, second int) app.FightHit {
	return app.FightHit{
		Damage:    damage,
		CitizenID: citizenID,
		Time:      fmt.Sprintf("2024-05-21 10:%02d:%02d", second/60, second%60),
	}
}

// seedRounds gives every round of a battle one distinct hit, rounds 1..last
func seedRounds(client *mocks.MockEsimClient, battleID uint64, last uint16) {
	for r := uint16(1); r <= last; r++ {
		client.SetRound(battleID, r, []app.FightHit{testHit(int(r), uint32(r)*10, int(r))})
	}
}

func cursorOf(t *testing.T, store *storage.Store, battleID uint64) uint16 {
	t.Helper()
	cursors, err := store.RoundCursors(context.Background(), []uint64{battleID})
	if err != nil {
		t.Fatalf("Failed to read cursor: %v", err)
	}
	return cursors[battleID]
}

func roundsFetched(client *mocks.MockEsimClient, battleID uint64) []uint16 {
	var rounds []uint16
	for _, call := range client.GetRoundFightsCalls() {
		if call.BattleID == battleID {
			rounds = append(rounds, call.RoundID)
		}
	}
	return rounds
}

// countingStore records the id sets passed to BattlesForIDs
type countingStore struct {
	*storage.Store

	mu         sync.Mutex
	rangeCalls [][]uint64
}

func (s *countingStore) BattlesForIDs(ctx context.Context, ids []uint64) (map[uint64]app.BattleRecord, error) {
	s.mu.Lock()
	s.rangeCalls = append(s.rangeCalls, append([]uint64(nil), ids...))
	s.mu.Unlock()
	return s.Store.BattlesForIDs(ctx, ids)
}
