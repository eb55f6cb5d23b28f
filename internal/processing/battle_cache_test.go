package processing

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/esim"
	"esim_battle_cache/internal/metrics"
	"esim_battle_cache/internal/processing/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEnsureCachedEndToEnd(t *testing.T) {
	client := mocks.NewMockEsimClient()
	client.SetBattle(battleResponse(1, 5, 8, 3))
	client.SetBattle(battleResponse(2, 3, 1, 2))
	seedRounds(client, 1, 5)
	seedRounds(client, 2, 3)
	client.SetRound(2, 2, nil)
	cache, store := newTestCache(t, client)
	ctx := context.Background()

	report, err := cache.EnsureCached(ctx, []uint64{2, 1})
	if err != nil {
		t.Fatalf("EnsureCached failed: %v", err)
	}

	if report.Requested != 2 || report.Refreshed != 2 || report.Skipped != 0 || report.Active != 1 {
		t.Errorf("Unexpected report %+v", report)
	}
	if report.RoundsCommitted != 7 {
		t.Errorf("Expected 4 + 3 rounds committed, got %d", report.RoundsCommitted)
	}

	if cursor := cursorOf(t, store, 1); cursor != 4 {
		t.Errorf("Expected battle 1 cursor 4, got %d", cursor)
	}
	if cursor := cursorOf(t, store, 2); cursor != 3 {
		t.Errorf("Expected battle 2 cursor 3, got %d", cursor)
	}

	count, err := store.RoundRowCount(ctx, 2, 2)
	if err != nil {
		t.Fatalf("RoundRowCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the empty round to hold its sentinel, got %d rows", count)
	}

	b, found, err := cache.GetBattle(ctx, 1)
	if err != nil || !found || b.AttackerScore != 8 {
		t.Errorf("Expected stored terminal battle 1, got %+v found=%v err=%v", b, found, err)
	}

	fights, err := cache.GetFights(ctx, []uint64{1}, app.FightFilter{})
	if err != nil {
		t.Fatalf("GetFights failed: %v", err)
	}
	if len(fights) != 4 {
		t.Errorf("Expected 4 stored hits for battle 1, got %d", len(fights))
	}
}

func TestEnsureCachedTerminalBattleIsNeverRefetched(t *testing.T) {
	client := mocks.NewMockEsimClient()
	client.SetBattle(battleResponse(3, 4, 2, 8))
	seedRounds(client, 3, 4)
	cache, _ := newTestCache(t, client)
	ctx := context.Background()

	if _, err := cache.EnsureCached(ctx, []uint64{3}); err != nil {
		t.Fatalf("EnsureCached failed: %v", err)
	}
	client.Reset()

	for i := 0; i < 3; i++ {
		report, err := cache.EnsureCached(ctx, []uint64{3})
		if err != nil {
			t.Fatalf("EnsureCached %d failed: %v", i, err)
		}
		if report.Skipped != 1 || report.RoundsCommitted != 0 {
			t.Errorf("Expected a pure cache hit, got %+v", report)
		}
	}

	if calls := client.GetBattleCalls(); len(calls) != 0 {
		t.Errorf("Terminal battle snapshot refetched: %v", calls)
	}
	if calls := client.GetRoundFightsCalls(); len(calls) != 0 {
		t.Errorf("Terminal battle rounds refetched: %v", calls)
	}
}

func TestEnsureCachedSparseIDs(t *testing.T) {
	client := mocks.NewMockEsimClient()
	for id := uint64(101); id <= 105; id++ {
		client.SetBattle(battleResponse(id, 1, 0, 0))
	}
	cache, _ := newTestCache(t, client)

	if _, err := cache.EnsureCached(context.Background(), []uint64{101, 103, 105}); err != nil {
		t.Fatalf("EnsureCached failed: %v", err)
	}

	if got := client.GetBattleCalls(); !reflect.DeepEqual(got, []uint64{101, 103, 105}) {
		t.Errorf("Expected snapshots for [101 103 105], got %v", got)
	}
	for _, call := range client.GetRoundFightsCalls() {
		if call.BattleID == 102 || call.BattleID == 104 {
			t.Errorf("Unrequested battle %d round %d fetched", call.BattleID, call.RoundID)
		}
	}
}

// TestEnsureCachedActiveRoundIsNotRefreshed pins down current behavior: an
// active round captured once is not refetched until the battle advances.
func TestEnsureCachedActiveRoundIsNotRefreshed(t *testing.T) {
	client := mocks.NewMockEsimClient()
	client.SetBattle(battleResponse(50, 2, 1, 0))
	client.SetRound(50, 1, []app.FightHit{testHit(1, 10, 1)})
	client.SetRound(50, 2, []app.FightHit{testHit(2, 20, 2)})
	cache, store := newTestCache(t, client)
	ctx := context.Background()

	if _, err := cache.EnsureCached(ctx, []uint64{50}); err != nil {
		t.Fatalf("EnsureCached failed: %v", err)
	}

	// More hits land in round 2 while it is still open
	client.SetRound(50, 2, []app.FightHit{testHit(3, 30, 3), testHit(2, 20, 2)})
	client.Reset()
	if _, err := cache.EnsureCached(ctx, []uint64{50}); err != nil {
		t.Fatalf("EnsureCached failed: %v", err)
	}

	if got := roundsFetched(client, 50); len(got) != 0 {
		t.Errorf("Expected the captured active round to be left alone, fetched %v", got)
	}
	count, err := store.RoundRowCount(ctx, 50, 2)
	if err != nil {
		t.Fatalf("RoundRowCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected round 2 to keep its first capture, got %d rows", count)
	}

	// Once the battle moves on only the new round is fetched
	client.SetBattle(battleResponse(50, 3, 2, 0))
	client.SetRound(50, 3, []app.FightHit{testHit(4, 40, 4)})
	if _, err := cache.EnsureCached(ctx, []uint64{50}); err != nil {
		t.Fatalf("EnsureCached failed: %v", err)
	}
	if got := roundsFetched(client, 50); !reflect.DeepEqual(got, []uint16{3}) {
		t.Errorf("Expected only round 3 fetched, got %v", got)
	}
}

func TestEnsureCachedErrorNamesRound(t *testing.T) {
	client := mocks.NewMockEsimClient()
	client.SetBattle(battleResponse(60, 4, 8, 0))
	client.SetBattle(battleResponse(61, 4, 8, 0))
	seedRounds(client, 60, 4)
	seedRounds(client, 61, 4)
	client.SetRoundError(61, 2, &esim.ExhaustedRetriesError{URL: "apiFights.html", Attempts: 3, Err: esim.ErrTransient})
	cache, store := newTestCache(t, client)

	report, err := cache.EnsureCached(context.Background(), []uint64{60, 61})

	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("Expected SyncError, got %v", err)
	}
	if syncErr.BattleID != 61 || syncErr.RoundID != 2 {
		t.Errorf("Expected stop at battle 61 round 2, got %d/%d", syncErr.BattleID, syncErr.RoundID)
	}
	if !errors.Is(err, esim.ErrTransient) {
		t.Errorf("Expected transient cause, got %v", err)
	}
	if report.RoundsCommitted != 4 {
		t.Errorf("Expected battle 60 rounds and one round of 61 committed, got %d", report.RoundsCommitted)
	}
	if cursor := cursorOf(t, store, 61); cursor != 1 {
		t.Errorf("Expected battle 61 cursor 1, got %d", cursor)
	}
}

func TestEnsureCachedConcurrentCallers(t *testing.T) {
	client := mocks.NewMockEsimClient()
	for id := uint64(70); id <= 73; id++ {
		client.SetBattle(battleResponse(id, 4, 8, 1))
		seedRounds(client, id, 4)
	}
	cache, store := newTestCache(t, client)
	ctx := context.Background()

	requests := [][]uint64{{70, 71, 72}, {71, 72, 73}, {70, 73}, {70, 71, 72, 73}}
	var wg sync.WaitGroup
	errs := make(chan error, len(requests))
	for _, ids := range requests {
		wg.Add(1)
		go func(ids []uint64) {
			defer wg.Done()
			if _, err := cache.EnsureCached(ctx, ids); err != nil {
				errs <- err
			}
		}(ids)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent EnsureCached failed: %v", err)
	}

	for id := uint64(70); id <= 73; id++ {
		for round := uint16(1); round <= 3; round++ {
			count, err := store.RoundRowCount(ctx, id, round)
			if err != nil {
				t.Fatalf("RoundRowCount failed: %v", err)
			}
			if count != 1 {
				t.Errorf("Battle %d round %d: expected exactly 1 row, got %d", id, round, count)
			}
		}
	}
}

func TestGetFightTotalsThroughCache(t *testing.T) {
	client := mocks.NewMockEsimClient()
	client.SetBattle(battleResponse(80, 3, 8, 0))
	berserk := testHit(7, 5, 3)
	berserk.Weapon = 1
	berserk.Berserk = true
	client.SetRound(80, 1, []app.FightHit{testHit(7, 20, 2), testHit(7, 10, 1)})
	client.SetRound(80, 2, []app.FightHit{berserk})
	cache, _ := newTestCache(t, client)
	ctx := context.Background()

	if _, err := cache.EnsureCached(ctx, []uint64{80}); err != nil {
		t.Fatalf("EnsureCached failed: %v", err)
	}

	totals, err := cache.GetFightTotals(ctx, []uint64{80})
	if err != nil {
		t.Fatalf("GetFightTotals failed: %v", err)
	}
	if len(totals) != 1 {
		t.Fatalf("Expected 1 citizen, got %d", len(totals))
	}
	expected := app.CitizenTotals{CitizenID: 7, Damage: 35, HitsByWeapon: [app.WeaponTiers]uint64{2, 5}, WeightedHits: 7}
	if totals[0] != expected {
		t.Errorf("Expected %+v, got %+v", expected, totals[0])
	}
}

func TestEnsureCachedRecordsMetrics(t *testing.T) {
	client := mocks.NewMockEsimClient()
	client.SetBattle(battleResponse(90, 3, 8, 0))
	seedRounds(client, 90, 2)
	registry := prometheus.NewRegistry()
	m := metrics.NewSyncMetricsWithRegistry("esim", registry)
	cache := NewBattleCache(client, newTestStore(t), 0, m)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.EnsureCached(ctx, []uint64{90}); err != nil {
			t.Fatalf("EnsureCached failed: %v", err)
		}
	}

	if got := testutil.ToFloat64(m.BattlesRefreshed); got != 1 {
		t.Errorf("Expected 1 refreshed battle, got %v", got)
	}
	if got := testutil.ToFloat64(m.BattlesSkipped); got != 1 {
		t.Errorf("Expected 1 skipped battle, got %v", got)
	}
	if got := testutil.ToFloat64(m.RoundsCommitted); got != 2 {
		t.Errorf("Expected 2 committed rounds, got %v", got)
	}

	stats := cache.Tracker().GetSessionStats()
	if stats.CallsByEndpoint[EndpointBattle] != 1 || stats.CallsByEndpoint[EndpointFights] != 2 {
		t.Errorf("Unexpected tracked calls %v", stats.CallsByEndpoint)
	}
}
