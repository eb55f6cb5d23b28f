package battle

import (
	"reflect"
	"testing"

	"esim_battle_cache/internal/app"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestIsTerminal(t *testing.T) {
	testCases := []struct {
		attacker, defender uint8
		expected           bool
	}{
		{0, 0, false},
		{7, 7, false},
		{8, 3, true},
		{2, 8, true},
		{5, 3, false},
	}

	for _, tc := range testCases {
		b := app.BattleRecord{AttackerScore: tc.attacker, DefenderScore: tc.defender}
		if got := IsTerminal(b); got != tc.expected {
			t.Errorf("IsTerminal(%d:%d) = %v, expected %v", tc.attacker, tc.defender, got, tc.expected)
		}
	}
}

func TestRoundBoundExample(t *testing.T) {
	terminal := app.BattleRecord{CurrentRound: 5, AttackerScore: 8, DefenderScore: 3}
	active := app.BattleRecord{CurrentRound: 5, AttackerScore: 5, DefenderScore: 3}

	if got := MissingRounds(0, RoundUpperBound(terminal)); !reflect.DeepEqual(got, []uint16{1, 2, 3, 4}) {
		t.Errorf("Terminal battle: expected rounds [1 2 3 4], got %v", got)
	}
	if got := MissingRounds(0, RoundUpperBound(active)); !reflect.DeepEqual(got, []uint16{1, 2, 3, 4, 5}) {
		t.Errorf("Active battle: expected rounds [1 2 3 4 5], got %v", got)
	}
}

func TestMissingRounds(t *testing.T) {
	testCases := []struct {
		name     string
		cursor   uint16
		bound    uint32
		expected []uint16
	}{
		{"nothing stored", 0, 4, []uint16{1, 2, 3}},
		{"resume", 2, 6, []uint16{3, 4, 5}},
		{"up to date", 5, 6, nil},
		{"cursor past bound", 7, 5, nil},
		{"no rounds", 0, 1, nil},
		{"zero bound", 0, 0, nil},
		{"last round id", 65533, 65536, []uint16{65534, 65535}},
		{"cursor at last round id", 65535, 65536, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := MissingRounds(tc.cursor, tc.bound)
			if len(got) != len(tc.expected) || (len(got) > 0 && !reflect.DeepEqual(got, tc.expected)) {
				t.Errorf("MissingRounds(%d, %d) = %v, expected %v", tc.cursor, tc.bound, got, tc.expected)
			}
		})
	}
}

func TestRoundUpperBoundAtLastRoundID(t *testing.T) {
	active := app.BattleRecord{CurrentRound: 65535, AttackerScore: 7, DefenderScore: 7}
	if got := RoundUpperBound(active); got != 65536 {
		t.Fatalf("Expected bound 65536, got %d", got)
	}
	if got := MissingRounds(65534, RoundUpperBound(active)); !reflect.DeepEqual(got, []uint16{65535}) {
		t.Errorf("Expected active round 65535 to be synchronized, got %v", got)
	}

	terminal := app.BattleRecord{CurrentRound: 65535, AttackerScore: 8}
	if got := RoundUpperBound(terminal); got != 65535 {
		t.Errorf("Expected terminal bound 65535, got %d", got)
	}
}

func TestNeedsRefresh(t *testing.T) {
	if !NeedsRefresh(app.BattleRecord{}, false) {
		t.Error("Expected missing battle to need refresh")
	}
	if !NeedsRefresh(app.BattleRecord{AttackerScore: 7}, true) {
		t.Error("Expected active battle to need refresh")
	}
	if !NeedsRefresh(app.BattleRecord{Frozen: true, AttackerScore: 3}, true) {
		t.Error("Expected frozen battle to need refresh")
	}
	if NeedsRefresh(app.BattleRecord{AttackerScore: 8}, true) {
		t.Error("Expected terminal battle not to need refresh")
	}
}

func genScoredBattle() gopter.Gen {
	return gopter.CombineGens(
		gen.UInt16Range(1, 60),
		gen.UInt8Range(0, 8),
		gen.UInt8Range(0, 7),
		gen.Bool(),
	).Map(func(values []interface{}) app.BattleRecord {
		winner := values[1].(uint8)
		loser := values[2].(uint8)
		b := app.BattleRecord{CurrentRound: values[0].(uint16)}
		if values[3].(bool) {
			b.AttackerScore, b.DefenderScore = winner, loser
		} else {
			b.AttackerScore, b.DefenderScore = loser, winner
		}
		return b
	})
}

// TestCompletionProperties uses property-based testing
func TestCompletionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("bound includes the active round only while not terminal", prop.ForAll(
		func(b app.BattleRecord) bool {
			bound := RoundUpperBound(b)
			if IsTerminal(b) {
				return bound == uint32(b.CurrentRound)
			}
			return bound == uint32(b.CurrentRound)+1
		},
		genScoredBattle(),
	))

	properties.Property("missing rounds are ascending and contiguous", prop.ForAll(
		func(cursor uint16, bound uint32) bool {
			rounds := MissingRounds(cursor, bound)
			for i, r := range rounds {
				if uint32(r) != uint32(cursor)+1+uint32(i) || uint32(r) >= bound {
					return false
				}
			}
			if bound > uint32(cursor)+1 {
				return len(rounds) == int(bound-uint32(cursor)-1)
			}
			return len(rounds) == 0
		},
		gen.UInt16Range(65400, 65535),
		gen.UInt32Range(65400, 65536),
	))

	properties.Property("terminal battles never need refresh once stored", prop.ForAll(
		func(b app.BattleRecord) bool {
			return NeedsRefresh(b, true) == !IsTerminal(b)
		},
		genScoredBattle(),
	))

	properties.TestingRun(t)
}
