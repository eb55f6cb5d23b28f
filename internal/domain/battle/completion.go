// Package battle decides how much of a battle can be trusted from the store.
package battle

import "esim_battle_cache/internal/app"

// IsTerminal reports whether either side has reached the winning score.
// A terminal snapshot never changes again and is never refetched.
func IsTerminal(b app.BattleRecord) bool {
	return b.AttackerScore == app.TerminalScore || b.DefenderScore == app.TerminalScore
}

// RoundUpperBound returns the exclusive upper bound of rounds to synchronize.
//
// Upstream reports current_round as one past the last played round once the
// battle has ended, but as the round in progress while it is still active.
// The active round is included so its partial hits are captured. The bound is
// wider than a round id so that an active round 65535 is still reachable.
func RoundUpperBound(b app.BattleRecord) uint32 {
	if IsTerminal(b) {
		return uint32(b.CurrentRound)
	}
	return uint32(b.CurrentRound) + 1
}

// MissingRounds lists the rounds strictly between cursor and bound in ascending order
func MissingRounds(cursor uint16, bound uint32) []uint16 {
	first := uint32(cursor) + 1
	if bound <= first {
		return nil
	}
	rounds := make([]uint16, 0, bound-first)
	for r := first; r < bound; r++ {
		rounds = append(rounds, uint16(r))
	}
	return rounds
}

// NeedsRefresh reports whether a stored snapshot must be refetched from upstream
func NeedsRefresh(stored app.BattleRecord, found bool) bool {
	return !found || !IsTerminal(stored)
}
