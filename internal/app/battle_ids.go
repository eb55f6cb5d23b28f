package app

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxBattleIDSpan bounds a single "a-b" range so a typo cannot expand into
// millions of ids.
const maxBattleIDSpan = 100000

// ParseBattleIDs parses a comma separated list of ids and inclusive ranges,
// e.g. "101-105,110". The result is sorted and free of duplicates.
func ParseBattleIDs(list string) ([]uint64, error) {
	seen := make(map[uint64]struct{})

	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			id, err := parseBattleID(part)
			if err != nil {
				return nil, err
			}
			seen[id] = struct{}{}
			continue
		}

		from, err := parseBattleID(lo)
		if err != nil {
			return nil, err
		}
		to, err := parseBattleID(hi)
		if err != nil {
			return nil, err
		}
		if to < from {
			return nil, fmt.Errorf("invalid battle range %q: end before start", part)
		}
		if to-from >= maxBattleIDSpan {
			return nil, fmt.Errorf("battle range %q spans more than %d ids", part, maxBattleIDSpan)
		}
		for id := from; id <= to; id++ {
			seen[id] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no battle ids in %q", list)
	}

	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseBattleID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid battle id %q: %w", raw, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid battle id %q: ids start at 1", raw)
	}
	return id, nil
}
