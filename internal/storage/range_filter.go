package storage

import (
	"fmt"
	"slices"
	"strings"
)

// maxBoundParams keeps every statement well under SQLite's host parameter limit
const maxBoundParams = 30000

// rangeClause selects an explicit set of ids with one predicate: [low, high]
// minus exclude, or the in list when the exclusions would not fit in one
// statement's bound parameters.
type rangeClause struct {
	low, high uint64
	exclude   []uint64
	in        []uint64
}

// rangeWithExclusions builds the predicates selecting exactly ids. The ids
// are deduplicated and sorted. One clause is returned unless the set needs
// more bound parameters than a single statement allows.
func rangeWithExclusions(ids []uint64) []rangeClause {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var clauses []rangeClause
	for chunk := range slices.Chunk(sorted, maxBoundParams-2) {
		clauses = append(clauses, buildRangeClause(chunk))
	}
	return clauses
}

// buildRangeClause expects sorted, distinct ids
func buildRangeClause(ids []uint64) rangeClause {
	low, high := ids[0], ids[len(ids)-1]
	gaps := (high - low) - uint64(len(ids)-1)
	if gaps > maxBoundParams-2 {
		return rangeClause{low: low, high: high, in: ids}
	}

	clause := rangeClause{low: low, high: high}
	next := 0
	for id := low; id <= high && uint64(len(clause.exclude)) < gaps; id++ {
		if id == ids[next] {
			next++
			continue
		}
		clause.exclude = append(clause.exclude, id)
	}
	return clause
}

// SQL renders the predicate for column with '?' placeholders
func (c rangeClause) SQL(column string) string {
	if c.in != nil {
		return fmt.Sprintf("%s IN (%s)", column, placeholders(len(c.in)))
	}
	if len(c.exclude) == 0 {
		return fmt.Sprintf("%s BETWEEN ? AND ?", column)
	}
	return fmt.Sprintf("%s BETWEEN ? AND ? AND %s NOT IN (%s)", column, column, placeholders(len(c.exclude)))
}

// Args returns the bound parameters in placeholder order
func (c rangeClause) Args() []any {
	if c.in != nil {
		args := make([]any, len(c.in))
		for i, id := range c.in {
			args[i] = id
		}
		return args
	}
	args := make([]any, 0, 2+len(c.exclude))
	args = append(args, c.low, c.high)
	for _, id := range c.exclude {
		args = append(args, id)
	}
	return args
}

// Contains reports whether the predicate selects id
func (c rangeClause) Contains(id uint64) bool {
	if c.in != nil {
		_, found := slices.BinarySearch(c.in, id)
		return found
	}
	if id < c.low || id > c.high {
		return false
	}
	_, excluded := slices.BinarySearch(c.exclude, id)
	return !excluded
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
