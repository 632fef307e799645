package history

import (
	"slices"
	"sort"
)

// KeyFunc extracts the grouping key of an entry.
type KeyFunc func(*Entry) string

// ByJob groups entries by job key.
func ByJob(e *Entry) string { return e.Job }

// ByTrigger groups entries by trigger key.
func ByTrigger(e *Entry) string { return e.Trigger }

// newestFirst orders by actual fire time descending. Ties fall back to
// fire instance id descending so that results are stable across backends.
func newestFirst(a, b *Entry) int {
	if c := b.ActualFireTime.Compare(a.ActualFireTime); c != 0 {
		return c
	}
	switch {
	case a.FireInstanceID > b.FireInstanceID:
		return -1
	case a.FireInstanceID < b.FireInstanceID:
		return 1
	}
	return 0
}

// LastN returns the limit most recent entries, oldest first.
// A limit of zero or less yields an empty slice.
func LastN(entries []*Entry, limit int) []*Entry {
	if limit <= 0 || len(entries) == 0 {
		return []*Entry{}
	}
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, newestFirst)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	slices.Reverse(sorted)
	return sorted
}

// LastOfEvery applies LastN to each group produced by key. Groups are
// concatenated in ascending key order.
func LastOfEvery(entries []*Entry, key KeyFunc, limit int) []*Entry {
	groups := GroupBy(entries, key)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []*Entry{}
	for _, k := range keys {
		out = append(out, LastN(groups[k], limit)...)
	}
	return out
}

// GroupBy splits entries by key, preserving order within each group.
func GroupBy(entries []*Entry, key KeyFunc) map[string][]*Entry {
	groups := make(map[string][]*Entry)
	for _, e := range entries {
		k := key(e)
		groups[k] = append(groups[k], e)
	}
	return groups
}
