package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

func at(id, job, trigger string, sec int) *Entry {
	return &Entry{FireInstanceID: id, Job: job, Trigger: trigger, ActualFireTime: t0.Add(time.Duration(sec) * time.Second)}
}

func ids(entries []*Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.FireInstanceID)
	}
	return out
}

func TestLastN(t *testing.T) {
	entries := []*Entry{at("c", "j", "t", 3), at("a", "j", "t", 1), at("d", "j", "t", 4), at("b", "j", "t", 2)}

	assert.Equal(t, []string{"c", "d"}, ids(LastN(entries, 2)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(LastN(entries, 10)))
	assert.Empty(t, LastN(entries, 0))
	assert.Empty(t, LastN(entries, -3))
	assert.Empty(t, LastN(nil, 5))

	// input order is untouched
	assert.Equal(t, "c", entries[0].FireInstanceID)
}

func TestLastNTiesAreStable(t *testing.T) {
	entries := []*Entry{at("x2", "j", "t", 1), at("x1", "j", "t", 1), at("x3", "j", "t", 1)}
	assert.Equal(t, []string{"x2", "x3"}, ids(LastN(entries, 2)))
	assert.Equal(t, []string{"x1", "x2", "x3"}, ids(LastN(entries, 3)))
}

func TestLastOfEvery(t *testing.T) {
	entries := []*Entry{
		at("b1", "G.B", "G.T2", 1), at("a1", "G.A", "G.T1", 1),
		at("b2", "G.B", "G.T2", 2), at("a2", "G.A", "G.T1", 2),
		at("a3", "G.A", "G.T2", 3),
	}

	assert.Equal(t, []string{"a2", "a3", "b1", "b2"}, ids(LastOfEvery(entries, ByJob, 2)))
	assert.Equal(t, []string{"a2", "a3"}, ids(LastOfEvery(entries, ByTrigger, 1)))
	assert.Empty(t, LastOfEvery(entries, ByJob, 0))
}

func TestNarrowCounter(t *testing.T) {
	assert.Equal(t, 0, NarrowCounter(0))
	assert.Equal(t, 2147483647, NarrowCounter(2147483647))
	assert.Equal(t, CounterOverflow, NarrowCounter(2147483648))
	assert.Equal(t, CounterOverflow, NarrowCounter(-2147483649))
}
