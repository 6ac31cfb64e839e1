package peers_test

import (
	"testing"
	"time"

	"github.com/programme-lv/disttester/internal/peers"
	"github.com/programme-lv/disttester/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sub(id string, score int, submittedAt time.Time) pool.Submission {
	return pool.Submission{StudentID: id, StudentName: "Student " + id, Score: score, SubmittedAt: submittedAt, Active: true}
}

func ids(combos []peers.Combination) [][]string {
	var res [][]string
	for _, c := range combos {
		res = append(res, c.StudentIDs())
	}
	return res
}

func TestCombinations(t *testing.T) {
	subs := []pool.Submission{sub("a", 0, t0), sub("b", 0, t0), sub("c", 0, t0), sub("d", 0, t0)}

	assert.Equal(t, [][]string{
		{"a", "b"}, {"a", "c"}, {"a", "d"}, {"b", "c"}, {"b", "d"}, {"c", "d"},
	}, ids(peers.Combinations(subs, 2)))

	assert.Len(t, peers.Combinations(subs, 0), 1)
	assert.Len(t, peers.Combinations(subs, 4), 1)
	assert.Nil(t, peers.Combinations(subs, 5))
}

func TestRankingPrefersScoreThenOlderSubmissions(t *testing.T) {
	p1 := sub("p1", 3, t0.Add(2*time.Hour))
	p2 := sub("p2", 3, t0.Add(time.Hour))
	p3 := sub("p3", 5, t0.Add(3*time.Hour))

	ranked := peers.Ranked([]pool.Submission{p1, p2, p3}, 1)
	assert.Equal(t, [][]string{{"p3"}, {"p2"}, {"p1"}}, ids(ranked))

	ranked = peers.Ranked([]pool.Submission{p1, p2, p3}, 2)
	require.Len(t, ranked, 3)
	assert.Equal(t, [][]string{{"p2", "p3"}, {"p1", "p3"}, {"p1", "p2"}}, ids(ranked))
}

func TestRankingIsDeterministicOnFullTies(t *testing.T) {
	a := sub("a", 1, t0)
	b := sub("b", 1, t0)
	first := peers.Ranked([]pool.Submission{b, a}, 1)
	second := peers.Ranked([]pool.Submission{a, b}, 1)
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, ids(first))
}
