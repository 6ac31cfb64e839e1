// Package peers picks the submissions a student is tested together with.
package peers

import (
	"cmp"
	"slices"
	"strings"

	"github.com/programme-lv/disttester/internal/pool"
)

type Combination []pool.Submission

func (c Combination) ScoreSum() int {
	sum := 0
	for _, s := range c {
		sum += s.Score
	}
	return sum
}

// SubmittedSum adds up submission times as Unix seconds.
func (c Combination) SubmittedSum() int64 {
	var sum int64
	for _, s := range c {
		sum += s.SubmittedAt.Unix()
	}
	return sum
}

func (c Combination) Names() []string {
	res := make([]string, len(c))
	for i, s := range c {
		res[i] = s.StudentName
	}
	return res
}

func (c Combination) StudentIDs() []string {
	res := make([]string, len(c))
	for i, s := range c {
		res[i] = s.StudentID
	}
	return res
}

func (c Combination) key() string {
	return strings.Join(c.StudentIDs(), "\x00")
}

// Combinations enumerates every size-k subset of subs, keeping the input
// order inside each subset.
func Combinations(subs []pool.Submission, k int) []Combination {
	if k < 0 || k > len(subs) {
		return nil
	}
	var res []Combination
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		c := make(Combination, k)
		for i, j := range idx {
			c[i] = subs[j]
		}
		res = append(res, c)

		i := k - 1
		for i >= 0 && idx[i] == len(subs)-k+i {
			i--
		}
		if i < 0 {
			return res
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// Rank orders combinations best first: higher summed score, then older
// summed submission time, then student ids.
func Rank(combos []Combination) {
	slices.SortStableFunc(combos, func(a, b Combination) int {
		if c := cmp.Compare(b.ScoreSum(), a.ScoreSum()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SubmittedSum(), b.SubmittedSum()); c != 0 {
			return c
		}
		return strings.Compare(a.key(), b.key())
	})
}

// Ranked is Combinations followed by Rank.
func Ranked(subs []pool.Submission, k int) []Combination {
	res := Combinations(subs, k)
	Rank(res)
	return res
}
