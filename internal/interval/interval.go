// Package interval implements sets of closed big-integer intervals kept in
// canonical form: sorted by lower bound, pairwise disjoint, with touching
// ranges coalesced.
package interval

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

var one = big.NewInt(1)

// Interval is the closed range [Lo, Hi].
type Interval struct {
	Lo *big.Int
	Hi *big.Int
}

// New returns the interval [lo, hi]. The bounds are copied.
func New(lo, hi *big.Int) Interval {
	return Interval{Lo: new(big.Int).Set(lo), Hi: new(big.Int).Set(hi)}
}

// Contains reports whether x lies in [Lo, Hi].
func (iv Interval) Contains(x *big.Int) bool {
	return iv.Lo.Cmp(x) <= 0 && x.Cmp(iv.Hi) <= 0
}

// Width returns Hi - Lo.
func (iv Interval) Width() *big.Int {
	return new(big.Int).Sub(iv.Hi, iv.Lo)
}

// IsPoint reports whether the interval holds a single integer.
func (iv Interval) IsPoint() bool {
	return iv.Lo.Cmp(iv.Hi) == 0
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s]", iv.Lo.Text(16), iv.Hi.Text(16))
}

// Set is a canonical interval set. Build it with Merge.
type Set []Interval

// Merge sorts the intervals by lower bound and coalesces every interval that
// starts at or before the current upper bound (or right after it, since the
// ranges are integer ranges) into one.
func Merge(intervals []Interval) Set {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Lo.Cmp(iv.Hi) > 0 {
			continue
		}
		sorted = append(sorted, iv)
	}
	if len(sorted) == 0 {
		return Set{}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Lo.Cmp(sorted[j].Lo) < 0
	})

	merged := make(Set, 0, len(sorted))
	curLo := new(big.Int).Set(sorted[0].Lo)
	curHi := new(big.Int).Set(sorted[0].Hi)
	next := new(big.Int)

	for _, iv := range sorted[1:] {
		next.Add(curHi, one)
		if iv.Lo.Cmp(next) > 0 {
			merged = append(merged, Interval{Lo: curLo, Hi: curHi})
			curLo = new(big.Int).Set(iv.Lo)
			curHi = new(big.Int).Set(iv.Hi)
			continue
		}
		if iv.Hi.Cmp(curHi) > 0 {
			curHi.Set(iv.Hi)
		}
	}
	merged = append(merged, Interval{Lo: curLo, Hi: curHi})

	return merged
}

// Contains reports whether x is covered by the set.
func (s Set) Contains(x *big.Int) bool {
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Hi.Cmp(x) >= 0
	})
	return i < len(s) && s[i].Contains(x)
}

// Single returns the only interval of the set, or false when the set does
// not hold exactly one interval.
func (s Set) Single() (Interval, bool) {
	if len(s) != 1 {
		return Interval{}, false
	}
	return s[0], true
}

// Size returns the number of integers covered by the set.
func (s Set) Size() *big.Int {
	total := new(big.Int)
	for _, iv := range s {
		total.Add(total, iv.Width())
		total.Add(total, one)
	}
	return total
}

func (s Set) String() string {
	parts := make([]string, len(s))
	for i, iv := range s {
		parts[i] = iv.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
