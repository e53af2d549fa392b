// Package series holds the normalized monthly index series and the normalizer that builds
// it from raw provider rows.
package series

import (
	"sort"

	"github.com/tovarich86/calculadora-cidada/pkg/period"
)

// RawPoint is one provider row: a YYYYMM period code and the value token as received.
type RawPoint struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// IndexPoint is the index level recorded for a month.
type IndexPoint struct {
	Period period.Period `json:"period"`
	Value  float64       `json:"value"`
}

// Series is an immutable sequence of index points, strictly increasing by period.
// The zero value is an empty series.
type Series struct {
	points []IndexPoint
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.points) }

// Empty reports whether the series has no points.
func (s Series) Empty() bool { return len(s.points) == 0 }

// At returns the i-th point.
func (s Series) At(i int) IndexPoint { return s.points[i] }

// Points returns a copy of every point.
func (s Series) Points() []IndexPoint {
	return append([]IndexPoint(nil), s.points...)
}

// First returns the earliest point.
func (s Series) First() (IndexPoint, bool) {
	if len(s.points) == 0 {
		return IndexPoint{}, false
	}
	return s.points[0], true
}

// Last returns the latest point.
func (s Series) Last() (IndexPoint, bool) {
	if len(s.points) == 0 {
		return IndexPoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// Lookup finds the point recorded for p.
func (s Series) Lookup(p period.Period) (IndexPoint, bool) {
	i := s.search(p)
	if i < len(s.points) && s.points[i].Period.Equal(p) {
		return s.points[i], true
	}
	return IndexPoint{}, false
}

// Window returns a copy of the points whose period lies in [start, end].
func (s Series) Window(start, end period.Period) []IndexPoint {
	if end.Before(start) {
		return nil
	}
	lo := s.search(start)
	hi := s.search(end.Next())
	if lo >= hi {
		return nil
	}
	return append([]IndexPoint(nil), s.points[lo:hi]...)
}

// search returns the index of the first point not before p.
func (s Series) search(p period.Period) int {
	return sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Period.Before(p)
	})
}

// FromPoints builds a Series from already parsed points, applying the same ordering and
// duplicate policy as Normalize.
func FromPoints(points []IndexPoint) Series {
	sorted := append([]IndexPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period.Before(sorted[j].Period)
	})
	out := sorted[:0]
	for _, p := range sorted {
		// Stable sort keeps input order among equal periods, so the first one wins.
		if len(out) > 0 && out[len(out)-1].Period.Equal(p.Period) {
			continue
		}
		out = append(out, p)
	}
	return Series{points: out}
}
