// Package trajectory provides time-sorted sample series and pose
// interpolation over them.
package trajectory

import "sort"

// Sample pairs a timestamp (seconds) with a record.
type Sample[T any] struct {
	Time  float64
	Value T
}

// Series is a time-sorted sequence of samples with unique timestamps.
// Inserting an existing timestamp replaces the stored record.
type Series[T any] struct {
	samples []Sample[T]
}

// NewSeries returns an empty series.
func NewSeries[T any]() *Series[T] {
	return &Series[T]{}
}

// Len returns the number of samples.
func (s *Series[T]) Len() int { return len(s.samples) }

// Insert places a record at the given time, keeping the series sorted.
func (s *Series[T]) Insert(t float64, v T) {
	i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].Time >= t })
	if i < len(s.samples) && s.samples[i].Time == t {
		s.samples[i].Value = v
		return
	}
	s.samples = append(s.samples, Sample[T]{})
	copy(s.samples[i+1:], s.samples[i:])
	s.samples[i] = Sample[T]{Time: t, Value: v}
}

// First returns the earliest sample. Only valid when Len() > 0.
func (s *Series[T]) First() Sample[T] { return s.samples[0] }

// Last returns the latest sample. Only valid when Len() > 0.
func (s *Series[T]) Last() Sample[T] { return s.samples[len(s.samples)-1] }

// Each calls fn for every sample in time order.
func (s *Series[T]) Each(fn func(Sample[T]) bool) {
	for _, smp := range s.samples {
		if !fn(smp) {
			return
		}
	}
}

// bracket returns the pair of indexes (i-1, i) such that
// time[i-1] < t <= time[i]. Callers must check the bounds first.
func (s *Series[T]) bracket(t float64) (int, int) {
	i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].Time >= t })
	if i == 0 {
		return 0, 0
	}
	return i - 1, i
}
