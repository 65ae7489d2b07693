package buffer

import (
	"math"
	"sync"
	"time"
)

type Average float64
type Minimum float64
type Maximum float64
type Sum float64

// Ring is a preallocated circular buffer with a write cursor and a count.
// Once full the oldest entry is overwritten, it is never resized.
type Ring[T any] struct {
	position int
	count    int
	size     int
	data     []T
	lock     sync.Mutex
}

func NewRing[T any](size int) *Ring[T] {
	return &Ring[T]{
		size: size,
		data: make([]T, size),
	}
}

func (b *Ring[T]) AddItem(val T) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.data[b.position] = val
	b.position += 1
	if b.position == b.size {
		b.position = 0
	}
	if b.count < b.size {
		b.count++
	}
}

// Each calls fn for every stored entry, oldest first, with the ring locked.
func (b *Ring[T]) Each(fn func(T)) {
	b.lock.Lock()
	defer b.lock.Unlock()
	index := b.position - b.count
	if index < 0 {
		// we are at the start of the array, so need to reverse wrap
		index += b.size
	}
	for i := 0; i < b.count; i++ {
		fn(b.data[index])
		index += 1
		if index == b.size {
			index = 0
		}
	}
}

func (b *Ring[T]) GetLast() (T, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	var zero T
	if b.count == 0 {
		return zero, false
	}
	index := b.position - 1
	if index < 0 {
		index += b.size
	}
	return b.data[index], true
}

func (b *Ring[T]) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.position = 0
	b.count = 0
}

func (b *Ring[T]) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.count
}

// Sample is a timestamped reading.
type Sample struct {
	Value     float64
	Timestamp time.Time
}

// SampleBuffer is a ring of timestamped values queried by time window.
type SampleBuffer struct {
	ring *Ring[Sample]
}

func NewBuffer(size int) *SampleBuffer {
	return &SampleBuffer{ring: NewRing[Sample](size)}
}

func (b *SampleBuffer) AddItem(val float64, ts time.Time) {
	b.ring.AddItem(Sample{Value: val, Timestamp: ts})
}

func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

// SumMinMaxSince aggregates the samples with from <= ts <= to.
func (b *SampleBuffer) SumMinMaxSince(from, to time.Time) (Sum, Minimum, Maximum, int) {
	min := math.MaxFloat64
	max := -math.MaxFloat64
	sum := 0.0
	n := 0
	b.ring.Each(func(s Sample) {
		if !inWindow(s.Timestamp, from, to) {
			return
		}
		sum += s.Value
		if s.Value > max {
			max = s.Value
		}
		if s.Value < min {
			min = s.Value
		}
		n++
	})
	if n == 0 {
		return 0, 0, 0, 0
	}
	return Sum(sum), Minimum(min), Maximum(max), n
}

func (b *SampleBuffer) AverageSince(from, to time.Time) (Average, bool) {
	s, _, _, n := b.SumMinMaxSince(from, to)
	if n == 0 {
		return 0, false
	}
	return Average(float64(s) / float64(n)), true
}

// FirstAtOrAfter returns the oldest sample stamped at or after t.
func (b *SampleBuffer) FirstAtOrAfter(t time.Time) (Sample, bool) {
	var found Sample
	ok := false
	b.ring.Each(func(s Sample) {
		if s.Timestamp.Before(t) {
			return
		}
		if !ok || s.Timestamp.Before(found.Timestamp) {
			found = s
			ok = true
		}
	})
	return found, ok
}

func (b *SampleBuffer) GetLast() (Sample, bool) {
	return b.ring.GetLast()
}

func (b *SampleBuffer) Reset() {
	b.ring.Reset()
}
