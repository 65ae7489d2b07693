package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddItem(t *testing.T) {
	buf := NewRing[int](3)

	_, ok := buf.GetLast()
	assert.False(t, ok)

	buf.AddItem(1)
	buf.AddItem(2)
	assert.Equal(t, 2, buf.Len())

	buf.AddItem(3)
	buf.AddItem(4)
	assert.Equal(t, 3, buf.Len())

	var got []int
	buf.Each(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{2, 3, 4}, got)

	last, ok := buf.GetLast()
	assert.True(t, ok)
	assert.Equal(t, 4, last)
}

func TestReset(t *testing.T) {
	buf := NewRing[int](4)
	buf.AddItem(7)
	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	n := 0
	buf.Each(func(int) { n++ })
	assert.Equal(t, 0, n)
}

func TestSumMinMaxSince(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	buf := NewBuffer(10)
	for i, v := range []float64{1, 10, 5, 30, 8} {
		buf.AddItem(v, start.Add(time.Duration(i)*time.Minute))
	}

	s, mn, mx, n := buf.SumMinMaxSince(start.Add(time.Minute), start.Add(3*time.Minute))
	assert.Equal(t, 3, n)
	assert.Equal(t, Sum(45), s)
	assert.Equal(t, Minimum(5), mn)
	assert.Equal(t, Maximum(30), mx)

	a, ok := buf.AverageSince(start, start.Add(4*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, Average(10.8), a)

	_, ok = buf.AverageSince(start.Add(time.Hour), start.Add(2*time.Hour))
	assert.False(t, ok)
}

func TestWrapDropsOldest(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	buf := NewBuffer(3)
	for i := 0; i < 5; i++ {
		buf.AddItem(float64(i), start.Add(time.Duration(i)*time.Second))
	}

	first, ok := buf.FirstAtOrAfter(start)
	assert.True(t, ok)
	assert.Equal(t, 2.0, first.Value)

	first, ok = buf.FirstAtOrAfter(start.Add(3500 * time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 4.0, first.Value)

	_, ok = buf.FirstAtOrAfter(start.Add(time.Minute))
	assert.False(t, ok)
}
