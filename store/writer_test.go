package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSeries struct {
	*MemoryStore
	mu    sync.Mutex
	calls int
	fail  int
}

func (f *failingSeries) Append(ctx context.Context, r Row) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("db down")
	}
	return f.MemoryStore.Append(ctx, r)
}

type daySink struct {
	mu   sync.Mutex
	days []DayRecord
}

func (d *daySink) AppendDayRecord(_ context.Context, r DayRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.days = append(d.days, r)
	return nil
}

func TestWriterRetriesThenSucceeds(t *testing.T) {
	series := &failingSeries{MemoryStore: NewMemoryStore(), fail: 2}
	w := NewWriter(series, nil, 4)
	w.delay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.WriteRow(Row{Timestamp: minute(0)})
	assert.Eventually(t, func() bool { return series.Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	w.Wait()
}

func TestWriterReportsExhaustedRetries(t *testing.T) {
	series := &failingSeries{MemoryStore: NewMemoryStore(), fail: 100}
	w := NewWriter(series, nil, 4)
	w.delay = time.Millisecond

	var mu sync.Mutex
	var failures []string
	w.OnFailure(func(target string) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, target)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	w.WriteRow(Row{Timestamp: minute(0)})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, TargetRows, failures[0])
	assert.Equal(t, 0, series.Len())
}

func TestWriterDrainsOnShutdown(t *testing.T) {
	series := NewMemoryStore()
	days := &daySink{}
	w := NewWriter(series, days, 8)

	for i := 0; i < 3; i++ {
		w.WriteRow(Row{Timestamp: minute(i)})
	}
	w.PublishDayRecord(DayRecord{Date: base})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, 3, series.Len())
	require.Len(t, days.days, 1)
}

func TestWriterDropsWhenFull(t *testing.T) {
	w := NewWriter(NewMemoryStore(), nil, 1)
	dropped := 0
	w.OnFailure(func(string) { dropped++ })
	w.WriteRow(Row{})
	w.WriteRow(Row{})
	assert.Equal(t, 1, dropped)
}

func TestWriterCorrectsQueuedRows(t *testing.T) {
	series := NewMemoryStore()
	w := NewWriter(series, nil, 8)
	for i := 0; i < 3; i++ {
		w.WriteRow(Row{Timestamp: minute(i), RainCounter: 20 + float64(i)*0.2})
	}
	require.NoError(t, w.AdjustRainCounter(context.Background(), minute(0), 5))
	w.WriteRow(Row{Timestamp: minute(3), RainCounter: 25.6})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	assert.Eventually(t, func() bool { return series.Len() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	w.Wait()

	rows, err := series.Since(context.Background(), minute(0))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.InDelta(t, 25.0, rows[0].RainCounter, 1e-9)
	assert.InDelta(t, 25.4, rows[2].RainCounter, 1e-9)
	assert.InDelta(t, 25.6, rows[3].RainCounter, 1e-9)
}

func TestWriterAdjustGivesUpWhenFull(t *testing.T) {
	w := NewWriter(NewMemoryStore(), nil, 1)
	w.WriteRow(Row{Timestamp: minute(0)})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.AdjustRainCounter(ctx, minute(0), 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
