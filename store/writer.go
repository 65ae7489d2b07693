package store

import (
	"context"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/env"
	logger "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	TargetRows = "rows"
	TargetDays = "days"
)

type job struct {
	row    *Row
	day    *DayRecord
	adjust *adjustment
}

type adjustment struct {
	from   time.Time
	offset float64
}

// Writer moves database writes off the ingest path. A full queue drops the write,
// an open circuit fails it immediately.
type Writer struct {
	rows      TimeSeries
	days      DayRecordSink
	queue     chan job
	cb        *gobreaker.CircuitBreaker
	retries   int
	delay     time.Duration
	timeout   time.Duration
	mu        sync.Mutex
	onFailure func(target string)
	done      chan struct{}
}

func NewWriter(rows TimeSeries, days DayRecordSink, size int) *Writer {
	return &Writer{
		rows:    rows,
		days:    days,
		queue:   make(chan job, size),
		retries: env.DBWriteRetries,
		delay:   time.Millisecond * 200,
		timeout: time.Second * 5,
		done:    make(chan struct{}),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "store-writer",
			Timeout: time.Second * 30,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warnf("Circuit [%v] changed from [%v] to [%v]", name, from, to)
			},
		}),
	}
}

// OnFailure registers a callback for writes abandoned after their retries.
func (w *Writer) OnFailure(fn func(target string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFailure = fn
}

func (w *Writer) WriteRow(r Row) {
	w.enqueue(job{row: &r})
}

// PublishDayRecord queues a completed day for the day_records table.
func (w *Writer) PublishDayRecord(d DayRecord) {
	if w.days == nil {
		return
	}
	w.enqueue(job{day: &d})
}

// AdjustRainCounter queues the correction behind any rows still waiting so those are corrected too.
// It blocks until queued or ctx is done.
func (w *Writer) AdjustRainCounter(ctx context.Context, from time.Time, offset float64) error {
	select {
	case w.queue <- job{adjust: &adjustment{from: from, offset: offset}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) enqueue(j job) {
	select {
	case w.queue <- j:
	default:
		logger.Errorf("Store queue full, dropping write")
		w.failed(target(j))
	}
}

func target(j job) string {
	if j.day != nil {
		return TargetDays
	}
	return TargetRows
}

// Run processes queued writes until ctx is cancelled, then drains what is left.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case j := <-w.queue:
			w.process(ctx, j)
		case <-ctx.Done():
			for {
				select {
				case j := <-w.queue:
					w.process(context.Background(), j)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *Writer) Wait() {
	<-w.done
}

func (w *Writer) process(ctx context.Context, j job) {
	var err error
	for attempt := 1; attempt <= w.retries; attempt++ {
		_, err = w.cb.Execute(func() (interface{}, error) {
			wctx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()
			if j.day != nil {
				return nil, w.days.AppendDayRecord(wctx, *j.day)
			}
			if j.adjust != nil {
				return nil, w.rows.AdjustRainCounter(wctx, j.adjust.from, j.adjust.offset)
			}
			return nil, w.rows.Append(wctx, *j.row)
		})
		if err == nil {
			return
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
		if attempt < w.retries {
			time.Sleep(w.delay)
		}
	}
	logger.Errorf("Failed to write [%v] [%v]", target(j), err)
	w.failed(target(j))
}

func (w *Writer) failed(t string) {
	w.mu.Lock()
	fn := w.onFailure
	w.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}
