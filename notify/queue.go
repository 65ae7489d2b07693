package notify

import (
	"context"

	logger "github.com/sirupsen/logrus"
)

const queueSize = 16

// queue hands items from the processing goroutine to a publisher goroutine. When the
// publisher falls behind new items are dropped rather than blocking the station.
type queue[T any] struct {
	name  string
	items chan T
}

func newQueue[T any](name string) *queue[T] {
	return &queue[T]{name: name, items: make(chan T, queueSize)}
}

func (q *queue[T]) offer(v T) {
	select {
	case q.items <- v:
	default:
		logger.Warnf("[%v] queue full, dropping", q.name)
	}
}

func (q *queue[T]) run(ctx context.Context, fn func(ctx context.Context, v T) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-q.items:
			if err := fn(ctx, v); err != nil {
				logger.Errorf("[%v] publish failed [%v]", q.name, err)
			}
		}
	}
}
