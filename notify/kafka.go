package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/store"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaDayRecords streams each completed day, keyed by its date so a replay overwrites
// rather than duplicates on a compacted topic.
type KafkaDayRecords struct {
	writer messageWriter
	days   *queue[store.DayRecord]
}

func NewKafkaDayRecords(cfg env.KafkaConfig) *KafkaDayRecords {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.TopicDayRecord,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newKafkaDayRecords(w)
}

func newKafkaDayRecords(w messageWriter) *KafkaDayRecords {
	return &KafkaDayRecords{writer: w, days: newQueue[store.DayRecord]("kafka")}
}

func (k *KafkaDayRecords) PublishDayRecord(d store.DayRecord) {
	k.days.offer(d)
}

func (k *KafkaDayRecords) Run(ctx context.Context) {
	k.days.run(ctx, k.write)
}

func (k *KafkaDayRecords) write(ctx context.Context, d store.DayRecord) error {
	msg, err := dayMessage(d)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write day record: %w", err)
	}
	return nil
}

func dayMessage(d store.DayRecord) (kafkago.Message, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize day record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(d.Date.Format("2006-01-02")),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte("day")},
		},
	}, nil
}

func (k *KafkaDayRecords) Close() error {
	return k.writer.Close()
}
