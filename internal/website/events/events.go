// Package events publishes recorded ticks to the event stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"uptime/internal/website/models"
)

// TypeTickRecorded is set on the "type" header of every tick record.
const TypeTickRecorded = "tick.recorded"

// TickEvent is the record value. Records are keyed by website id so one
// website's ticks stay ordered within a partition.
type TickEvent struct {
	TickID      string    `json:"tickId"`
	WebsiteID   string    `json:"websiteId"`
	ValidatorID string    `json:"validatorId"`
	Status      string    `json:"status"`
	Latency     int64     `json:"latency"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewTickEvent(t models.Tick) TickEvent {
	return TickEvent{
		TickID:      t.ID,
		WebsiteID:   t.WebsiteID,
		ValidatorID: t.ValidatorID,
		Status:      t.Status,
		Latency:     t.Latency,
		CreatedAt:   t.CreatedAt,
	}
}

// Record encodes a tick as a Kafka record for topic.
func Record(topic string, t models.Tick) (*kgo.Record, error) {
	value, err := json.Marshal(NewTickEvent(t))
	if err != nil {
		return nil, fmt.Errorf("encode tick event: %w", err)
	}
	return &kgo.Record{
		Topic:   topic,
		Key:     []byte(t.WebsiteID),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: "type", Value: []byte(TypeTickRecorded)}},
	}, nil
}

// KafkaPublisher produces tick events synchronously.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) PublishTick(ctx context.Context, t models.Tick) error {
	rec, err := Record(p.topic, t)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish tick %s: %w", t.ID, err)
	}
	return nil
}

// Noop discards events. Used when no brokers are configured.
type Noop struct{}

func (Noop) PublishTick(context.Context, models.Tick) error { return nil }
