//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"uptime/internal/platform/config"
	"uptime/internal/platform/kafka"
	"uptime/internal/website/events"
	"uptime/internal/website/models"
	"uptime/pkg/testutil/containers"
)

func TestKafkaPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t).Broker
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.KafkaConfig{Brokers: []string{broker}, TicksTopic: "uptime.ticks.test", Partitions: 3}
	client, err := kafka.NewClient(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, kafka.EnsureTopic(ctx, client, cfg.TicksTopic, cfg.Partitions))
	require.NoError(t, kafka.EnsureTopic(ctx, client, cfg.TicksTopic, cfg.Partitions), "second call is idempotent")

	pub := events.NewKafkaPublisher(client, cfg.TicksTopic)
	tick := models.Tick{ID: "t1", WebsiteID: "w1", ValidatorID: "v1", Status: "Good", Latency: 42, CreatedAt: time.Now().UTC()}
	require.NoError(t, pub.PublishTick(ctx, tick))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(cfg.TicksTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)

	var got events.TickEvent
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, "w1", string(records[0].Key))
	assert.Equal(t, "t1", got.TickID)
	assert.Equal(t, int64(42), got.Latency)
}

func TestNewClientWithoutBrokers(t *testing.T) {
	client, err := kafka.NewClient(context.Background(), config.KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
