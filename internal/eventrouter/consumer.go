package eventrouter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

var (
	eventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventrouter_events_consumed_total",
			Help: "Total number of cross-instance events consumed from Kafka",
		},
		[]string{"kind"},
	)
	consumeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventrouter_consume_duration_seconds",
			Help:    "Duration of Kafka consume operations for cross-instance events",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(eventsConsumed, consumeDuration)
}

// Consumer is the read side of cross-instance fan-out: it tails the shared
// events topic another instance's Router may have written to and redelivers
// to this instance's Hub if the target account's live channel is bound here.
// Grounded in the teacher's internal/kafka/consumer.go MessageConsumer,
// simplified from its five-way type-sniffing dispatch to a single typed
// payload since every event on this topic is already a realtime.EventToClient.
type Consumer struct {
	reader *kafka.Reader
	hub    LocalHub
}

func NewConsumer(brokers []string, topic, groupID string, hub LocalHub) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return &Consumer{reader: r, hub: hub}
}

// Run blocks fetching and redelivering messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("eventrouter consume failed", "error", err)
			continue
		}

		start := time.Now()
		var event realtime.EventToClient
		if err := json.Unmarshal(m.Value, &event); err != nil {
			slog.Error("eventrouter message decode failed", "error", err, "offset", m.Offset)
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				slog.Error("eventrouter commit failed", "error", err)
			}
			continue
		}

		if event.Account == broadcastAccount {
			c.hub.Broadcast(event)
		} else {
			c.hub.DeliverLocal(event.Account, event)
		}

		eventsConsumed.WithLabelValues(string(event.Kind)).Inc()
		consumeDuration.WithLabelValues(string(event.Kind)).Observe(time.Since(start).Seconds())

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			slog.Error("eventrouter commit failed", "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
