package kafka_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/actflow/pkg/channels/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestCreateChannel_NoBrokers(t *testing.T) {
	logger := watermill.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	_, _, err := kafka.CreateChannel(logger, "actflow", []string{""})
	require.ErrorIs(t, err, kafka.ErrNoBrokers)
}

func TestCreateChannel_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	ctx := context.Background()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	logger := watermill.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))

	pub, sub, err := kafka.CreateChannel(logger, "actflow-test", brokers)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pub.Close()
		_ = sub.Close()
	})

	subCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	messages, err := sub.Subscribe(subCtx, "actflow.test")
	require.NoError(t, err)

	require.NoError(t, pub.Publish("actflow.test", message.NewMessage(watermill.NewUUID(), []byte(`{"id":"act-1"}`))))

	select {
	case msg := <-messages:
		assert.JSONEq(t, `{"id":"act-1"}`, string(msg.Payload))
		msg.Ack()
	case <-subCtx.Done():
		t.Fatal("no message received")
	}
}
