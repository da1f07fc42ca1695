package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	attempts := 0

	err := ConsumeWithRetry(context.Background(), cfg, nil, kafka.Message{Topic: "t"}, func(context.Context, kafka.Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestConsumeWithRetryStopsAtMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond}
	attempts := 0
	boom := errors.New("boom")

	err := ConsumeWithRetry(context.Background(), cfg, nil, kafka.Message{Topic: "t"}, func(context.Context, kafka.Message) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, attempts)
}

func TestConsumeWithRetryHonorsContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- ConsumeWithRetry(ctx, cfg, nil, kafka.Message{}, func(context.Context, kafka.Message) error {
			return errors.New("always fails")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ConsumeWithRetry did not honor context cancellation")
	}
}
