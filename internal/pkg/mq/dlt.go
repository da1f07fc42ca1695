// internal/pkg/mq/dlt.go
package mq

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"atelier/internal/pkg/logger"
)

// 死信消息头，记录消息的来源和失败原因，便于人工排查。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
	HeaderRetryAttempts     = "x-retry-attempts"
)

// RetryConfig 控制消费失败后的重试行为。
type RetryConfig struct {
	MaxAttempts int           // 含首次处理在内的最大尝试次数
	BaseBackoff time.Duration // 首次重试的等待时间，之后指数增长
}

// DefaultRetryConfig 是消费侧的默认重试参数：3 次尝试，500ms 起步。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond}
}

// ConsumeWithRetry 按重试策略执行 handle；全部失败后把消息转投死信 Topic。
// 返回 nil 表示消息已被妥善处理（成功、或已入死信），调用方可以提交 offset。
func ConsumeWithRetry(ctx context.Context, cfg RetryConfig, dlt *kafka.Writer, msg kafka.Message, handle func(context.Context, kafka.Message) error) error {
	var lastErr error
	backoff := cfg.BaseBackoff
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = handle(ctx, msg)
		if lastErr == nil {
			return nil
		}
		logger.Ctx(ctx).Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Str("topic", msg.Topic).
			Msg("message handling failed, will retry")
		if attempt < cfg.MaxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}

	if dlt == nil {
		return lastErr
	}
	return SendToDeadLetter(ctx, dlt, msg, cfg.MaxAttempts, lastErr)
}

// SendToDeadLetter 把处理失败的消息连同来源信息转投死信 Topic。
func SendToDeadLetter(ctx context.Context, dlt *kafka.Writer, msg kafka.Message, attempts int, cause error) error {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
			kafka.Header{Key: HeaderRetryAttempts, Value: []byte(strconv.Itoa(attempts))},
		),
	}
	InjectTraceContext(ctx, &dead.Headers)
	if err := dlt.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("topic", msg.Topic).
			Msg("🚨 CRITICAL: failed to forward message to dead letter topic")
		return err
	}
	logger.Ctx(ctx).Error().
		Str("original_topic", msg.Topic).
		Str("key", string(msg.Key)).
		Err(cause).
		Msg("message moved to dead letter topic")
	return nil
}
