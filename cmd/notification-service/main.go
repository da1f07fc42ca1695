// cmd/notification-service/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/flashsale/domain"
)

const (
	serviceName     = "notification-service"
	servicePort     = 8083
	consumerGroupID = "flashsale-notification-group"
	deadLetterTopic = "flashsale.notifications.dlt"
)

// 本服务订阅的秒杀事件主题
var topics = []string{
	domain.TopicPurchaseSucceeded,
	domain.TopicPaymentConfirmed,
	domain.TopicOrderCancelled,
	domain.TopicReservationExpired,
}

func main() {
	if err := bootstrap.Init(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := bootstrap.GetCurrentConfig()
	brokers := cfg.Infra.Kafka.Brokers

	dlt := mq.NewKafkaWriter(brokers, deadLetterTopic)
	tracer := otel.Tracer(serviceName)
	retryCfg := mq.DefaultRetryConfig()

	var tasks []func(context.Context) error
	for _, topic := range topics {
		topic := topic
		tasks = append(tasks, func(ctx context.Context) error {
			return consumeTopic(ctx, brokers, topic, dlt, tracer, retryCfg)
		})
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:     serviceName,
		Port:            servicePort,
		BackgroundTasks: tasks,
	})
}

// consumeTopic 消费单个主题，失败走指数退避重试，重试耗尽进死信主题。
func consumeTopic(ctx context.Context, brokers []string, topic string, dlt *kafka.Writer, tracer trace.Tracer, retryCfg mq.RetryConfig) error {
	reader := mq.NewKafkaReader(brokers, topic, consumerGroupID)
	defer reader.Close()

	logger.Logger().Info().Str("topic", topic).Msg("notification consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Logger().Error().Err(err).Str("topic", topic).Msg("could not fetch message")
			continue
		}

		if err := mq.ConsumeWithRetry(ctx, retryCfg, dlt, msg, func(ctx context.Context, msg kafka.Message) error {
			return handleEvent(ctx, tracer, msg)
		}); err != nil {
			logger.Logger().Error().Err(err).Str("topic", topic).Msg("🚨 message exhausted retries, parked in dead letter topic")
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Logger().Error().Err(err).Str("topic", topic).Msg("could not commit message")
		}
	}
}

// handleEvent 把秒杀事件转成发给客户的通知。
// 这里只打日志代替真实的推送渠道（短信/邮件）。
func handleEvent(ctx context.Context, tracer trace.Tracer, msg kafka.Message) error {
	ctx = mq.ExtractTraceContext(ctx, msg.Headers)
	ctx, span := tracer.Start(ctx, "notification.HandleEvent",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		),
	)
	defer span.End()

	switch msg.Topic {
	case domain.TopicPurchaseSucceeded:
		var ev domain.PurchaseSucceededPayload
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed payload")
			return err
		}
		logger.Ctx(ctx).Info().
			Int64("customer_id", ev.CustomerID).
			Str("order_code", ev.OrderCode).
			Time("payment_deadline", ev.PaymentDeadline).
			Msg("notify: reservation confirmed, please pay before the deadline")

	case domain.TopicPaymentConfirmed:
		var ev domain.PaymentConfirmedPayload
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed payload")
			return err
		}
		logger.Ctx(ctx).Info().
			Int64("customer_id", ev.CustomerID).
			Str("order_code", ev.OrderCode).
			Float64("total_price", ev.TotalPrice).
			Msg("notify: payment received, order is being prepared")

	case domain.TopicOrderCancelled:
		var ev domain.OrderCancelledPayload
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed payload")
			return err
		}
		logger.Ctx(ctx).Info().
			Int64("customer_id", ev.CustomerID).
			Str("order_code", ev.OrderCode).
			Str("reason", ev.Reason).
			Msg("notify: order cancelled")

	case domain.TopicReservationExpired:
		var ev domain.ReservationExpiredPayload
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed payload")
			return err
		}
		logger.Ctx(ctx).Info().
			Int64("customer_id", ev.CustomerID).
			Int64("reservation_id", ev.ReservationID).
			Msg("notify: reservation expired, stock returned to the sale")

	default:
		logger.Ctx(ctx).Warn().Str("topic", msg.Topic).Msg("unknown topic, skipping")
	}

	// 模拟推送渠道的耗时
	time.Sleep(20 * time.Millisecond)
	span.AddEvent("notification dispatched")
	return nil
}
