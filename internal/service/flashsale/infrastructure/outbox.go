package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/flashsale/domain"
)

// relay 投递重试耗尽后事件进死信表
const outboxMaxAttempts = 5

var outboxFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flashsale_outbox_failures_total",
	Help: "Outbox relay delivery failures, partitioned by terminal or retryable.",
}, []string{"kind"})

// GormOutboxPublisher 把领域事件与业务数据写进同一个事务。
// 实现 domain.EventPublisher。
type GormOutboxPublisher struct {
	db *gorm.DB
}

func NewGormOutboxPublisher(db *gorm.DB) *GormOutboxPublisher {
	return &GormOutboxPublisher{db: db}
}

func (p *GormOutboxPublisher) Append(ctx context.Context, events ...*domain.Event) error {
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal outbox event %s: %w", ev.ID, err)
		}
		model := &OutboxEventModel{
			EventID:    ev.ID,
			Topic:      ev.Topic,
			MessageKey: ev.Key,
			Payload:    payload,
			OccurredAt: ev.OccurredAt,
		}
		if err := dbFrom(ctx, p.db).Create(model).Error; err != nil {
			return fmt.Errorf("append outbox event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// OutboxRelay 轮询 outbox 表把事件投递到 Kafka。
// 按主键顺序投递，同一消息键的事件保持写入顺序。
type OutboxRelay struct {
	db     *gorm.DB
	writer *kafka.Writer
	period time.Duration
	batch  int
}

func NewOutboxRelay(db *gorm.DB, brokers []string, period time.Duration) *OutboxRelay {
	return &OutboxRelay{
		db: db,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		period: period,
		batch:  100,
	}
}

// Run 阻塞运行到 ctx 取消。
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = r.writer.Close()
			return ctx.Err()
		case <-ticker.C:
			if err := r.relayOnce(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("🚨 outbox relay pass failed")
			}
		}
	}
}

func (r *OutboxRelay) relayOnce(ctx context.Context) error {
	var pending []OutboxEventModel
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(r.batch).
		Find(&pending).Error
	if err != nil {
		return err
	}

	for i := range pending {
		ev := &pending[i]
		werr := r.writer.WriteMessages(ctx, kafka.Message{
			Topic: ev.Topic,
			Key:   []byte(ev.MessageKey),
			Value: ev.Payload,
			Headers: []kafka.Header{
				{Key: "x-event-id", Value: []byte(ev.EventID)},
			},
		})
		if werr == nil {
			if uerr := r.db.WithContext(ctx).Model(ev).Update("published", true).Error; uerr != nil {
				return uerr
			}
			continue
		}

		ev.Attempts++
		outboxFailureCounter.WithLabelValues("retryable").Inc()
		logger.Ctx(ctx).Warn().Err(werr).Str("event_id", ev.EventID).Int("attempts", ev.Attempts).Msg("outbox delivery failed")

		if ev.Attempts >= outboxMaxAttempts {
			if derr := r.deadLetter(ctx, ev, werr); derr != nil {
				return derr
			}
			outboxFailureCounter.WithLabelValues("dead_letter").Inc()
			continue
		}
		if uerr := r.db.WithContext(ctx).Model(ev).Update("attempts", ev.Attempts).Error; uerr != nil {
			return uerr
		}
		// 同键事件必须保序，投递失败就停下这一轮
		return nil
	}
	return nil
}

func (r *OutboxRelay) deadLetter(ctx context.Context, ev *OutboxEventModel, cause error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&OutboxDeadLetterModel{
			EventID:    ev.EventID,
			Topic:      ev.Topic,
			MessageKey: ev.MessageKey,
			Payload:    ev.Payload,
			Attempts:   ev.Attempts,
			LastError:  cause.Error(),
		}).Error; err != nil {
			return err
		}
		return tx.Model(ev).Updates(map[string]interface{}{
			"published": true,
			"attempts":  ev.Attempts,
		}).Error
	})
}
