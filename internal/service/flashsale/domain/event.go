// internal/service/flashsale/domain/event.go
package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kafka 主题。事件先落本地 outbox 表，由 relay 投递，
// 保证与业务事务原子提交。
const (
	TopicPurchaseSucceeded  = "flashsale.purchase.succeeded"
	TopicPaymentConfirmed   = "flashsale.payment.confirmed"
	TopicOrderCancelled     = "flashsale.order.cancelled"
	TopicReservationExpired = "flashsale.reservation.expired"
	TopicStockChanged       = "flashsale.stock.changed"
)

// Event 是待发布的领域事件，Key 用于 Kafka 分区（同一场次有序）。
type Event struct {
	ID         string
	Topic      string
	Key        string
	Payload    interface{}
	OccurredAt time.Time
}

func saleKey(saleID int64) string {
	return "sale-" + strconv.FormatInt(saleID, 10)
}

// PurchaseSucceededPayload 购买成功事件体。
type PurchaseSucceededPayload struct {
	EventID         string    `json:"event_id"`
	SaleID          int64     `json:"sale_id"`
	CustomerID      int64     `json:"customer_id"`
	OrderCode       string    `json:"order_code"`
	ReservationID   int64     `json:"reservation_id"`
	Quantity        float64   `json:"quantity"`
	TotalPrice      float64   `json:"total_price"`
	PaymentDeadline time.Time `json:"payment_deadline"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// PaymentConfirmedPayload 支付确认事件体。
type PaymentConfirmedPayload struct {
	EventID    string    `json:"event_id"`
	SaleID     int64     `json:"sale_id"`
	CustomerID int64     `json:"customer_id"`
	OrderCode  string    `json:"order_code"`
	Quantity   float64   `json:"quantity"`
	TotalPrice float64   `json:"total_price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderCancelledPayload 订单取消事件体，Reason 区分客户取消与超时过期。
type OrderCancelledPayload struct {
	EventID    string    `json:"event_id"`
	SaleID     int64     `json:"sale_id"`
	CustomerID int64     `json:"customer_id"`
	OrderCode  string    `json:"order_code"`
	Quantity   float64   `json:"quantity"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReservationExpiredPayload 预留超时回收事件体。
type ReservationExpiredPayload struct {
	EventID       string    `json:"event_id"`
	SaleID        int64     `json:"sale_id"`
	CustomerID    int64     `json:"customer_id"`
	ReservationID int64     `json:"reservation_id"`
	Quantity      float64   `json:"quantity"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StockChangedPayload 库存变动事件体，推送网关靠它刷新实时看板。
type StockChangedPayload struct {
	EventID    string    `json:"event_id"`
	SaleID     int64     `json:"sale_id"`
	Available  float64   `json:"available"`
	Sold       float64   `json:"sold"`
	Reserved   float64   `json:"reserved"`
	SoldOut    bool      `json:"sold_out"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewPurchaseSucceededEvent(o *Order, now time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:    id,
		Topic: TopicPurchaseSucceeded,
		Key:   o.OrderCode,
		Payload: PurchaseSucceededPayload{
			EventID:         id,
			SaleID:          o.SaleID,
			CustomerID:      o.CustomerID,
			OrderCode:       o.OrderCode,
			ReservationID:   o.ReservationID,
			Quantity:        o.Quantity,
			TotalPrice:      o.TotalPrice,
			PaymentDeadline: o.PaymentDeadline,
			OccurredAt:      now,
		},
		OccurredAt: now,
	}
}

func NewPaymentConfirmedEvent(o *Order, now time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:    id,
		Topic: TopicPaymentConfirmed,
		Key:   o.OrderCode,
		Payload: PaymentConfirmedPayload{
			EventID:    id,
			SaleID:     o.SaleID,
			CustomerID: o.CustomerID,
			OrderCode:  o.OrderCode,
			Quantity:   o.Quantity,
			TotalPrice: o.TotalPrice,
			OccurredAt: now,
		},
		OccurredAt: now,
	}
}

func NewOrderCancelledEvent(o *Order, reason string, now time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:    id,
		Topic: TopicOrderCancelled,
		Key:   o.OrderCode,
		Payload: OrderCancelledPayload{
			EventID:    id,
			SaleID:     o.SaleID,
			CustomerID: o.CustomerID,
			OrderCode:  o.OrderCode,
			Quantity:   o.Quantity,
			Reason:     reason,
			OccurredAt: now,
		},
		OccurredAt: now,
	}
}

func NewReservationExpiredEvent(r *Reservation, now time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:    id,
		Topic: TopicReservationExpired,
		Key:   saleKey(r.SaleID),
		Payload: ReservationExpiredPayload{
			EventID:       id,
			SaleID:        r.SaleID,
			CustomerID:    r.CustomerID,
			ReservationID: r.ID,
			Quantity:      r.Quantity,
			OccurredAt:    now,
		},
		OccurredAt: now,
	}
}

func NewStockChangedEvent(s *Sale, now time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:    id,
		Topic: TopicStockChanged,
		Key:   saleKey(s.ID),
		Payload: StockChangedPayload{
			EventID:    id,
			SaleID:     s.ID,
			Available:  s.AvailableQuantity(),
			Sold:       s.SoldQuantity,
			Reserved:   s.ReservedQuantity,
			SoldOut:    s.IsSoldOut(),
			OccurredAt: now,
		},
		OccurredAt: now,
	}
}
