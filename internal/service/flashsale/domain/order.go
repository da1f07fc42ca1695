// internal/service/flashsale/domain/order.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus 秒杀订单状态机：
// PENDING_PAYMENT -> PAID -> COMPLETED
// PENDING_PAYMENT -> CANCELLED | EXPIRED
// PAID -> REFUNDED
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderExpired        OrderStatus = "EXPIRED"
	OrderRefunded       OrderStatus = "REFUNDED"
)

// ShippingInfo 下单时的收货快照，后续修改地址不影响已有订单。
type ShippingInfo struct {
	Name    string
	Phone   string
	Address string
}

// Order 是秒杀成功后生成的待支付订单，与一条预留一一对应。
type Order struct {
	ID            int64
	OrderCode     string
	SaleID        int64
	CustomerID    int64
	ReservationID int64

	Quantity       float64
	UnitPrice      float64
	TotalPrice     float64
	DiscountAmount float64

	Status          OrderStatus
	PaymentDeadline time.Time
	PaymentMethod   string
	PaidAt          *time.Time

	Shipping     ShippingInfo
	CustomerNote string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrderCode 生成订单号，格式 FS-<毫秒时间戳>-<6位大写随机串>。
func NewOrderCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("FS-%d-%s", now.UnixMilli(), suffix)
}

// NewOrder 创建一条待支付订单，window 是支付窗口时长。
func NewOrder(sale *Sale, rsv *Reservation, unitPrice float64, now time.Time, window time.Duration) *Order {
	discount := (sale.OriginalPrice - unitPrice) * rsv.Quantity
	if discount < 0 {
		discount = 0
	}
	return &Order{
		OrderCode:       NewOrderCode(now),
		SaleID:          sale.ID,
		CustomerID:      rsv.CustomerID,
		ReservationID:   rsv.ID,
		Quantity:        rsv.Quantity,
		UnitPrice:       unitPrice,
		TotalPrice:      unitPrice * rsv.Quantity,
		DiscountAmount:  discount,
		Status:          OrderPendingPayment,
		PaymentDeadline: now.Add(window),
		CreatedAt:       now,
	}
}

// CanPay 只有待支付且未过支付截止时间的订单可以确认支付。
func (o *Order) CanPay(now time.Time) bool {
	return o.Status == OrderPendingPayment && now.Before(o.PaymentDeadline)
}

// CanCancel 只有待支付订单可以被客户主动取消。
func (o *Order) CanCancel() bool {
	return o.Status == OrderPendingPayment
}

// CountsTowardLimit 判断该订单的数量是否仍占用客户的限购额度。
// 已取消、已过期、已退款的订单释放额度。
func (o *Order) CountsTowardLimit() bool {
	switch o.Status {
	case OrderCancelled, OrderExpired, OrderRefunded:
		return false
	}
	return true
}
