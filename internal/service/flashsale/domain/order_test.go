package domain

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderCodeFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := NewOrderCode(now)

	parts := strings.SplitN(code, "-", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "FS", parts[0])

	millis, err := strconv.ParseInt(parts[1], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), millis)

	assert.Len(t, parts[2], 6)
	assert.Equal(t, strings.ToUpper(parts[2]), parts[2])
}

func TestNewOrderComputesTotals(t *testing.T) {
	now := time.Now()
	sale := &Sale{ID: 42, OriginalPrice: 39.90, FlashPrice: 29.90}
	rsv := NewReservation(42, 7, 2.5, now, 10*time.Minute)
	rsv.ID = 11

	order := NewOrder(sale, rsv, 28.00, now, 10*time.Minute)
	assert.Equal(t, int64(42), order.SaleID)
	assert.Equal(t, int64(7), order.CustomerID)
	assert.Equal(t, int64(11), order.ReservationID)
	assert.InDelta(t, 28.00*2.5, order.TotalPrice, 1e-9)
	assert.InDelta(t, (39.90-28.00)*2.5, order.DiscountAmount, 1e-9)
	assert.Equal(t, OrderPendingPayment, order.Status)
	assert.Equal(t, now.Add(10*time.Minute), order.PaymentDeadline)
}

func TestOrderPaymentWindow(t *testing.T) {
	now := time.Now()
	order := &Order{Status: OrderPendingPayment, PaymentDeadline: now.Add(time.Minute)}

	assert.True(t, order.CanPay(now))
	assert.False(t, order.CanPay(now.Add(2*time.Minute)))

	order.Status = OrderPaid
	assert.False(t, order.CanPay(now))
	assert.False(t, order.CanCancel())
}

func TestOrderCountsTowardLimit(t *testing.T) {
	counts := []OrderStatus{OrderPendingPayment, OrderPaid, OrderCompleted}
	for _, st := range counts {
		assert.True(t, (&Order{Status: st}).CountsTowardLimit(), string(st))
	}
	frees := []OrderStatus{OrderCancelled, OrderExpired, OrderRefunded}
	for _, st := range frees {
		assert.False(t, (&Order{Status: st}).CountsTowardLimit(), string(st))
	}
}

func TestReservationExpiry(t *testing.T) {
	now := time.Now()
	rsv := NewReservation(1, 2, 1.0, now, 10*time.Minute)

	assert.False(t, rsv.IsExpiredAt(now.Add(9*time.Minute)))
	assert.True(t, rsv.IsExpiredAt(now.Add(11*time.Minute)))

	rsv.Status = ReservationConverted
	assert.False(t, rsv.IsExpiredAt(now.Add(11*time.Minute)))
}
