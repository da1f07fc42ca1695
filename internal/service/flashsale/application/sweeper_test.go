package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"atelier/internal/service/flashsale/domain"
)

func newSweeper(f *fixture) *Sweeper {
	return NewSweeper(f.svc, noop.NewTracerProvider().Tracer("test"),
		5*time.Second, 30*time.Second, time.Minute)
}

func TestSweepReservationsReleasesExpiredExactlyOnce(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 3.0))
	require.NoError(t, err)
	require.InDelta(t, 3.0, f.store.getSale(sale.ID).ReservedQuantity, 1e-9)

	f.clock.Advance(11 * time.Minute)

	n, err := w.SweepReservations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored := f.store.getSale(sale.ID)
	assert.InDelta(t, 0, stored.ReservedQuantity, 1e-9)
	assert.Equal(t, domain.ReservationExpired, f.store.getReservation(res.ReservationID).Status)
	assert.Contains(t, f.store.eventTopics(), domain.TopicReservationExpired)

	// 幂等性：再跑一轮什么都不会发生
	n, err = w.SweepReservations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.InDelta(t, 0, f.store.getSale(sale.ID).ReservedQuantity, 1e-9)
}

func TestSweepReservationsSkipsConvertedReservations(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 3.0))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(context.Background(), res.OrderCode, 100, "WECHAT_PAY")
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)

	n, err := w.SweepReservations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	stored := f.store.getSale(sale.ID)
	assert.InDelta(t, 3.0, stored.SoldQuantity, 1e-9)
	assert.InDelta(t, 0, stored.ReservedQuantity, 1e-9)
}

func TestSweepOrdersExpiresOverduePending(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)

	n, err := w.SweepOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	order := f.store.getOrder(res.OrderCode)
	assert.Equal(t, domain.OrderExpired, order.Status)
	assert.Equal(t, domain.ReservationExpired, f.store.getReservation(res.ReservationID).Status)
	assert.InDelta(t, 0, f.store.getSale(sale.ID).ReservedQuantity, 1e-9)

	// 订单清扫已经回收了预留，预留清扫不能再扣一次
	n, err = w.SweepReservations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.InDelta(t, 0, f.store.getSale(sale.ID).ReservedQuantity, 1e-9)
}

func TestSweepReservationsReplenishesStockGate(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	sale := f.seedSale(10.0, 5.0, 0.5)
	gate := &countingStockGate{balance: 10.0}
	f.svc.stockGate = gate

	// 十个客户把闸口余量全部占满
	for i := int64(0); i < 10; i++ {
		_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100+i, 1.0))
		require.NoError(t, err)
	}
	require.InDelta(t, 0, gate.available(), 1e-9)

	// 谁都没付款，预留全部超时回收
	f.clock.Advance(11 * time.Minute)
	n, err := w.SweepReservations(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(10), n)
	assert.InDelta(t, 10.0, f.store.getSale(sale.ID).AvailableQuantity(), 1e-9)

	// 闸口余量必须跟着回来，否则数据库有货闸口却永远拒绝
	assert.InDelta(t, 10.0, gate.available(), 1e-9)
	_, err = f.svc.Purchase(context.Background(), buyCmd(sale.ID, 200, 1.0))
	require.NoError(t, err)
}

func TestSweepOrdersReplenishesStockGate(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	sale := f.seedSale(10.0, 5.0, 0.5)
	gate := &countingStockGate{balance: 10.0}
	f.svc.stockGate = gate

	_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)
	require.InDelta(t, 8.0, gate.available(), 1e-9)

	f.clock.Advance(11 * time.Minute)
	n, err := w.SweepOrders(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	assert.InDelta(t, 10.0, gate.available(), 1e-9)
}

func TestSweepOrdersSkipsJustPaidOrders(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(context.Background(), res.OrderCode, 100, "WECHAT_PAY")
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	n, err := w.SweepOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, domain.OrderPaid, f.store.getOrder(res.OrderCode).Status)
	assert.Equal(t, domain.ReservationConverted, f.store.getReservation(res.ReservationID).Status)
	assert.InDelta(t, 2.0, f.store.getSale(sale.ID).SoldQuantity, 1e-9)
}

func TestSweepOrdersContinuesPastFailingRow(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	broken := f.seedSale(10.0, 5.0, 0.5)
	healthy := f.seedSale(10.0, 5.0, 0.5)

	_, err := f.svc.Purchase(context.Background(), buyCmd(broken.ID, 100, 1.0))
	require.NoError(t, err)
	res, err := f.svc.Purchase(context.Background(), buyCmd(healthy.ID, 100, 1.0))
	require.NoError(t, err)

	// 弄坏第一笔订单的场次行，它的过期事务必然失败
	f.store.mu.Lock()
	delete(f.store.sales, broken.ID)
	f.store.mu.Unlock()

	f.clock.Advance(11 * time.Minute)
	n, err := w.SweepOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 坏行只记日志跳过，好行照常过期
	assert.Equal(t, domain.OrderExpired, f.store.getOrder(res.OrderCode).Status)
	assert.InDelta(t, 0, f.store.getSale(healthy.ID).ReservedQuantity, 1e-9)
}

func TestCancelAfterSweepDoesNotDoubleReturnStock(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	n, err := w.SweepReservations(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// 预留已被回收但订单还在待支付，客户此刻取消：
	// 订单照常转 CANCELLED，库存不能再归还一次
	view, err := f.svc.CancelOrder(context.Background(), res.OrderCode, 100)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderCancelled), view.Status)
	assert.InDelta(t, 0, f.store.getSale(sale.ID).ReservedQuantity, 1e-9)
}

func TestSweepLifecycleAdvancesSales(t *testing.T) {
	f := newFixture(t)
	w := newSweeper(f)
	now := f.clock.Now()

	due := &domain.Sale{TotalQuantity: 10, MaxPerUser: 5, MinPurchase: 0.5, Status: domain.SaleScheduled, StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour)}
	over := &domain.Sale{TotalQuantity: 10, MaxPerUser: 5, MinPurchase: 0.5, Status: domain.SaleActive, StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Minute)}
	future := &domain.Sale{TotalQuantity: 10, MaxPerUser: 5, MinPurchase: 0.5, Status: domain.SaleScheduled, StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)}
	f.store.putSale(due)
	f.store.putSale(over)
	f.store.putSale(future)

	n, err := w.SweepLifecycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, domain.SaleActive, f.store.getSale(due.ID).Status)
	assert.Equal(t, domain.SaleEnded, f.store.getSale(over.ID).Status)
	assert.Equal(t, domain.SaleScheduled, f.store.getSale(future.ID).Status)

	// 幂等
	n, err = w.SweepLifecycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
