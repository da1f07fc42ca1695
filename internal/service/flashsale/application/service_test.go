package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"atelier/internal/service/flashsale/domain"
	"atelier/internal/service/flashsale/domain/port"
)

type fixture struct {
	store       *memStore
	gate        *memStockGate
	clock       *fakeClock
	eligibility *memEligibility
	svc         *FlashSaleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	gate := newMemStockGate()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	eligibility := &memEligibility{}

	svc := NewFlashSaleService(ServiceParams{
		SaleRepo:  &memSaleRepo{store: store},
		RsvRepo:   &memReservationRepo{store: store},
		OrderRepo: &memOrderRepo{store: store},
		Tx:        &memTxManager{store: store},
		Publisher: &memPublisher{store: store},

		Locker:      newMemLocker(),
		StockGate:   gate,
		Eligibility: eligibility,

		Tracer: noop.NewTracerProvider().Tracer("test"),
		Clock:  clock.Now,

		HoldDuration:  10 * time.Minute,
		PaymentWindow: 10 * time.Minute,
		LockTimeout:   3 * time.Second,
	})
	return &fixture{store: store, gate: gate, clock: clock, eligibility: eligibility, svc: svc}
}

func (f *fixture) seedSale(total, maxPerUser, minPurchase float64) *domain.Sale {
	now := f.clock.Now()
	sale := &domain.Sale{
		FabricID:      7,
		FabricName:    "silk charmeuse",
		Name:          "weekend silk drop",
		OriginalPrice: 48.00,
		FlashPrice:    29.90,
		TotalQuantity: total,
		MaxPerUser:    maxPerUser,
		MinPurchase:   minPurchase,
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		Status:        domain.SaleActive,
	}
	f.store.putSale(sale)
	return sale
}

func buyCmd(saleID, customerID int64, qty float64) PurchaseCommand {
	return PurchaseCommand{
		SaleID:     saleID,
		CustomerID: customerID,
		Quantity:   qty,
		Profile:    port.CustomerProfile{CustomerID: customerID},
	}
}

func TestPurchaseReservesStockAndCreatesOrder(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)

	result, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.5))
	require.NoError(t, err)

	assert.Regexp(t, `^FS-\d+-[A-Z0-9]{6}$`, result.OrderCode)
	assert.InDelta(t, 2.5, result.Quantity, 1e-9)
	assert.InDelta(t, 29.90*2.5, result.TotalPrice, 1e-9)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), result.PaymentDeadline)

	stored := f.store.getSale(sale.ID)
	assert.InDelta(t, 2.5, stored.ReservedQuantity, 1e-9)
	assert.InDelta(t, 0, stored.SoldQuantity, 1e-9)
	assert.InDelta(t, 7.5, stored.AvailableQuantity(), 1e-9)

	rsv := f.store.getReservation(result.ReservationID)
	require.NotNil(t, rsv)
	assert.Equal(t, domain.ReservationActive, rsv.Status)

	order := f.store.getOrder(result.OrderCode)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderPendingPayment, order.Status)

	assert.Contains(t, f.store.eventTopics(), domain.TopicPurchaseSucceeded)
	assert.Contains(t, f.store.eventTopics(), domain.TopicStockChanged)
}

func TestPurchaseRejectsBelowMinimum(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 1.0)

	_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 0.5))
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeBelowMinimum, pe.Code)

	// 数量为零或负数同样拒绝
	_, err = f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 0))
	pe, ok = domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeBelowMinimum, pe.Code)
}

func TestPurchaseRejectsWhenNotOpen(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	cases := map[string]*domain.Sale{
		"scheduled": {TotalQuantity: 10, MaxPerUser: 5, MinPurchase: 0.5, Status: domain.SaleScheduled, StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)},
		"ended":     {TotalQuantity: 10, MaxPerUser: 5, MinPurchase: 0.5, Status: domain.SaleEnded, StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)},
		"cancelled": {TotalQuantity: 10, MaxPerUser: 5, MinPurchase: 0.5, Status: domain.SaleCancelled, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
		"past end time but still marked active": {TotalQuantity: 10, MaxPerUser: 5, MinPurchase: 0.5, Status: domain.SaleActive, StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Minute)},
	}
	for name, sale := range cases {
		t.Run(name, func(t *testing.T) {
			f.store.putSale(sale)
			_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 1.0))
			pe, ok := domain.AsPurchaseError(err)
			require.True(t, ok)
			assert.Equal(t, domain.CodeNotActive, pe.Code)
		})
	}
}

func TestPurchaseRejectsOutOfStock(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(3.0, 10.0, 0.5)

	_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 5.0))
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeOutOfStock, pe.Code)
	assert.InDelta(t, 3.0, pe.Available, 1e-9)

	// 预检闸扣掉的数量必须补偿回去
	assert.Equal(t, 1, f.gate.releaseCount())
}

func TestGateRejectionReportsCurrentAvailability(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)
	stored := f.store.getSale(sale.ID)
	stored.EligibilityRule = "true"
	f.store.putSale(stored)

	// 规则求值的钩子模拟并发买家：预检快照读出来之后、
	// 闸口拒绝之前，库存被别人买走了一大截
	f.eligibility.evaluate = func(port.CustomerProfile) bool {
		s := f.store.getSale(sale.ID)
		s.SoldQuantity = 9.5
		f.store.putSale(s)
		return true
	}
	f.gate.allow = false

	_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 1.0))
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeOutOfStock, pe.Code)
	// 错误里的余量必须是重读后的权威值，不是预检旧快照的 10.0
	assert.InDelta(t, 0.5, pe.Available, 1e-9)
}

func TestPurchaseRechecksMinimumUnderLock(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)
	stored := f.store.getSale(sale.ID)
	stored.EligibilityRule = "true"
	f.store.putSale(stored)

	// 预检通过之后管理员把起购量抬高，锁内必须按新值重验
	f.eligibility.evaluate = func(port.CustomerProfile) bool {
		s := f.store.getSale(sale.ID)
		s.MinPurchase = 2.0
		f.store.putSale(s)
		return true
	}

	_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 1.0))
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeBelowMinimum, pe.Code)
	f.store.mu.Lock()
	assert.Empty(t, f.store.orders) // 没有落任何订单
	f.store.mu.Unlock()
	assert.InDelta(t, 0, f.store.getSale(sale.ID).ReservedQuantity, 1e-9)
	assert.Equal(t, 1, f.gate.releaseCount())
}

func TestPurchaseRejectsOverPerCustomerLimit(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(100.0, 5.0, 0.5)

	_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 3.0))
	require.NoError(t, err)

	// 同一客户还有 ACTIVE 预留时先撞重复预留的约束，
	// 换一个把订单付掉的客户来验证额度累计。
	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 200, 3.0))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(context.Background(), res.OrderCode, 200, "WECHAT_PAY")
	require.NoError(t, err)

	_, err = f.svc.Purchase(context.Background(), buyCmd(sale.ID, 200, 2.5))
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeLimitExceeded, pe.Code)
	assert.InDelta(t, 2.0, pe.Remaining, 1e-9)
}

func TestCancelledOrdersFreeUpTheLimit(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(100.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 5.0))
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(context.Background(), res.OrderCode, 100)
	require.NoError(t, err)

	_, err = f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 5.0))
	require.NoError(t, err)
}

func TestPurchaseRejectsDuplicateActiveReservation(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(100.0, 10.0, 0.5)

	first, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 1.0))
	require.NoError(t, err)

	_, err = f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 1.0))
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeDuplicateActiveReservation, pe.Code)
	assert.Equal(t, first.ReservationID, pe.ReservationID)
}

func TestPurchaseRejectsIneligibleCustomer(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(100.0, 10.0, 0.5)
	sale.EligibilityRule = "is_vip"
	f.store.putSale(sale)

	f.eligibility.evaluate = func(p port.CustomerProfile) bool { return p.IsVIP }

	cmd := buyCmd(sale.ID, 100, 1.0)
	_, err := f.svc.Purchase(context.Background(), cmd)
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeNotEligible, pe.Code)

	cmd.Profile.IsVIP = true
	_, err = f.svc.Purchase(context.Background(), cmd)
	require.NoError(t, err)
}

func TestPurchaseFlipsSaleToSoldOut(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(2.0, 5.0, 0.5)

	_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)

	stored := f.store.getSale(sale.ID)
	assert.Equal(t, domain.SaleSoldOut, stored.Status)
	assert.True(t, stored.IsSoldOut())
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 1.0, 0.5)

	const attempts = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(customerID int64) {
			defer wg.Done()
			_, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, customerID, 1.0))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			pe, ok := domain.AsPurchaseError(err)
			mu.Lock()
			defer mu.Unlock()
			if !ok || pe.Code != domain.CodeOutOfStock {
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, 10, successes)
	stored := f.store.getSale(sale.ID)
	assert.InDelta(t, 10.0, stored.ReservedQuantity, 1e-9)
	assert.LessOrEqual(t, stored.SoldQuantity+stored.ReservedQuantity, stored.TotalQuantity+1e-9)
	assert.Equal(t, domain.SaleSoldOut, stored.Status)
}

func TestConfirmPaymentConvertsReservation(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)

	view, err := f.svc.ConfirmPayment(context.Background(), res.OrderCode, 100, "WECHAT_PAY")
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderPaid), view.Status)
	assert.Equal(t, "WECHAT_PAY", view.PaymentMethod)
	require.NotNil(t, view.PaidAt)

	stored := f.store.getSale(sale.ID)
	assert.InDelta(t, 2.0, stored.SoldQuantity, 1e-9)
	assert.InDelta(t, 0, stored.ReservedQuantity, 1e-9)

	rsv := f.store.getReservation(res.ReservationID)
	assert.Equal(t, domain.ReservationConverted, rsv.Status)
	assert.Contains(t, f.store.eventTopics(), domain.TopicPaymentConfirmed)

	// 二次确认必须失败
	_, err = f.svc.ConfirmPayment(context.Background(), res.OrderCode, 100, "WECHAT_PAY")
	assert.ErrorIs(t, err, domain.ErrOrderState)
}

func TestConfirmPaymentRejectsWrongCustomer(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(context.Background(), res.OrderCode, 999, "WECHAT_PAY")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestConfirmPaymentRejectsAfterDeadline(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.svc.ConfirmPayment(context.Background(), res.OrderCode, 100, "WECHAT_PAY")
	assert.ErrorIs(t, err, domain.ErrOrderState)
}

func TestCancelOrderReturnsStockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)

	view, err := f.svc.CancelOrder(context.Background(), res.OrderCode, 100)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OrderCancelled), view.Status)

	stored := f.store.getSale(sale.ID)
	assert.InDelta(t, 0, stored.ReservedQuantity, 1e-9)
	rsv := f.store.getReservation(res.ReservationID)
	assert.Equal(t, domain.ReservationCancelled, rsv.Status)

	// 再取消一次失败，库存不会被二次归还
	_, err = f.svc.CancelOrder(context.Background(), res.OrderCode, 100)
	assert.ErrorIs(t, err, domain.ErrOrderState)
	stored = f.store.getSale(sale.ID)
	assert.InDelta(t, 0, stored.ReservedQuantity, 1e-9)
}

func TestCancelOrderRevivesSoldOutSale(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(2.0, 5.0, 0.5)

	res, err := f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 2.0))
	require.NoError(t, err)
	require.Equal(t, domain.SaleSoldOut, f.store.getSale(sale.ID).Status)

	_, err = f.svc.CancelOrder(context.Background(), res.OrderCode, 100)
	require.NoError(t, err)

	stored := f.store.getSale(sale.ID)
	assert.Equal(t, domain.SaleActive, stored.Status)
	assert.InDelta(t, 2.0, stored.AvailableQuantity(), 1e-9)
}

func TestCreateSaleValidatesInput(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	base := CreateSaleCommand{
		FabricID:      7,
		Name:          "linen clearance",
		OriginalPrice: 20.0,
		FlashPrice:    12.0,
		TotalQuantity: 50.0,
		StartTime:     now.Add(time.Hour).Format(time.RFC3339),
		EndTime:       now.Add(2 * time.Hour).Format(time.RFC3339),
	}

	view, err := f.svc.CreateSale(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, string(domain.SaleScheduled), view.Status)
	// 未给限购参数时使用默认值
	assert.InDelta(t, 5.0, view.MaxPerUser, 1e-9)
	assert.InDelta(t, 0.5, view.MinPurchase, 1e-9)

	bad := base
	bad.FlashPrice = 25.0
	_, err = f.svc.CreateSale(context.Background(), bad)
	assert.Error(t, err)

	bad = base
	bad.EndTime = base.StartTime
	_, err = f.svc.CreateSale(context.Background(), bad)
	assert.Error(t, err)

	bad = base
	bad.TotalQuantity = 0
	_, err = f.svc.CreateSale(context.Background(), bad)
	assert.Error(t, err)
}

func TestCancelSaleBlocksFurtherPurchases(t *testing.T) {
	f := newFixture(t)
	sale := f.seedSale(10.0, 5.0, 0.5)

	view, err := f.svc.CancelSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.SaleCancelled), view.Status)

	_, err = f.svc.Purchase(context.Background(), buyCmd(sale.ID, 100, 1.0))
	pe, ok := domain.AsPurchaseError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeNotActive, pe.Code)

	// 终态场次不可再取消
	_, err = f.svc.CancelSale(context.Background(), sale.ID)
	assert.Error(t, err)
}
