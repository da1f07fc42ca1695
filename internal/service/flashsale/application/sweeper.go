// internal/service/flashsale/application/sweeper.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/flashsale/domain"
)

const sweepBatchSize = 200

// Sweeper 后台清扫任务，三条独立的定时循环：
//  1. 预留回收：超时的 ACTIVE 预留置为 EXPIRED 并归还库存；
//  2. 订单过期：支付截止时间已过的待支付订单置为 EXPIRED；
//  3. 场次状态推进：SCHEDULED->ACTIVE、ACTIVE/SOLD_OUT->ENDED。
//
// 每条转换都带状态条件，多实例并发跑也只会生效一次，
// 所以清扫是幂等的，漏跑一轮下一轮会补上。
type Sweeper struct {
	svc    *FlashSaleService
	tracer trace.Tracer

	reservationPeriod time.Duration
	orderPeriod       time.Duration
	lifecyclePeriod   time.Duration
}

func NewSweeper(svc *FlashSaleService, tracer trace.Tracer, reservationPeriod, orderPeriod, lifecyclePeriod time.Duration) *Sweeper {
	return &Sweeper{
		svc:               svc,
		tracer:            tracer,
		reservationPeriod: reservationPeriod,
		orderPeriod:       orderPeriod,
		lifecyclePeriod:   lifecyclePeriod,
	}
}

// Run 启动全部清扫循环，阻塞到 ctx 取消。
func (w *Sweeper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.loop(ctx, "reservations", w.reservationPeriod, w.SweepReservations) })
	g.Go(func() error { return w.loop(ctx, "orders", w.orderPeriod, w.SweepOrders) })
	g.Go(func() error { return w.loop(ctx, "lifecycle", w.lifecyclePeriod, w.SweepLifecycle) })
	return g.Wait()
}

func (w *Sweeper) loop(ctx context.Context, name string, period time.Duration, sweep func(context.Context) (int64, error)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Logger().Info().Str("sweep", name).Msg("sweeper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			spanCtx, span := w.tracer.Start(ctx, "sweeper."+name)
			n, err := sweep(spanCtx)
			if err != nil {
				span.RecordError(err)
				logger.Ctx(spanCtx).Error().Err(err).Str("sweep", name).Msg("🚨 sweep pass failed")
			} else if n > 0 {
				logger.Ctx(spanCtx).Info().Str("sweep", name).Int64("rows", n).Msg("sweep pass done")
			}
			span.End()
		}
	}
}

// SweepReservations 回收超时预留。逐行处理：每行先做带状态条件的
// ACTIVE->EXPIRED 转换，只有转换生效的那个实例才归还库存、发事件。
func (w *Sweeper) SweepReservations(ctx context.Context) (int64, error) {
	now := w.svc.now()
	expired, err := w.svc.rsvRepo.FindExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	var released int64
	for _, rsv := range expired {
		if err := w.expireOne(ctx, rsv, now); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("reservation_id", rsv.ID).Msg("expire reservation failed, will retry next pass")
			continue
		}
		released++
	}
	if released > 0 {
		sweeperReleasedCounter.WithLabelValues("reservation").Add(float64(released))
	}
	return released, nil
}

func (w *Sweeper) expireOne(ctx context.Context, rsv *domain.Reservation, now time.Time) error {
	var returned float64
	err := w.svc.tx.WithinTx(ctx, func(txCtx context.Context) error {
		sale, err := w.svc.saleRepo.FindByIDForUpdate(txCtx, rsv.SaleID)
		if err != nil {
			return err
		}

		ok, err := w.svc.rsvRepo.TransitionFromActive(txCtx, rsv.ID, domain.ReservationExpired)
		if err != nil {
			return err
		}
		if !ok {
			// 已被支付转正或取消释放，别人赢了这次竞争
			return nil
		}

		sale.ReservedQuantity -= rsv.Quantity
		if sale.Status == domain.SaleSoldOut && !sale.IsSoldOut() && !sale.HasEnded(now) {
			sale.Status = domain.SaleActive
		}
		if err := w.svc.saleRepo.Save(txCtx, sale); err != nil {
			return err
		}
		returned = rsv.Quantity

		return w.svc.publisher.Append(txCtx,
			domain.NewReservationExpiredEvent(rsv, now),
			domain.NewStockChangedEvent(sale, now),
		)
	})
	if err != nil {
		return err
	}
	// 数据库已归还，预检闸的计数也要补回来，不然闸口会越扣越空
	w.compensateGate(ctx, rsv.SaleID, returned)
	return nil
}

func (w *Sweeper) compensateGate(ctx context.Context, saleID int64, qty float64) {
	if qty <= 0 {
		return
	}
	if err := w.svc.stockGate.Release(ctx, saleID, qty); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("sale_id", saleID).Msg("stock gate release failed after sweep, counter will drift until next sync")
	}
}

// SweepOrders 过期支付超时的订单。和预留清扫一样逐行独立处理，
// 单行失败只记日志，下一轮重试，不拖垮整个批次。
func (w *Sweeper) SweepOrders(ctx context.Context) (int64, error) {
	now := w.svc.now()
	overdue, err := w.svc.orderRepo.FindOverduePending(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, order := range overdue {
		expired, err := w.expireOrder(ctx, order, now)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_code", order.OrderCode).Msg("expire order failed, will retry next pass")
			continue
		}
		if expired {
			count++
		}
	}
	if count > 0 {
		sweeperReleasedCounter.WithLabelValues("order").Add(float64(count))
	}
	return count, nil
}

// expireOrder 单笔订单的过期事务。先锁场次行（与支付、取消同一加锁
// 顺序），再带状态条件过期订单和它的预留（若预留仍 ACTIVE）。
func (w *Sweeper) expireOrder(ctx context.Context, order *domain.Order, now time.Time) (bool, error) {
	var (
		expired  bool
		returned float64
	)
	err := w.svc.tx.WithinTx(ctx, func(txCtx context.Context) error {
		sale, err := w.svc.saleRepo.FindByIDForUpdate(txCtx, order.SaleID)
		if err != nil {
			return err
		}

		ok, err := w.svc.orderRepo.TransitionFromPending(txCtx, order.OrderCode, domain.OrderExpired, nil, "")
		if err != nil {
			return err
		}
		if !ok {
			// 候选是旧快照，订单刚被支付或取消
			return nil
		}
		expired = true
		order.Status = domain.OrderExpired

		if ok, err = w.svc.rsvRepo.TransitionFromActive(txCtx, order.ReservationID, domain.ReservationExpired); err != nil {
			return err
		} else if ok {
			sale.ReservedQuantity -= order.Quantity
			if sale.Status == domain.SaleSoldOut && !sale.IsSoldOut() && !sale.HasEnded(now) {
				sale.Status = domain.SaleActive
			}
			if err := w.svc.saleRepo.Save(txCtx, sale); err != nil {
				return err
			}
			returned = order.Quantity
		}

		return w.svc.publisher.Append(txCtx,
			domain.NewOrderCancelledEvent(order, "PAYMENT_TIMEOUT", now),
			domain.NewStockChangedEvent(sale, now),
		)
	})
	if err != nil {
		return false, err
	}
	w.compensateGate(ctx, order.SaleID, returned)
	return expired, nil
}

// SweepLifecycle 推进场次生命周期，两条集合式条件更新。
func (w *Sweeper) SweepLifecycle(ctx context.Context) (int64, error) {
	now := w.svc.now()

	activated, err := w.svc.saleRepo.ActivateDue(ctx, now)
	if err != nil {
		return 0, err
	}
	ended, err := w.svc.saleRepo.EndDue(ctx, now)
	if err != nil {
		return activated, err
	}
	if activated+ended > 0 {
		sweeperReleasedCounter.WithLabelValues("lifecycle").Add(float64(activated + ended))
	}
	return activated + ended, nil
}
