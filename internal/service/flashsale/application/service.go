// internal/service/flashsale/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/flashsale/domain"
	"atelier/internal/service/flashsale/domain/port"
)

// Clock 可注入的时钟，测试里用假时钟驱动过期逻辑。
type Clock func() time.Time

// FlashSaleService 只负责业务流程编排，持久化和外部协作
// 全部走领域层定义的接口。
type FlashSaleService struct {
	saleRepo  domain.SaleRepository
	rsvRepo   domain.ReservationRepository
	orderRepo domain.OrderRepository
	tx        domain.TxManager
	publisher domain.EventPublisher

	locker      port.SaleLocker
	pricing     port.PricingService
	stockGate   port.StockGate
	eligibility port.EligibilityEngine

	tracer trace.Tracer
	now    Clock

	holdDuration  time.Duration
	paymentWindow time.Duration
	lockTimeout   time.Duration
}

type ServiceParams struct {
	SaleRepo  domain.SaleRepository
	RsvRepo   domain.ReservationRepository
	OrderRepo domain.OrderRepository
	Tx        domain.TxManager
	Publisher domain.EventPublisher

	Locker      port.SaleLocker
	Pricing     port.PricingService
	StockGate   port.StockGate
	Eligibility port.EligibilityEngine

	Tracer trace.Tracer
	Clock  Clock

	HoldDuration  time.Duration
	PaymentWindow time.Duration
	LockTimeout   time.Duration
}

func NewFlashSaleService(p ServiceParams) *FlashSaleService {
	if p.Clock == nil {
		p.Clock = time.Now
	}
	return &FlashSaleService{
		saleRepo: p.SaleRepo, rsvRepo: p.RsvRepo, orderRepo: p.OrderRepo,
		tx: p.Tx, publisher: p.Publisher,
		locker: p.Locker, pricing: p.Pricing,
		stockGate: p.StockGate, eligibility: p.Eligibility,
		tracer: p.Tracer, now: p.Clock,
		holdDuration:  p.HoldDuration,
		paymentWindow: p.PaymentWindow,
		lockTimeout:   p.LockTimeout,
	}
}

// SetPricing 注入定价端口。组装根里 Nacos 客户端晚于服务构造可用，
// 所以定价适配器走后置注入。
func (s *FlashSaleService) SetPricing(p port.PricingService) {
	s.pricing = p
}

// Purchase 执行一次秒杀购买。
//
// 流程分三段：
//  1. 无锁预检：场次状态、资格规则、最小购买量、Redis 近似库存闸；
//  2. 分布式锁 + 数据库行锁的临界区：权威校验并落预留、订单、计数器；
//  3. 事务提交后记录指标。
//
// 业务拒绝以 *domain.PurchaseError 返回，系统故障以普通 error 返回。
func (s *FlashSaleService) Purchase(ctx context.Context, cmd PurchaseCommand) (*PurchaseResult, error) {
	ctx, span := s.tracer.Start(ctx, "flashsale.Purchase", trace.WithAttributes(
		attribute.Int64("sale.id", cmd.SaleID),
		attribute.Int64("customer.id", cmd.CustomerID),
		attribute.Float64("quantity", cmd.Quantity),
	))
	defer span.End()

	result, err := s.purchase(ctx, cmd)
	switch {
	case err == nil:
		purchaseResultCounter.WithLabelValues("SUCCESS").Inc()
		span.SetAttributes(attribute.String("order.code", result.OrderCode))
	default:
		if pe, ok := domain.AsPurchaseError(err); ok {
			purchaseResultCounter.WithLabelValues(pe.Code).Inc()
			span.SetAttributes(attribute.String("reject.code", pe.Code))
		} else {
			purchaseResultCounter.WithLabelValues("FAULT").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "purchase fault")
		}
	}
	return result, err
}

func (s *FlashSaleService) purchase(ctx context.Context, cmd PurchaseCommand) (*PurchaseResult, error) {
	now := s.now()

	// --- 无锁预检，挡掉绝大多数注定失败的请求 ---
	sale, err := s.saleRepo.FindByID(ctx, cmd.SaleID)
	if err != nil {
		return nil, err
	}
	if !sale.IsOpenAt(now) {
		return nil, domain.ErrNotActive(sale.ID)
	}
	if cmd.Quantity < sale.MinPurchase || cmd.Quantity <= 0 {
		return nil, domain.ErrBelowMinimum(sale.MinPurchase)
	}
	if sale.EligibilityRule != "" {
		ok, eerr := s.eligibility.Evaluate(ctx, sale.EligibilityRule, cmd.Profile)
		if eerr != nil {
			// 规则求值失败按系统故障处理，不能默许放行
			return nil, fmt.Errorf("evaluate eligibility rule: %w", eerr)
		}
		if !ok {
			return nil, domain.ErrNotEligible("customer does not meet the eligibility rule for this sale")
		}
	}

	// Redis 预检闸：计数不准没关系，数据库才是权威。
	// Redis 故障时降级放行，只打日志。
	gateReserved := false
	if ok, gerr := s.stockGate.TryReserve(ctx, sale.ID, cmd.Quantity); gerr != nil {
		logger.Ctx(ctx).Warn().Err(gerr).Int64("sale_id", sale.ID).Msg("🚨 stock gate unavailable, falling through to database")
	} else if !ok {
		// 闸口拒绝后重读一次，错误里带的余量尽量贴近当前权威值
		if fresh, ferr := s.saleRepo.FindByID(ctx, sale.ID); ferr == nil {
			sale = fresh
		}
		return nil, domain.ErrOutOfStock(sale.AvailableQuantity())
	} else {
		gateReserved = true
	}

	// 定价在拿锁之前做，保持临界区尽量短。
	unitPrice := sale.FlashPrice
	if s.pricing != nil {
		quoted, perr := s.pricing.QuoteFlashPrice(ctx, sale.ID, sale.FlashPrice)
		if perr != nil {
			logger.Ctx(ctx).Warn().Err(perr).Int64("sale_id", sale.ID).Msg("pricing service unavailable, using sale flash price")
		} else {
			unitPrice = quoted
		}
	}

	// --- 分布式锁：拿不到就快速失败，不堆积在数据库锁上 ---
	lockStart := time.Now()
	release, err := s.locker.Acquire(ctx, sale.ID, s.lockTimeout)
	lockWaitDuration.Observe(time.Since(lockStart).Seconds())
	if err != nil {
		// 适配器在超时场景返回 LOCK_TIMEOUT 业务错误，其余是系统故障
		s.compensateGate(ctx, sale.ID, cmd.Quantity, gateReserved)
		return nil, err
	}
	defer release()

	csStart := time.Now()
	var result *PurchaseResult
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		result, err = s.purchaseLocked(txCtx, cmd, unitPrice)
		return err
	})
	criticalSectionDuration.Observe(time.Since(csStart).Seconds())

	if err != nil {
		s.compensateGate(ctx, sale.ID, cmd.Quantity, gateReserved)
		return nil, err
	}
	return result, nil
}

// purchaseLocked 是持有场次行锁的临界区，txCtx 携带数据库事务。
func (s *FlashSaleService) purchaseLocked(txCtx context.Context, cmd PurchaseCommand, unitPrice float64) (*PurchaseResult, error) {
	now := s.now()

	sale, err := s.saleRepo.FindByIDForUpdate(txCtx, cmd.SaleID)
	if err != nil {
		return nil, err
	}

	// 锁内重查重验：预检读到的是旧快照
	if !sale.IsOpenAt(now) {
		return nil, domain.ErrNotActive(sale.ID)
	}
	if cmd.Quantity < sale.MinPurchase || cmd.Quantity <= 0 {
		return nil, domain.ErrBelowMinimum(sale.MinPurchase)
	}
	if sale.AvailableQuantity() < cmd.Quantity {
		return nil, domain.ErrOutOfStock(sale.AvailableQuantity())
	}

	if existing, err := s.rsvRepo.FindActiveBySaleAndCustomer(txCtx, sale.ID, cmd.CustomerID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrDuplicateActiveReservation(existing.ID)
	}

	used, err := s.orderRepo.SumQuantityByCustomer(txCtx, sale.ID, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if used+cmd.Quantity > sale.MaxPerUser {
		return nil, domain.ErrLimitExceeded(sale.MaxPerUser - used)
	}

	rsv := domain.NewReservation(sale.ID, cmd.CustomerID, cmd.Quantity, now, s.holdDuration)
	if err := s.rsvRepo.Create(txCtx, rsv); err != nil {
		return nil, err
	}

	order := domain.NewOrder(sale, rsv, unitPrice, now, s.paymentWindow)
	order.Shipping = cmd.Shipping
	order.CustomerNote = cmd.Note
	if err := s.orderRepo.Create(txCtx, order); err != nil {
		return nil, err
	}

	sale.ReservedQuantity += cmd.Quantity
	if sale.IsSoldOut() {
		sale.Status = domain.SaleSoldOut
	}
	if err := s.saleRepo.Save(txCtx, sale); err != nil {
		return nil, err
	}

	if err := s.publisher.Append(txCtx,
		domain.NewPurchaseSucceededEvent(order, now),
		domain.NewStockChangedEvent(sale, now),
	); err != nil {
		return nil, err
	}

	logger.Ctx(txCtx).Info().
		Int64("sale_id", sale.ID).
		Int64("customer_id", cmd.CustomerID).
		Str("order_code", order.OrderCode).
		Float64("quantity", cmd.Quantity).
		Float64("available", sale.AvailableQuantity()).
		Msg("✅ flash sale purchase reserved")

	return &PurchaseResult{
		OrderCode:          order.OrderCode,
		ReservationID:      rsv.ID,
		Quantity:           order.Quantity,
		UnitPrice:          order.UnitPrice,
		TotalPrice:         order.TotalPrice,
		DiscountAmount:     order.DiscountAmount,
		PaymentDeadline:    order.PaymentDeadline,
		ReservedUntil:      rsv.ExpiresAt,
		AvailableQuantity:  sale.AvailableQuantity(),
		RemainingAllowance: sale.MaxPerUser - used - cmd.Quantity,
	}, nil
}

// compensateGate 临界区失败后把预检闸扣掉的数量还回去。
func (s *FlashSaleService) compensateGate(ctx context.Context, saleID int64, quantity float64, reserved bool) {
	if !reserved {
		return
	}
	if err := s.stockGate.Release(ctx, saleID, quantity); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("sale_id", saleID).Msg("stock gate release failed, counter will drift until next sync")
	}
}

// ConfirmPayment 把待支付订单推进为已支付：预留转正，reserved 挪进 sold。
func (s *FlashSaleService) ConfirmPayment(ctx context.Context, orderCode string, customerID int64, method string) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "flashsale.ConfirmPayment")
	defer span.End()

	var view *OrderView
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		now := s.now()

		order, err := s.orderRepo.FindByCode(txCtx, orderCode)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrOrderNotFound
		}
		if !order.CanPay(now) {
			return domain.ErrOrderState
		}

		// 先锁场次行，所有改计数器的事务都按同一顺序加锁
		sale, err := s.saleRepo.FindByIDForUpdate(txCtx, order.SaleID)
		if err != nil {
			return err
		}

		ok, err := s.orderRepo.TransitionFromPending(txCtx, order.OrderCode, domain.OrderPaid, &now, method)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOrderState
		}
		if ok, err = s.rsvRepo.TransitionFromActive(txCtx, order.ReservationID, domain.ReservationConverted); err != nil {
			return err
		} else if !ok {
			// 预留已被清扫任务回收，订单不应再能支付
			return domain.ErrOrderState
		}

		sale.ReservedQuantity -= order.Quantity
		sale.SoldQuantity += order.Quantity
		if err := s.saleRepo.Save(txCtx, sale); err != nil {
			return err
		}

		order.Status = domain.OrderPaid
		order.PaidAt = &now
		order.PaymentMethod = method
		if err := s.publisher.Append(txCtx,
			domain.NewPaymentConfirmedEvent(order, now),
			domain.NewStockChangedEvent(sale, now),
		); err != nil {
			return err
		}

		logger.Ctx(txCtx).Info().Str("order_code", orderCode).Int64("sale_id", sale.ID).Msg("✅ payment confirmed, reservation converted")
		view = toOrderView(order)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return view, nil
}

// CancelOrder 客户主动取消待支付订单，归还预留的库存。
func (s *FlashSaleService) CancelOrder(ctx context.Context, orderCode string, customerID int64) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "flashsale.CancelOrder")
	defer span.End()

	var (
		view     *OrderView
		saleID   int64
		qty      float64
		returned bool
	)
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		now := s.now()

		order, err := s.orderRepo.FindByCode(txCtx, orderCode)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrOrderNotFound
		}
		if !order.CanCancel() {
			return domain.ErrOrderState
		}

		sale, err := s.saleRepo.FindByIDForUpdate(txCtx, order.SaleID)
		if err != nil {
			return err
		}

		ok, err := s.orderRepo.TransitionFromPending(txCtx, order.OrderCode, domain.OrderCancelled, nil, "")
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOrderState
		}

		// 预留可能已被清扫任务标为 EXPIRED 并归还过库存，
		// 靠状态条件保证只归还一次。
		if ok, err = s.rsvRepo.TransitionFromActive(txCtx, order.ReservationID, domain.ReservationCancelled); err != nil {
			return err
		} else if ok {
			sale.ReservedQuantity -= order.Quantity
			if sale.Status == domain.SaleSoldOut && !sale.IsSoldOut() && !sale.HasEnded(now) {
				sale.Status = domain.SaleActive
			}
			if err := s.saleRepo.Save(txCtx, sale); err != nil {
				return err
			}
			returned = true
		}

		order.Status = domain.OrderCancelled
		if err := s.publisher.Append(txCtx,
			domain.NewOrderCancelledEvent(order, "CUSTOMER_CANCELLED", now),
			domain.NewStockChangedEvent(sale, now),
		); err != nil {
			return err
		}

		logger.Ctx(txCtx).Info().Str("order_code", orderCode).Bool("stock_returned", ok).Msg("flash sale order cancelled")
		saleID, qty = sale.ID, order.Quantity
		view = toOrderView(order)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if returned {
		if gerr := s.stockGate.Release(ctx, saleID, qty); gerr != nil {
			logger.Ctx(ctx).Warn().Err(gerr).Int64("sale_id", saleID).Msg("stock gate release failed after cancel")
		}
	}
	return view, nil
}

// --- 查询用例 ---

func (s *FlashSaleService) ActiveSales(ctx context.Context) ([]*SaleView, error) {
	sales, err := s.saleRepo.FindActive(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return toSaleViews(sales), nil
}

func (s *FlashSaleService) UpcomingSales(ctx context.Context) ([]*SaleView, error) {
	sales, err := s.saleRepo.FindUpcoming(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return toSaleViews(sales), nil
}

func (s *FlashSaleService) FeaturedSales(ctx context.Context) ([]*SaleView, error) {
	sales, err := s.saleRepo.FindFeatured(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return toSaleViews(sales), nil
}

// SaleDetail 返回场次详情。customerID 大于 0 时附带该客户
// 已占用的限购额度和剩余可购数量。
func (s *FlashSaleService) SaleDetail(ctx context.Context, id, customerID int64) (*SaleView, error) {
	sale, err := s.saleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := toSaleView(sale)
	if customerID > 0 {
		used, err := s.orderRepo.SumQuantityByCustomer(ctx, id, customerID)
		if err != nil {
			return nil, err
		}
		remaining := sale.MaxPerUser - used
		if remaining < 0 {
			remaining = 0
		}
		view.UserPurchased = &used
		view.UserRemaining = &remaining
	}
	return view, nil
}

// ListAllSales 管理端列表，status 为空时返回全部状态。
func (s *FlashSaleService) ListAllSales(ctx context.Context, status string, limit, offset int) ([]*SaleView, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	sales, err := s.saleRepo.FindAll(ctx, domain.SaleStatus(status), limit, offset)
	if err != nil {
		return nil, err
	}
	return toSaleViews(sales), nil
}

// MyOrders 返回客户的订单列表，saleID 大于 0 时只看该场次。
func (s *FlashSaleService) MyOrders(ctx context.Context, customerID, saleID int64, limit, offset int) ([]*OrderView, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	orders, err := s.orderRepo.FindByCustomer(ctx, customerID, saleID, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	return views, nil
}

func (s *FlashSaleService) OrderDetail(ctx context.Context, orderCode string, customerID int64) (*OrderView, error) {
	order, err := s.orderRepo.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, domain.ErrOrderNotFound
	}
	return toOrderView(order), nil
}

// --- 管理用例 ---

// CreateSale 创建一个 SCHEDULED 场次，开始时间已到的由状态清扫任务激活。
func (s *FlashSaleService) CreateSale(ctx context.Context, cmd CreateSaleCommand) (*SaleView, error) {
	start, err := time.Parse(time.RFC3339, cmd.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, cmd.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}
	if cmd.TotalQuantity <= 0 {
		return nil, fmt.Errorf("total_quantity must be positive")
	}
	if cmd.FlashPrice <= 0 || cmd.FlashPrice >= cmd.OriginalPrice {
		return nil, fmt.Errorf("flash_price must be positive and below original_price")
	}

	sale := &domain.Sale{
		FabricID:        cmd.FabricID,
		FabricName:      cmd.FabricName,
		Name:            cmd.Name,
		Description:     cmd.Description,
		OriginalPrice:   cmd.OriginalPrice,
		FlashPrice:      cmd.FlashPrice,
		TotalQuantity:   cmd.TotalQuantity,
		MaxPerUser:      cmd.MaxPerUser,
		MinPurchase:     cmd.MinPurchase,
		StartTime:       start,
		EndTime:         end,
		Status:          domain.SaleScheduled,
		Priority:        cmd.Priority,
		IsFeatured:      cmd.IsFeatured,
		BannerImage:     cmd.BannerImage,
		EligibilityRule: cmd.EligibilityRule,
		CreatedBy:       cmd.CreatedBy,
	}
	if sale.MaxPerUser <= 0 {
		sale.MaxPerUser = defaultMaxPerUser
	}
	if sale.MinPurchase <= 0 {
		sale.MinPurchase = defaultMinPurchase
	}
	if sale.MinPurchase > sale.MaxPerUser {
		return nil, fmt.Errorf("min_purchase must not exceed max_per_user")
	}
	if sale.EligibilityRule != "" {
		if err := s.eligibility.Validate(sale.EligibilityRule); err != nil {
			return nil, fmt.Errorf("invalid eligibility_rule: %w", err)
		}
	}

	if err := s.saleRepo.Create(ctx, sale); err != nil {
		return nil, err
	}
	if err := s.stockGate.Sync(ctx, sale.ID, sale.TotalQuantity); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("sale_id", sale.ID).Msg("stock gate sync failed on create")
	}
	logger.Ctx(ctx).Info().Int64("sale_id", sale.ID).Str("name", sale.Name).Msg("flash sale created")
	return toSaleView(sale), nil
}

// UpdateSale 更新场次的可变字段，终态场次不可更新。
func (s *FlashSaleService) UpdateSale(ctx context.Context, id int64, cmd UpdateSaleCommand) (*SaleView, error) {
	var view *SaleView
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		sale, err := s.saleRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if sale.IsTerminal() {
			return fmt.Errorf("sale %d is %s and can no longer be updated", id, sale.Status)
		}

		if cmd.Name != nil {
			sale.Name = *cmd.Name
		}
		if cmd.Description != nil {
			sale.Description = *cmd.Description
		}
		if cmd.FlashPrice != nil {
			sale.FlashPrice = *cmd.FlashPrice
		}
		if cmd.TotalQuantity != nil {
			// 已卖出和在途预留的部分不能被砍掉
			if *cmd.TotalQuantity < sale.SoldQuantity+sale.ReservedQuantity {
				return fmt.Errorf("total_quantity must not drop below committed quantity %.2f", sale.SoldQuantity+sale.ReservedQuantity)
			}
			sale.TotalQuantity = *cmd.TotalQuantity
			if sale.Status == domain.SaleSoldOut && !sale.IsSoldOut() {
				sale.Status = domain.SaleActive
			}
		}
		if cmd.MaxPerUser != nil {
			sale.MaxPerUser = *cmd.MaxPerUser
		}
		if cmd.MinPurchase != nil {
			sale.MinPurchase = *cmd.MinPurchase
		}
		if cmd.EndTime != nil {
			end, perr := time.Parse(time.RFC3339, *cmd.EndTime)
			if perr != nil {
				return fmt.Errorf("invalid end_time: %w", perr)
			}
			sale.EndTime = end
		}
		if cmd.Priority != nil {
			sale.Priority = *cmd.Priority
		}
		if cmd.IsFeatured != nil {
			sale.IsFeatured = *cmd.IsFeatured
		}
		if cmd.BannerImage != nil {
			sale.BannerImage = *cmd.BannerImage
		}
		if cmd.EligibilityRule != nil {
			if *cmd.EligibilityRule != "" {
				if verr := s.eligibility.Validate(*cmd.EligibilityRule); verr != nil {
					return fmt.Errorf("invalid eligibility_rule: %w", verr)
				}
			}
			sale.EligibilityRule = *cmd.EligibilityRule
		}
		if sale.MinPurchase > sale.MaxPerUser {
			return fmt.Errorf("min_purchase must not exceed max_per_user")
		}

		if err := s.saleRepo.Save(txCtx, sale); err != nil {
			return err
		}
		view = toSaleView(sale)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cmd.TotalQuantity != nil {
		if gerr := s.stockGate.Sync(ctx, id, view.Available); gerr != nil {
			logger.Ctx(ctx).Warn().Err(gerr).Int64("sale_id", id).Msg("stock gate sync failed on update")
		}
	}
	return view, nil
}

// CancelSale 管理员取消场次。已有的 ACTIVE 预留不强杀，
// 由清扫任务按各自截止时间自然回收。
func (s *FlashSaleService) CancelSale(ctx context.Context, id int64) (*SaleView, error) {
	var view *SaleView
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		sale, err := s.saleRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !sale.CanCancel() {
			return fmt.Errorf("sale %d is %s and cannot be cancelled", id, sale.Status)
		}
		sale.Status = domain.SaleCancelled
		if err := s.saleRepo.Save(txCtx, sale); err != nil {
			return err
		}
		if err := s.publisher.Append(txCtx, domain.NewStockChangedEvent(sale, s.now())); err != nil {
			return err
		}
		view = toSaleView(sale)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Int64("sale_id", id).Msg("🛑 flash sale cancelled by admin")
	return view, nil
}

const (
	defaultMaxPerUser  = 5.00
	defaultMinPurchase = 0.50
	maxPageSize        = 50
)
