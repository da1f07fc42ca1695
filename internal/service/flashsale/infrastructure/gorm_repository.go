package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atelier/internal/service/flashsale/domain"
)

type txKey struct{}

// GormTxManager 用 GORM 事务实现 domain.TxManager，
// 事务句柄塞进 ctx 往下传，仓储方法优先取 ctx 里的句柄。
type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func dbFrom(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return fallback.WithContext(ctx)
}

// GormSaleRepository 是 SaleRepository 的 GORM 实现
type GormSaleRepository struct {
	db *gorm.DB
}

func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

func (r *GormSaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	model := FromDomainSale(sale)
	model.ID = 0
	if err := dbFrom(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	sale.ID = int64(model.ID)
	return nil
}

func (r *GormSaleRepository) Save(ctx context.Context, sale *domain.Sale) error {
	return dbFrom(ctx, r.db).Model(&FlashSaleModel{}).
		Where("id = ?", sale.ID).
		Updates(map[string]interface{}{
			"name":              sale.Name,
			"description":       sale.Description,
			"flash_price":       sale.FlashPrice,
			"total_quantity":    sale.TotalQuantity,
			"sold_quantity":     sale.SoldQuantity,
			"reserved_quantity": sale.ReservedQuantity,
			"max_per_user":      sale.MaxPerUser,
			"min_purchase":      sale.MinPurchase,
			"end_time":          sale.EndTime,
			"status":            string(sale.Status),
			"priority":          sale.Priority,
			"is_featured":       sale.IsFeatured,
			"banner_image":      sale.BannerImage,
			"eligibility_rule":  sale.EligibilityRule,
		}).Error
}

func (r *GormSaleRepository) FindByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var model FlashSaleModel
	err := dbFrom(ctx, r.db).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSaleNotFound
		}
		return nil, err
	}
	return ToDomainSale(&model), nil
}

// FindByIDForUpdate 对场次行加排他锁，只能在事务内调用。
func (r *GormSaleRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Sale, error) {
	var model FlashSaleModel
	err := dbFrom(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSaleNotFound
		}
		return nil, err
	}
	return ToDomainSale(&model), nil
}

func (r *GormSaleRepository) FindActive(ctx context.Context, now time.Time) ([]*domain.Sale, error) {
	return r.findWhere(ctx, dbFrom(ctx, r.db).
		Where("status IN ?", []string{string(domain.SaleActive), string(domain.SaleSoldOut)}).
		Where("start_time <= ? AND end_time > ?", now, now).
		Order("priority DESC, start_time ASC"))
}

func (r *GormSaleRepository) FindUpcoming(ctx context.Context, now time.Time) ([]*domain.Sale, error) {
	return r.findWhere(ctx, dbFrom(ctx, r.db).
		Where("status = ? AND start_time > ?", string(domain.SaleScheduled), now).
		Order("start_time ASC"))
}

func (r *GormSaleRepository) FindFeatured(ctx context.Context, now time.Time) ([]*domain.Sale, error) {
	return r.findWhere(ctx, dbFrom(ctx, r.db).
		Where("is_featured = ?", true).
		Where("status IN ?", []string{string(domain.SaleActive), string(domain.SaleSoldOut)}).
		Where("start_time <= ? AND end_time > ?", now, now).
		Order("priority DESC"))
}

func (r *GormSaleRepository) FindAll(ctx context.Context, status domain.SaleStatus, limit, offset int) ([]*domain.Sale, error) {
	q := dbFrom(ctx, r.db)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return r.findWhere(ctx, q.Order("created_at DESC").Limit(limit).Offset(offset))
}

func (r *GormSaleRepository) findWhere(_ context.Context, query *gorm.DB) ([]*domain.Sale, error) {
	var models []FlashSaleModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	sales := make([]*domain.Sale, 0, len(models))
	for i := range models {
		sales = append(sales, ToDomainSale(&models[i]))
	}
	return sales, nil
}

func (r *GormSaleRepository) ActivateDue(ctx context.Context, now time.Time) (int64, error) {
	res := dbFrom(ctx, r.db).Model(&FlashSaleModel{}).
		Where("status = ? AND start_time <= ? AND end_time > ?", string(domain.SaleScheduled), now, now).
		Update("status", string(domain.SaleActive))
	return res.RowsAffected, res.Error
}

func (r *GormSaleRepository) EndDue(ctx context.Context, now time.Time) (int64, error) {
	res := dbFrom(ctx, r.db).Model(&FlashSaleModel{}).
		Where("status IN ? AND end_time <= ?", []string{string(domain.SaleActive), string(domain.SaleSoldOut)}, now).
		Update("status", string(domain.SaleEnded))
	return res.RowsAffected, res.Error
}

// GormReservationRepository 是 ReservationRepository 的 GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, rsv *domain.Reservation) error {
	model := FromDomainReservation(rsv)
	model.ID = 0
	if err := dbFrom(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	rsv.ID = int64(model.ID)
	return nil
}

func (r *GormReservationRepository) FindByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	var model ReservationModel
	if err := dbFrom(ctx, r.db).First(&model, id).Error; err != nil {
		return nil, err
	}
	return ToDomainReservation(&model), nil
}

func (r *GormReservationRepository) FindActiveBySaleAndCustomer(ctx context.Context, saleID, customerID int64) (*domain.Reservation, error) {
	var model ReservationModel
	err := dbFrom(ctx, r.db).
		Where("sale_id = ? AND customer_id = ? AND status = ?", saleID, customerID, string(domain.ReservationActive)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ToDomainReservation(&model), nil
}

func (r *GormReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := dbFrom(ctx, r.db).
		Where("status = ? AND expires_at < ?", string(domain.ReservationActive), now).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	rsvs := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		rsvs = append(rsvs, ToDomainReservation(&models[i]))
	}
	return rsvs, nil
}

// TransitionFromActive 带状态条件的更新，RowsAffected 判定谁赢了竞争。
func (r *GormReservationRepository) TransitionFromActive(ctx context.Context, id int64, to domain.ReservationStatus) (bool, error) {
	res := dbFrom(ctx, r.db).Model(&ReservationModel{}).
		Where("id = ? AND status = ?", id, string(domain.ReservationActive)).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := FromDomainOrder(order)
	model.ID = 0
	if err := dbFrom(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	order.ID = int64(model.ID)
	return nil
}

func (r *GormOrderRepository) FindByCode(ctx context.Context, code string) (*domain.Order, error) {
	var model OrderModel
	err := dbFrom(ctx, r.db).Where("order_code = ?", code).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return ToDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByCustomer(ctx context.Context, customerID, saleID int64, limit, offset int) ([]*domain.Order, error) {
	q := dbFrom(ctx, r.db).Where("customer_id = ?", customerID)
	if saleID > 0 {
		q = q.Where("sale_id = ?", saleID)
	}
	var models []OrderModel
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, ToDomainOrder(&models[i]))
	}
	return orders, nil
}

// SumQuantityByCustomer 统计仍占用限购额度的数量，
// 已取消/已过期/已退款的订单释放额度。
func (r *GormOrderRepository) SumQuantityByCustomer(ctx context.Context, saleID, customerID int64) (float64, error) {
	var total float64
	err := dbFrom(ctx, r.db).Model(&OrderModel{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("sale_id = ? AND customer_id = ?", saleID, customerID).
		Where("status NOT IN ?", []string{
			string(domain.OrderCancelled),
			string(domain.OrderExpired),
			string(domain.OrderRefunded),
		}).
		Scan(&total).Error
	return total, err
}

func (r *GormOrderRepository) TransitionFromPending(ctx context.Context, code string, to domain.OrderStatus, paidAt *time.Time, method string) (bool, error) {
	updates := map[string]interface{}{"status": string(to)}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}
	if method != "" {
		updates["payment_method"] = method
	}
	res := dbFrom(ctx, r.db).Model(&OrderModel{}).
		Where("order_code = ? AND status = ?", code, string(domain.OrderPendingPayment)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindOverduePending 只读候选查询，不加锁不改状态。
// 读到的可能是将被并发支付/取消改走的旧快照，
// 调用方必须再用带状态条件的转换决出胜负。
func (r *GormOrderRepository) FindOverduePending(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	var models []OrderModel
	err := dbFrom(ctx, r.db).
		Where("status = ? AND payment_deadline < ?", string(domain.OrderPendingPayment), now).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, ToDomainOrder(&models[i]))
	}
	return orders, nil
}
