// internal/service/flashsale/domain/repository.go
package domain

import (
	"context"
	"time"
)

// TxManager 把多个仓储操作包进同一个数据库事务。
// fn 内通过传入的 ctx 取到事务句柄，fn 返回错误则整体回滚。
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SaleRepository 定义秒杀场次聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type SaleRepository interface {
	Create(ctx context.Context, sale *Sale) error
	Save(ctx context.Context, sale *Sale) error

	FindByID(ctx context.Context, id int64) (*Sale, error)

	// FindByIDForUpdate 在当前事务内对场次行加排他锁，
	// 购买临界区的所有读写都必须发生在这把锁之后。
	FindByIDForUpdate(ctx context.Context, id int64) (*Sale, error)

	// FindActive 返回当前时刻可购的场次，按 priority 降序。
	FindActive(ctx context.Context, now time.Time) ([]*Sale, error)
	// FindUpcoming 返回已排期未开始的场次，按开始时间升序。
	FindUpcoming(ctx context.Context, now time.Time) ([]*Sale, error)
	// FindFeatured 返回进行中的置顶场次。
	FindFeatured(ctx context.Context, now time.Time) ([]*Sale, error)
	// FindAll 是管理端列表查询，status 为空时不过滤。
	FindAll(ctx context.Context, status SaleStatus, limit, offset int) ([]*Sale, error)

	// ActivateDue 把开始时间已到的 SCHEDULED 场次批量置为 ACTIVE，返回受影响行数。
	ActivateDue(ctx context.Context, now time.Time) (int64, error)
	// EndDue 把结束时间已到的 ACTIVE/SOLD_OUT 场次批量置为 ENDED，返回受影响行数。
	EndDue(ctx context.Context, now time.Time) (int64, error)
}

// ReservationRepository 定义库存预留的持久化接口。
type ReservationRepository interface {
	Create(ctx context.Context, rsv *Reservation) error
	FindByID(ctx context.Context, id int64) (*Reservation, error)

	// FindActiveBySaleAndCustomer 查找客户在该场次下的 ACTIVE 预留，
	// 不存在时返回 (nil, nil)。
	FindActiveBySaleAndCustomer(ctx context.Context, saleID, customerID int64) (*Reservation, error)

	// FindExpired 返回截止时间已过但仍为 ACTIVE 的预留。
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)

	// TransitionFromActive 带状态条件地把预留从 ACTIVE 推进到 to。
	// 返回 false 表示预留已被并发操作改走，调用方必须放弃后续副作用。
	TransitionFromActive(ctx context.Context, id int64, to ReservationStatus) (bool, error)
}

// OrderRepository 定义秒杀订单的持久化接口。
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	FindByCode(ctx context.Context, code string) (*Order, error)
	// FindByCustomer 返回客户的订单，saleID 为 0 时不按场次过滤。
	FindByCustomer(ctx context.Context, customerID, saleID int64, limit, offset int) ([]*Order, error)

	// SumQuantityByCustomer 统计客户在该场次仍占用限购额度的总数量。
	SumQuantityByCustomer(ctx context.Context, saleID, customerID int64) (float64, error)

	// TransitionFromPending 带状态条件地把订单从 PENDING_PAYMENT 推进到 to。
	// paidAt 与 method 仅在推进到 PAID 时写入。
	TransitionFromPending(ctx context.Context, code string, to OrderStatus, paidAt *time.Time, method string) (bool, error)

	// FindOverduePending 返回支付截止时间已过但仍为 PENDING_PAYMENT 的
	// 订单候选，真正的状态转换由调用方逐行带条件执行。
	FindOverduePending(ctx context.Context, now time.Time, limit int) ([]*Order, error)
}

// EventPublisher 是领域事件的出站接口。Append 在当前事务内
// 把事件写入 outbox，由 relay 异步投递到 Kafka。
type EventPublisher interface {
	Append(ctx context.Context, events ...*Event) error
}
