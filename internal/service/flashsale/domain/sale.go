// internal/service/flashsale/domain/sale.go
package domain

import (
	"time"
)

// SaleStatus 定义了秒杀场次的生命周期状态
type SaleStatus string

const (
	SaleScheduled SaleStatus = "SCHEDULED" // 已排期，未开始
	SaleActive    SaleStatus = "ACTIVE"    // 进行中
	SaleEnded     SaleStatus = "ENDED"     // 已到结束时间
	SaleSoldOut   SaleStatus = "SOLD_OUT"  // 已售罄
	SaleCancelled SaleStatus = "CANCELLED" // 被管理员取消
)

// Sale 是秒杀场次聚合根。
//
// sold/reserved 两个计数器是整个引擎的共享可变状态，
// 只允许在两个地方被修改：
//  1. 购买用例持有场次行锁的临界区内；
//  2. 清扫任务带 status 条件的原子增减。
// 任何时刻必须满足 0 <= sold <= total 且 0 <= sold+reserved <= total。
type Sale struct {
	ID          int64
	FabricID    int64
	FabricName  string
	Name        string
	Description string

	OriginalPrice float64
	FlashPrice    float64

	TotalQuantity    float64 // 面料按米卖，数量是小数
	SoldQuantity     float64
	ReservedQuantity float64

	MaxPerUser  float64
	MinPurchase float64

	StartTime time.Time
	EndTime   time.Time
	Status    SaleStatus

	Priority    int
	IsFeatured  bool
	BannerImage string

	// EligibilityRule 是可选的 CEL 表达式，为空时所有客户可购。
	EligibilityRule string

	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailableQuantity 返回当前可卖数量（总量 - 已售 - 预留中）。
func (s *Sale) AvailableQuantity() float64 {
	return s.TotalQuantity - s.SoldQuantity - s.ReservedQuantity
}

// IsSoldOut 判断是否已无可卖库存。
func (s *Sale) IsSoldOut() bool {
	return s.AvailableQuantity() <= 0
}

// SoldPercentage 返回已售百分比（0-100）。
func (s *Sale) SoldPercentage() int {
	if s.TotalQuantity <= 0 {
		return 0
	}
	return int(s.SoldQuantity / s.TotalQuantity * 100)
}

// DiscountPercent 返回相对原价的折扣百分比。
func (s *Sale) DiscountPercent() int {
	if s.OriginalPrice <= 0 {
		return 0
	}
	return int((s.OriginalPrice - s.FlashPrice) / s.OriginalPrice * 100)
}

// IsOpenAt 判断在给定时刻该场次是否可以下单。
// 购买窗口是左闭右开区间 [StartTime, EndTime)。
func (s *Sale) IsOpenAt(now time.Time) bool {
	return s.Status == SaleActive &&
		!now.Before(s.StartTime) &&
		now.Before(s.EndTime)
}

// HasStarted 判断开售时间是否已过。
func (s *Sale) HasStarted(now time.Time) bool {
	return !now.Before(s.StartTime)
}

// HasEnded 判断结束时间是否已过。
func (s *Sale) HasEnded(now time.Time) bool {
	return !now.Before(s.EndTime)
}

// IsTerminal 判断场次是否已进入不可再变更的终态。
// SOLD_OUT 不算终态：清扫任务之后还会把它推进到 ENDED。
func (s *Sale) IsTerminal() bool {
	return s.Status == SaleEnded || s.Status == SaleCancelled
}

// CanCancel 只有未结束的场次可以被管理员取消。
func (s *Sale) CanCancel() bool {
	return s.Status == SaleScheduled || s.Status == SaleActive || s.Status == SaleSoldOut
}
