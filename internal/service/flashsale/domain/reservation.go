// internal/service/flashsale/domain/reservation.go
package domain

import "time"

// ReservationStatus 定义预留的状态机：
// ACTIVE -> CONVERTED（支付成功）
// ACTIVE -> CANCELLED（订单取消）
// ACTIVE -> EXPIRED（清扫任务超时回收）
// 三条出边互斥，由带状态条件的更新保证恰好发生一次。
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConverted ReservationStatus = "CONVERTED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Reservation 是一次限时库存预留。
// 同一 (SaleID, CustomerID) 最多只允许一条 ACTIVE 记录。
type Reservation struct {
	ID         int64
	SaleID     int64
	CustomerID int64
	Quantity   float64
	Status     ReservationStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewReservation 创建一条 ACTIVE 预留，hold 是预留时长。
func NewReservation(saleID, customerID int64, quantity float64, now time.Time, hold time.Duration) *Reservation {
	return &Reservation{
		SaleID:     saleID,
		CustomerID: customerID,
		Quantity:   quantity,
		Status:     ReservationActive,
		ExpiresAt:  now.Add(hold),
		CreatedAt:  now,
	}
}

// IsExpiredAt 判断给定时刻预留是否已过期（仍为 ACTIVE 但超过截止时间）。
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}
