package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// FlashSaleModel 对应数据库中的 flash_sales 表
type FlashSaleModel struct {
	gorm.Model
	FabricID    int64
	FabricName  string
	Name        string
	Description string `gorm:"type:text"`

	OriginalPrice float64 `gorm:"type:decimal(10,2)"`
	FlashPrice    float64 `gorm:"type:decimal(10,2)"`

	TotalQuantity    float64 `gorm:"type:decimal(10,2)"`
	SoldQuantity     float64 `gorm:"type:decimal(10,2)"`
	ReservedQuantity float64 `gorm:"type:decimal(10,2)"`

	MaxPerUser  float64 `gorm:"type:decimal(10,2)"`
	MinPurchase float64 `gorm:"type:decimal(10,2)"`

	StartTime time.Time `gorm:"index"`
	EndTime   time.Time `gorm:"index"`
	Status    string    `gorm:"type:varchar(20);index"`

	Priority        int
	IsFeatured      bool
	BannerImage     string
	EligibilityRule string `gorm:"type:text"`
	CreatedBy       int64
}

func (FlashSaleModel) TableName() string {
	return "flash_sales"
}

// ReservationModel 对应数据库中的 flash_sale_reservations 表。
// 部分唯一索引 MySQL 不支持，(sale_id, customer_id) 上"最多一条 ACTIVE"
// 由购买临界区的行锁保证。
type ReservationModel struct {
	gorm.Model
	SaleID     int64     `gorm:"index:idx_rsv_sale_customer"`
	CustomerID int64     `gorm:"index:idx_rsv_sale_customer"`
	Quantity   float64   `gorm:"type:decimal(10,2)"`
	Status     string    `gorm:"type:varchar(20);index:idx_rsv_status_expires"`
	ExpiresAt  time.Time `gorm:"index:idx_rsv_status_expires"`
}

func (ReservationModel) TableName() string {
	return "flash_sale_reservations"
}

// OrderModel 对应数据库中的 flash_sale_orders 表
type OrderModel struct {
	gorm.Model
	OrderCode     string `gorm:"uniqueIndex;type:varchar(40)"`
	SaleID        int64  `gorm:"index"`
	CustomerID    int64  `gorm:"index"`
	ReservationID int64

	Quantity       float64 `gorm:"type:decimal(10,2)"`
	UnitPrice      float64 `gorm:"type:decimal(10,2)"`
	TotalPrice     float64 `gorm:"type:decimal(10,2)"`
	DiscountAmount float64 `gorm:"type:decimal(10,2)"`

	Status          string     `gorm:"type:varchar(20);index:idx_order_status_deadline"`
	PaymentDeadline time.Time  `gorm:"index:idx_order_status_deadline"`
	PaymentMethod   string     `gorm:"type:varchar(32)"`
	PaidAt          *time.Time

	ShippingName    string `gorm:"type:varchar(64)"`
	ShippingPhone   string `gorm:"type:varchar(32)"`
	ShippingAddress string `gorm:"type:varchar(255)"`
	CustomerNote    string `gorm:"type:varchar(255)"`
}

func (OrderModel) TableName() string {
	return "flash_sale_orders"
}

// OutboxEventModel 对应数据库中的 outbox_events 表。
// 事件与业务数据同事务写入，由 relay 轮询投递。
type OutboxEventModel struct {
	gorm.Model
	EventID    string `gorm:"uniqueIndex;type:varchar(36)"`
	Topic      string `gorm:"type:varchar(100)"`
	MessageKey string `gorm:"type:varchar(100)"`
	Payload    []byte `gorm:"type:blob"`
	Attempts   int
	Published  bool `gorm:"index"`
	OccurredAt time.Time
}

func (OutboxEventModel) TableName() string {
	return "outbox_events"
}

// OutboxDeadLetterModel 对应 outbox_dead_letters 表，
// relay 重试耗尽后事件落在这里等人工处理。
type OutboxDeadLetterModel struct {
	gorm.Model
	EventID    string `gorm:"type:varchar(36)"`
	Topic      string `gorm:"type:varchar(100)"`
	MessageKey string `gorm:"type:varchar(100)"`
	Payload    []byte `gorm:"type:blob"`
	Attempts   int
	LastError  string `gorm:"type:text"`
}

func (OutboxDeadLetterModel) TableName() string {
	return "outbox_dead_letters"
}
