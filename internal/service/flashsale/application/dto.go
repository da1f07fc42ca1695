// internal/service/flashsale/application/dto.go
package application

import (
	"time"

	"atelier/internal/service/flashsale/domain"
	"atelier/internal/service/flashsale/domain/port"
)

// PurchaseCommand 购买请求。Profile 由接口层从请求头/网关注入。
type PurchaseCommand struct {
	SaleID     int64
	CustomerID int64
	Quantity   float64
	Profile    port.CustomerProfile
	Shipping   domain.ShippingInfo
	Note       string
}

// PurchaseResult 购买成功的返回值。
type PurchaseResult struct {
	OrderCode          string    `json:"order_code"`
	ReservationID      int64     `json:"reservation_id"`
	Quantity           float64   `json:"quantity"`
	UnitPrice          float64   `json:"unit_price"`
	TotalPrice         float64   `json:"total_price"`
	DiscountAmount     float64   `json:"discount_amount"`
	PaymentDeadline    time.Time `json:"payment_deadline"`
	ReservedUntil      time.Time `json:"reserved_until"`
	AvailableQuantity  float64   `json:"available_quantity"`
	RemainingAllowance float64   `json:"remaining_allowance"`
}

// CreateSaleCommand 管理端创建场次。
type CreateSaleCommand struct {
	FabricID        int64   `json:"fabric_id"`
	FabricName      string  `json:"fabric_name"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	OriginalPrice   float64 `json:"original_price"`
	FlashPrice      float64 `json:"flash_price"`
	TotalQuantity   float64 `json:"total_quantity"`
	MaxPerUser      float64 `json:"max_per_user"`
	MinPurchase     float64 `json:"min_purchase"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	Priority        int     `json:"priority"`
	IsFeatured      bool    `json:"is_featured"`
	BannerImage     string  `json:"banner_image"`
	EligibilityRule string  `json:"eligibility_rule"`
	CreatedBy       int64   `json:"created_by"`
}

// UpdateSaleCommand 管理端更新场次，零值字段不更新。
type UpdateSaleCommand struct {
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	FlashPrice      *float64 `json:"flash_price"`
	TotalQuantity   *float64 `json:"total_quantity"`
	MaxPerUser      *float64 `json:"max_per_user"`
	MinPurchase     *float64 `json:"min_purchase"`
	EndTime         *string  `json:"end_time"`
	Priority        *int     `json:"priority"`
	IsFeatured      *bool    `json:"is_featured"`
	BannerImage     *string  `json:"banner_image"`
	EligibilityRule *string  `json:"eligibility_rule"`
}

// SaleView 是对外展示的场次快照。
type SaleView struct {
	ID              int64      `json:"id"`
	FabricID        int64      `json:"fabric_id"`
	FabricName      string     `json:"fabric_name"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	OriginalPrice   float64    `json:"original_price"`
	FlashPrice      float64    `json:"flash_price"`
	DiscountPercent int        `json:"discount_percent"`
	TotalQuantity   float64    `json:"total_quantity"`
	Available       float64    `json:"available_quantity"`
	SoldPercentage  int        `json:"sold_percentage"`
	MaxPerUser      float64    `json:"max_per_user"`
	MinPurchase     float64    `json:"min_purchase"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Status          string     `json:"status"`
	SoldOut         bool       `json:"sold_out"`
	IsFeatured      bool       `json:"is_featured"`
	BannerImage     string     `json:"banner_image,omitempty"`

	// 请求携带客户身份时填充，表示该客户已占用/还可购买的额度。
	UserPurchased *float64 `json:"user_purchased,omitempty"`
	UserRemaining *float64 `json:"user_remaining,omitempty"`
}

// OrderView 是对外展示的订单快照。
type OrderView struct {
	OrderCode       string     `json:"order_code"`
	SaleID          int64      `json:"sale_id"`
	Quantity        float64    `json:"quantity"`
	UnitPrice       float64    `json:"unit_price"`
	TotalPrice      float64    `json:"total_price"`
	DiscountAmount  float64    `json:"discount_amount"`
	Status          string     `json:"status"`
	PaymentDeadline time.Time  `json:"payment_deadline"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	ShippingName    string     `json:"shipping_name,omitempty"`
	ShippingPhone   string     `json:"shipping_phone,omitempty"`
	ShippingAddress string     `json:"shipping_address,omitempty"`
	CustomerNote    string     `json:"customer_note,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toSaleView(s *domain.Sale) *SaleView {
	return &SaleView{
		ID:              s.ID,
		FabricID:        s.FabricID,
		FabricName:      s.FabricName,
		Name:            s.Name,
		Description:     s.Description,
		OriginalPrice:   s.OriginalPrice,
		FlashPrice:      s.FlashPrice,
		DiscountPercent: s.DiscountPercent(),
		TotalQuantity:   s.TotalQuantity,
		Available:       s.AvailableQuantity(),
		SoldPercentage:  s.SoldPercentage(),
		MaxPerUser:      s.MaxPerUser,
		MinPurchase:     s.MinPurchase,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Status:          string(s.Status),
		SoldOut:         s.IsSoldOut(),
		IsFeatured:      s.IsFeatured,
		BannerImage:     s.BannerImage,
	}
}

func toSaleViews(sales []*domain.Sale) []*SaleView {
	views := make([]*SaleView, 0, len(sales))
	for _, s := range sales {
		views = append(views, toSaleView(s))
	}
	return views
}

func toOrderView(o *domain.Order) *OrderView {
	return &OrderView{
		OrderCode:       o.OrderCode,
		SaleID:          o.SaleID,
		Quantity:        o.Quantity,
		UnitPrice:       o.UnitPrice,
		TotalPrice:      o.TotalPrice,
		DiscountAmount:  o.DiscountAmount,
		Status:          string(o.Status),
		PaymentDeadline: o.PaymentDeadline,
		PaymentMethod:   o.PaymentMethod,
		PaidAt:          o.PaidAt,
		ShippingName:    o.Shipping.Name,
		ShippingPhone:   o.Shipping.Phone,
		ShippingAddress: o.Shipping.Address,
		CustomerNote:    o.CustomerNote,
		CreatedAt:       o.CreatedAt,
	}
}
