package infrastructure

import (
	"gorm.io/gorm"

	"atelier/internal/service/flashsale/domain"
)

// ToDomainSale 将数据库模型转换为领域模型
func ToDomainSale(m *FlashSaleModel) *domain.Sale {
	if m == nil {
		return nil
	}
	return &domain.Sale{
		ID:               int64(m.ID),
		FabricID:         m.FabricID,
		FabricName:       m.FabricName,
		Name:             m.Name,
		Description:      m.Description,
		OriginalPrice:    m.OriginalPrice,
		FlashPrice:       m.FlashPrice,
		TotalQuantity:    m.TotalQuantity,
		SoldQuantity:     m.SoldQuantity,
		ReservedQuantity: m.ReservedQuantity,
		MaxPerUser:       m.MaxPerUser,
		MinPurchase:      m.MinPurchase,
		StartTime:        m.StartTime,
		EndTime:          m.EndTime,
		Status:           domain.SaleStatus(m.Status),
		Priority:         m.Priority,
		IsFeatured:       m.IsFeatured,
		BannerImage:      m.BannerImage,
		EligibilityRule:  m.EligibilityRule,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FromDomainSale 将领域模型转换为数据库模型
func FromDomainSale(s *domain.Sale) *FlashSaleModel {
	if s == nil {
		return nil
	}
	return &FlashSaleModel{
		Model:            gorm.Model{ID: uint(s.ID)},
		FabricID:         s.FabricID,
		FabricName:       s.FabricName,
		Name:             s.Name,
		Description:      s.Description,
		OriginalPrice:    s.OriginalPrice,
		FlashPrice:       s.FlashPrice,
		TotalQuantity:    s.TotalQuantity,
		SoldQuantity:     s.SoldQuantity,
		ReservedQuantity: s.ReservedQuantity,
		MaxPerUser:       s.MaxPerUser,
		MinPurchase:      s.MinPurchase,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Status:           string(s.Status),
		Priority:         s.Priority,
		IsFeatured:       s.IsFeatured,
		BannerImage:      s.BannerImage,
		EligibilityRule:  s.EligibilityRule,
		CreatedBy:        s.CreatedBy,
	}
}

func ToDomainReservation(m *ReservationModel) *domain.Reservation {
	if m == nil {
		return nil
	}
	return &domain.Reservation{
		ID:         int64(m.ID),
		SaleID:     m.SaleID,
		CustomerID: m.CustomerID,
		Quantity:   m.Quantity,
		Status:     domain.ReservationStatus(m.Status),
		ExpiresAt:  m.ExpiresAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func FromDomainReservation(r *domain.Reservation) *ReservationModel {
	if r == nil {
		return nil
	}
	return &ReservationModel{
		Model:      gorm.Model{ID: uint(r.ID)},
		SaleID:     r.SaleID,
		CustomerID: r.CustomerID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		ExpiresAt:  r.ExpiresAt,
	}
}

func ToDomainOrder(m *OrderModel) *domain.Order {
	if m == nil {
		return nil
	}
	return &domain.Order{
		ID:              int64(m.ID),
		OrderCode:       m.OrderCode,
		SaleID:          m.SaleID,
		CustomerID:      m.CustomerID,
		ReservationID:   m.ReservationID,
		Quantity:        m.Quantity,
		UnitPrice:       m.UnitPrice,
		TotalPrice:      m.TotalPrice,
		DiscountAmount:  m.DiscountAmount,
		Status:          domain.OrderStatus(m.Status),
		PaymentDeadline: m.PaymentDeadline,
		PaymentMethod:   m.PaymentMethod,
		PaidAt:          m.PaidAt,
		Shipping: domain.ShippingInfo{
			Name:    m.ShippingName,
			Phone:   m.ShippingPhone,
			Address: m.ShippingAddress,
		},
		CustomerNote: m.CustomerNote,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func FromDomainOrder(o *domain.Order) *OrderModel {
	if o == nil {
		return nil
	}
	return &OrderModel{
		Model:           gorm.Model{ID: uint(o.ID)},
		OrderCode:       o.OrderCode,
		SaleID:          o.SaleID,
		CustomerID:      o.CustomerID,
		ReservationID:   o.ReservationID,
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
	}
}
