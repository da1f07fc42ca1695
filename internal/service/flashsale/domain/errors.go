// internal/service/flashsale/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 业务失败码。购买请求被拒绝属于正常业务结果，不是系统故障，
// 接口层会把它们映射为结构化响应而不是 5xx。
const (
	CodeNotActive                  = "NOT_ACTIVE"
	CodeOutOfStock                 = "OUT_OF_STOCK"
	CodeBelowMinimum               = "BELOW_MINIMUM"
	CodeLimitExceeded              = "LIMIT_EXCEEDED"
	CodeDuplicateActiveReservation = "DUPLICATE_ACTIVE_RESERVATION"
	CodeNotEligible                = "NOT_ELIGIBLE"
	CodeLockTimeout                = "LOCK_TIMEOUT"
)

// PurchaseError 是带机器可读码的业务拒绝。
type PurchaseError struct {
	Code    string
	Message string

	// Available 在 OUT_OF_STOCK 时携带当前可卖数量。
	Available float64
	// Remaining 在 LIMIT_EXCEEDED 时携带客户剩余额度。
	Remaining float64
	// ReservationID 在 DUPLICATE_ACTIVE_RESERVATION 时指向已存在的预留。
	ReservationID int64
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsPurchaseError 判断 err 是否为业务拒绝并返回它。
func AsPurchaseError(err error) (*PurchaseError, bool) {
	var pe *PurchaseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func ErrNotActive(saleID int64) *PurchaseError {
	return &PurchaseError{Code: CodeNotActive, Message: fmt.Sprintf("flash sale %d is not open for purchase", saleID)}
}

func ErrOutOfStock(available float64) *PurchaseError {
	return &PurchaseError{
		Code:      CodeOutOfStock,
		Message:   fmt.Sprintf("insufficient stock, only %.2f available", available),
		Available: available,
	}
}

func ErrBelowMinimum(min float64) *PurchaseError {
	return &PurchaseError{Code: CodeBelowMinimum, Message: fmt.Sprintf("quantity is below the minimum purchase of %.2f", min)}
}

func ErrLimitExceeded(remaining float64) *PurchaseError {
	return &PurchaseError{
		Code:      CodeLimitExceeded,
		Message:   fmt.Sprintf("per-customer limit exceeded, %.2f remaining", remaining),
		Remaining: remaining,
	}
}

func ErrDuplicateActiveReservation(reservationID int64) *PurchaseError {
	return &PurchaseError{
		Code:          CodeDuplicateActiveReservation,
		Message:       "customer already holds an active reservation for this sale",
		ReservationID: reservationID,
	}
}

func ErrNotEligible(reason string) *PurchaseError {
	return &PurchaseError{Code: CodeNotEligible, Message: reason}
}

func ErrLockTimeout(saleID int64) *PurchaseError {
	return &PurchaseError{Code: CodeLockTimeout, Message: fmt.Sprintf("sale %d is busy, please retry", saleID)}
}

// 查询类用例的通用错误。
var (
	ErrSaleNotFound  = errors.New("flash sale not found")
	ErrOrderNotFound = errors.New("flash sale order not found")
	ErrOrderState    = errors.New("order is not in a state that allows this operation")
)
