package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/flashsale/application"
	"atelier/internal/service/flashsale/domain"
	"atelier/internal/service/flashsale/domain/port"
)

const serviceName = "flashsale-service"

// 网关注入的身份与画像请求头
const (
	headerCustomerID         = "X-Customer-ID"
	headerCustomerVIP        = "X-Customer-VIP"
	headerCustomerRegion     = "X-Customer-Region"
	headerCustomerOrderCount = "X-Customer-Order-Count"
)

// FlashSaleHandler 封装了秒杀服务的 HTTP 处理器
type FlashSaleHandler struct {
	service *application.FlashSaleService
}

func NewFlashSaleHandler(service *application.FlashSaleService) *FlashSaleHandler {
	return &FlashSaleHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *FlashSaleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/flash-sales/active", h.activeSales)
	mux.HandleFunc("GET /api/v1/flash-sales/upcoming", h.upcomingSales)
	mux.HandleFunc("GET /api/v1/flash-sales/featured", h.featuredSales)
	mux.HandleFunc("GET /api/v1/flash-sales/{id}", h.saleDetail)
	mux.HandleFunc("POST /api/v1/flash-sales/{id}/purchase", h.purchase)

	mux.HandleFunc("GET /api/v1/flash-sales/my-orders", h.myOrders)
	mux.HandleFunc("GET /api/v1/flash-sales/orders/{code}", h.orderDetail)
	mux.HandleFunc("POST /api/v1/flash-sales/orders/{code}/pay", h.confirmPayment)
	mux.HandleFunc("POST /api/v1/flash-sales/orders/{code}/cancel", h.cancelOrder)

	mux.HandleFunc("GET /api/v1/flash-sales", h.listAllSales)
	mux.HandleFunc("POST /api/v1/flash-sales", h.createSale)
	mux.HandleFunc("PUT /api/v1/flash-sales/{id}", h.updateSale)
	mux.HandleFunc("POST /api/v1/flash-sales/{id}/cancel", h.cancelSale)
}

type apiError struct {
	Code          string  `json:"code"`
	Message       string  `json:"message"`
	Available     float64 `json:"available,omitempty"`
	Remaining     float64 `json:"remaining,omitempty"`
	ReservationID int64   `json:"reservation_id,omitempty"`
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

// writeError 把错误映射为 HTTP 响应。
// 业务拒绝是正常结果，返回 200 + 结构化错误码；系统故障返回 503。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if pe, ok := domain.AsPurchaseError(err); ok {
		writeJSON(w, http.StatusOK, apiResponse{Success: false, Error: &apiError{
			Code:          pe.Code,
			Message:       pe.Message,
			Available:     pe.Available,
			Remaining:     pe.Remaining,
			ReservationID: pe.ReservationID,
		}})
		return
	}
	switch {
	case errors.Is(err, domain.ErrSaleNotFound), errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, apiResponse{Success: false, Error: &apiError{Code: "NOT_FOUND", Message: err.Error()}})
	case errors.Is(err, domain.ErrOrderState):
		writeJSON(w, http.StatusConflict, apiResponse{Success: false, Error: &apiError{Code: "INVALID_STATE", Message: err.Error()}})
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("🚨 request failed")
		writeJSON(w, http.StatusServiceUnavailable, apiResponse{Success: false, Error: &apiError{Code: "UNAVAILABLE", Message: "service temporarily unavailable"}})
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: &apiError{Code: "BAD_REQUEST", Message: msg}})
}

// customerFrom 从网关注入的请求头还原客户身份与画像。
func customerFrom(r *http.Request) (int64, port.CustomerProfile, bool) {
	id, err := strconv.ParseInt(r.Header.Get(headerCustomerID), 10, 64)
	if err != nil || id <= 0 {
		return 0, port.CustomerProfile{}, false
	}
	orderCount, _ := strconv.ParseInt(r.Header.Get(headerCustomerOrderCount), 10, 64)
	return id, port.CustomerProfile{
		CustomerID: id,
		IsVIP:      r.Header.Get(headerCustomerVIP) == "true",
		Region:     r.Header.Get(headerCustomerRegion),
		OrderCount: orderCount,
	}, true
}

func extractTraceCtx(r *http.Request) *http.Request {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return r.WithContext(ctx)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

type purchaseRequest struct {
	Quantity        float64 `json:"quantity"`
	ShippingName    string  `json:"shipping_name"`
	ShippingPhone   string  `json:"shipping_phone"`
	ShippingAddress string  `json:"shipping_address"`
	Note            string  `json:"note"`
}

func (h *FlashSaleHandler) purchase(w http.ResponseWriter, r *http.Request) {
	r = extractTraceCtx(r)
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(r.Context(), "api.Purchase")
	defer span.End()

	saleID, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid sale id")
		return
	}
	customerID, profile, ok := customerFrom(r)
	if !ok {
		writeBadRequest(w, "missing or invalid "+headerCustomerID+" header")
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	span.SetAttributes(
		attribute.Int64("sale.id", saleID),
		attribute.Int64("customer.id", customerID),
		attribute.Float64("quantity", req.Quantity),
	)

	result, err := h.service.Purchase(ctx, application.PurchaseCommand{
		SaleID:     saleID,
		CustomerID: customerID,
		Quantity:   req.Quantity,
		Profile:    profile,
		Shipping: domain.ShippingInfo{
			Name:    req.ShippingName,
			Phone:   req.ShippingPhone,
			Address: req.ShippingAddress,
		},
		Note: req.Note,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, result)
}

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *FlashSaleHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	r = extractTraceCtx(r)
	customerID, _, ok := customerFrom(r)
	if !ok {
		writeBadRequest(w, "missing or invalid "+headerCustomerID+" header")
		return
	}
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.PaymentMethod == "" {
		writeBadRequest(w, "payment_method is required")
		return
	}
	view, err := h.service.ConfirmPayment(r.Context(), r.PathValue("code"), customerID, req.PaymentMethod)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, view)
}

func (h *FlashSaleHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	r = extractTraceCtx(r)
	customerID, _, ok := customerFrom(r)
	if !ok {
		writeBadRequest(w, "missing or invalid "+headerCustomerID+" header")
		return
	}
	view, err := h.service.CancelOrder(r.Context(), r.PathValue("code"), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, view)
}

func (h *FlashSaleHandler) activeSales(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ActiveSales(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, views)
}

func (h *FlashSaleHandler) upcomingSales(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.UpcomingSales(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, views)
}

func (h *FlashSaleHandler) featuredSales(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.FeaturedSales(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, views)
}

func (h *FlashSaleHandler) saleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid sale id")
		return
	}
	// 未登录也能看详情，带身份时附带个人限购额度
	customerID, _, _ := customerFrom(r)
	view, err := h.service.SaleDetail(r.Context(), id, customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, view)
}

func (h *FlashSaleHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := customerFrom(r)
	if !ok {
		writeBadRequest(w, "missing or invalid "+headerCustomerID+" header")
		return
	}
	saleID, _ := strconv.ParseInt(r.URL.Query().Get("sale_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	views, err := h.service.MyOrders(r.Context(), customerID, saleID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, views)
}

func (h *FlashSaleHandler) orderDetail(w http.ResponseWriter, r *http.Request) {
	customerID, _, ok := customerFrom(r)
	if !ok {
		writeBadRequest(w, "missing or invalid "+headerCustomerID+" header")
		return
	}
	view, err := h.service.OrderDetail(r.Context(), r.PathValue("code"), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, view)
}

// --- 管理接口 ---

func (h *FlashSaleHandler) listAllSales(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	views, err := h.service.ListAllSales(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, views)
}

func (h *FlashSaleHandler) createSale(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateSaleCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	view, err := h.service.CreateSale(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) {
			writeError(w, r, err)
			return
		}
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{Success: true, Data: view})
}

func (h *FlashSaleHandler) updateSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid sale id")
		return
	}
	var cmd application.UpdateSaleCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	view, err := h.service.UpdateSale(r.Context(), id, cmd)
	if err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) {
			writeError(w, r, err)
			return
		}
		writeBadRequest(w, err.Error())
		return
	}
	writeData(w, view)
}

func (h *FlashSaleHandler) cancelSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid sale id")
		return
	}
	view, err := h.service.CancelSale(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusConflict, apiResponse{Success: false, Error: &apiError{Code: "INVALID_STATE", Message: err.Error()}})
		return
	}
	writeData(w, view)
}
