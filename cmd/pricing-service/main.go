// cmd/pricing-service/main.go
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/redis"
)

const serviceName = "pricing-service"

var (
	tracer      trace.Tracer
	redisClient *redis.Client
)

// main 定价服务：维护场次秒杀价的动态覆盖（Redis），
// 秒杀服务下单前来这里要最终价。
func main() {
	if err := bootstrap.Init(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := bootstrap.GetCurrentConfig()
	redisClient = redis.NewClient(cfg.Infra.Redis.Addr)
	defer redisClient.Close()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(ctx bootstrap.AppCtx) {
			tracer = otel.Tracer(serviceName)
			ctx.Mux.HandleFunc("GET /api/v1/pricing/flash-price", handleFlashPrice)
			ctx.Mux.HandleFunc("PUT /api/v1/pricing/flash-price", handleSetOverride)
		},
	})
}

func overrideKey(saleID int64) string {
	return "pricing:flash-override:" + strconv.FormatInt(saleID, 10)
}

type priceResponse struct {
	SaleID int64   `json:"sale_id"`
	Price  float64 `json:"price"`
}

func handleFlashPrice(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := tracer.Start(ctx, "pricing.FlashPrice")
	defer span.End()

	saleID, err := strconv.ParseInt(r.URL.Query().Get("sale_id"), 10, 64)
	if err != nil || saleID <= 0 {
		http.Error(w, "sale_id is required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int64("sale.id", saleID))

	// 只有存在动态覆盖才返回价格，否则 404 让调用方用场次自带价
	price, err := redisClient.GetClient().Get(ctx, overrideKey(saleID)).Float64()
	if err != nil {
		http.Error(w, "no price override for sale", http.StatusNotFound)
		return
	}

	span.AddEvent("price override served")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(priceResponse{SaleID: saleID, Price: price})
}

type setOverrideRequest struct {
	SaleID int64   `json:"sale_id"`
	Price  float64 `json:"price"`
	TTLSec int64   `json:"ttl_seconds"`
}

func handleSetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := tracer.Start(ctx, "pricing.SetOverride")
	defer span.End()

	var req setOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SaleID <= 0 || req.Price <= 0 {
		http.Error(w, "sale_id and positive price are required", http.StatusBadRequest)
		return
	}

	var ttl time.Duration
	if req.TTLSec > 0 {
		ttl = time.Duration(req.TTLSec) * time.Second
	}
	if err := redisClient.GetClient().Set(ctx, overrideKey(req.SaleID), req.Price, ttl).Err(); err != nil {
		http.Error(w, "failed to store override", http.StatusServiceUnavailable)
		return
	}

	span.SetAttributes(attribute.Int64("sale.id", req.SaleID), attribute.Float64("price", req.Price))
	w.WriteHeader(http.StatusNoContent)
}
