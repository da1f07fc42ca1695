// cmd/api-gateway/main.go
package main

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/logger"
)

const (
	serviceName = "api-gateway"
	servicePort = 8080
)

var (
	tracer           trace.Tracer
	flashsaleBaseURL *url.URL
)

// main 对外网关：解析会话 token，把客户身份和画像翻译成
// X-Customer-* 请求头后反代到秒杀服务。
// 内部服务信任这些头，所以网关是它们唯一的入口。
func main() {
	if err := bootstrap.Init(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var err error
	flashsaleBaseURL, err = url.Parse(getEnvOr("FLASHSALE_SERVICE_URL", "http://localhost:8085"))
	if err != nil {
		log.Fatalf("invalid FLASHSALE_SERVICE_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(flashsaleBaseURL)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer = otel.Tracer(serviceName)
			appCtx.Mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
				forward(proxy, w, r)
			})
		},
	})
}

// forward 鉴权并注入身份头，然后反代。
func forward(proxy *httputil.ReverseProxy, w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "gateway.Forward", trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.target", r.URL.Path),
	))
	defer span.End()

	session, ok := authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// 客户端伪造的身份头一律剥掉，只认网关注入的
	r.Header.Del("X-Customer-ID")
	r.Header.Del("X-Customer-VIP")
	r.Header.Del("X-Customer-Region")
	r.Header.Del("X-Customer-Order-Count")

	r.Header.Set("X-Customer-ID", strconv.FormatInt(session.customerID, 10))
	r.Header.Set("X-Customer-VIP", strconv.FormatBool(session.isVIP))
	r.Header.Set("X-Customer-Region", session.region)
	r.Header.Set("X-Customer-Order-Count", strconv.FormatInt(session.orderCount, 10))

	span.SetAttributes(attribute.Int64("customer.id", session.customerID))

	// VIP 身份放进 Baggage，下游链路可见
	if session.isVIP {
		member, _ := baggage.NewMember("customer_tier", "vip")
		b, _ := baggage.FromContext(ctx).SetMember(member)
		ctx = baggage.ContextWithBaggage(ctx, b)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))
	proxy.ServeHTTP(w, r.WithContext(ctx))
}

type sessionInfo struct {
	customerID int64
	isVIP      bool
	region     string
	orderCount int64
}

// authenticate 从 Authorization 头解出会话。
// 样例环境用 "Bearer <customerID>" 直通，真实部署换成会话服务调用。
func authenticate(r *http.Request) (sessionInfo, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return sessionInfo{}, false
	}
	id, err := strconv.ParseInt(auth[len(prefix):], 10, 64)
	if err != nil || id <= 0 {
		logger.Ctx(r.Context()).Warn().Str("token", auth).Msg("malformed bearer token")
		return sessionInfo{}, false
	}
	return sessionInfo{
		customerID: id,
		isVIP:      r.Header.Get("X-Session-VIP") == "true",
		region:     r.Header.Get("X-Session-Region"),
		orderCount: 0,
	}, true
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
