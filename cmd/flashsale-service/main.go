// cmd/flashsale-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/httpclient"
	"atelier/internal/pkg/redis"
	"atelier/internal/service/flashsale/application"
	"atelier/internal/service/flashsale/infrastructure"
	"atelier/internal/service/flashsale/infrastructure/adapter"
	"atelier/internal/service/flashsale/interfaces"
	"atelier/internal/zookeeper"
)

const (
	serviceName = "flashsale-service"
	servicePort = 8085
)

// main 是秒杀服务的组装根：创建并组装所有依赖项，然后启动应用。
func main() {
	if err := bootstrap.Init(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := bootstrap.GetCurrentConfig()
	if err := cfg.FlashSale.Validate(); err != nil {
		log.Fatalf("invalid flash sale config: %v", err)
	}

	db, err := infrastructure.NewGormDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		log.Fatalf("failed to initialize mysql: %v", err)
	}

	redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
	defer redisClient.Close()

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to connect to zookeeper: %v", err)
	}
	defer zkConn.Close()

	stockGate, err := adapter.NewStockGateRedisAdapter(redisClient)
	if err != nil {
		log.Fatalf("failed to initialize stock gate: %v", err)
	}
	eligibility, err := adapter.NewCELEligibilityAdapter()
	if err != nil {
		log.Fatalf("failed to initialize eligibility engine: %v", err)
	}

	tracer := otel.Tracer(serviceName)

	svc := application.NewFlashSaleService(application.ServiceParams{
		SaleRepo:  infrastructure.NewGormSaleRepository(db),
		RsvRepo:   infrastructure.NewGormReservationRepository(db),
		OrderRepo: infrastructure.NewGormOrderRepository(db),
		Tx:        infrastructure.NewGormTxManager(db),
		Publisher: infrastructure.NewGormOutboxPublisher(db),

		Locker:      adapter.NewZKLockAdapter(zkConn),
		StockGate:   stockGate,
		Eligibility: eligibility,

		Tracer:        tracer,
		HoldDuration:  cfg.FlashSale.HoldDuration,
		PaymentWindow: cfg.FlashSale.PaymentWindow,
		LockTimeout:   cfg.FlashSale.LockTimeout,
	})

	sweeper := application.NewSweeper(svc, tracer,
		cfg.FlashSale.ReservationSweep,
		cfg.FlashSale.OrderSweep,
		cfg.FlashSale.LifecycleSweep,
	)
	relay := infrastructure.NewOutboxRelay(db, cfg.Infra.Kafka.Brokers, cfg.FlashSale.OutboxRelayPeriod)

	handler := interfaces.NewFlashSaleHandler(svc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// 定价适配器依赖 Nacos 客户端，在这里才拿得到
			svc.SetPricing(adapter.NewPricingHTTPAdapter(
				httpclient.NewClient(tracer),
				appCtx.Nacos,
				cfg.FlashSale.PricingServiceURL,
			))
			handler.RegisterRoutes(appCtx.Mux)
		},
		BackgroundTasks: []func(context.Context) error{
			sweeper.Run,
			relay.Run,
		},
	})
}
