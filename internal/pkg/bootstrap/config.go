// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，从 YAML 文件加载，
// 个别字段允许用环境变量覆盖（容器部署时更方便）。
type Config struct {
	App struct {
		LogLevel string `yaml:"logLevel"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			Enabled   bool   `yaml:"enabled"`
			Addrs     string `yaml:"addrs"`
			Namespace string `yaml:"namespace"`
			Group     string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	FlashSale FlashSaleConfig `yaml:"flashSale"`
}

// FlashSaleConfig 汇集秒杀引擎的业务参数。
type FlashSaleConfig struct {
	HoldDuration      time.Duration `yaml:"holdDuration"`      // 预留的有效时长
	PaymentWindow     time.Duration `yaml:"paymentWindow"`     // 订单支付窗口
	LockTimeout       time.Duration `yaml:"lockTimeout"`       // 抢占场次锁的最长等待时间
	ReservationSweep  time.Duration `yaml:"reservationSweep"`  // 预留过期扫描周期
	OrderSweep        time.Duration `yaml:"orderSweep"`        // 订单过期扫描周期
	LifecycleSweep    time.Duration `yaml:"lifecycleSweep"`    // 场次状态推进周期
	OutboxRelayPeriod time.Duration `yaml:"outboxRelayPeriod"` // 发件箱投递周期
	PricingServiceURL string        `yaml:"pricingServiceURL"` // 价格服务地址（nacos 关闭时使用）
}

// Validate 在启动期校验业务参数之间的约束关系。
// 支付窗口必须不长于预留时长，否则订单还在等待支付时预留已经过期，
// 库存会被提前释放，造成“订单还活着、库存却没了”的矛盾。
func (c FlashSaleConfig) Validate() error {
	if c.HoldDuration <= 0 {
		return fmt.Errorf("flashSale.holdDuration must be positive, got %v", c.HoldDuration)
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("flashSale.paymentWindow must be positive, got %v", c.PaymentWindow)
	}
	if c.PaymentWindow > c.HoldDuration {
		return fmt.Errorf("flashSale.paymentWindow (%v) must not exceed flashSale.holdDuration (%v)",
			c.PaymentWindow, c.HoldDuration)
	}
	return nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.LogLevel = "info"
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/atelier?parseTime=true&loc=UTC"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.FlashSale = FlashSaleConfig{
		HoldDuration:      10 * time.Minute,
		PaymentWindow:     10 * time.Minute,
		LockTimeout:       3 * time.Second,
		ReservationSweep:  5 * time.Second,
		OrderSweep:        30 * time.Second,
		LifecycleSweep:    time.Minute,
		OutboxRelayPeriod: time.Second,
		PricingServiceURL: "http://localhost:8085",
	}
	return cfg
}

var current atomic.Pointer[Config]

// Init 加载配置。配置文件路径来自 CONFIG_FILE 环境变量，缺省时
// 只使用默认值 + 环境变量覆盖，方便本地起服务。
func Init() error {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.FlashSale.Validate(); err != nil {
		return err
	}

	current.Store(cfg)
	return nil
}

// GetCurrentConfig 返回当前生效的配置。必须先调用 Init。
func GetCurrentConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("bootstrap.Init must be called before GetCurrentConfig")
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.Enabled = true
		cfg.Infra.Nacos.Addrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
}
