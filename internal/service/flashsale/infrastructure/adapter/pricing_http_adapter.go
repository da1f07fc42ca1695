package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"atelier/internal/pkg/httpclient"
	"atelier/internal/pkg/nacos"
)

const pricingServiceName = "pricing-service"

// PricingHTTPAdapter 是 port.PricingService 接口的 HTTP 实现。
// 优先通过 Nacos 发现定价服务实例，未启用注册中心时退回静态地址。
type PricingHTTPAdapter struct {
	client    *httpclient.Client
	nacos     *nacos.Client
	staticURL string
}

func NewPricingHTTPAdapter(client *httpclient.Client, nacosClient *nacos.Client, staticURL string) *PricingHTTPAdapter {
	return &PricingHTTPAdapter{client: client, nacos: nacosClient, staticURL: staticURL}
}

type flashPriceResponse struct {
	SaleID int64   `json:"sale_id"`
	Price  float64 `json:"price"`
}

// QuoteFlashPrice 向定价服务要当前生效的秒杀单价。
// 无可用地址时直接返回场次自带的价格，不算故障。
func (a *PricingHTTPAdapter) QuoteFlashPrice(ctx context.Context, saleID int64, fallback float64) (float64, error) {
	base, err := a.resolve()
	if err != nil || base == "" {
		return fallback, nil
	}

	params := url.Values{}
	params.Set("sale_id", strconv.FormatInt(saleID, 10))

	body, err := a.client.Get(ctx, base+"/api/v1/pricing/flash-price", params)
	if err != nil {
		return 0, fmt.Errorf("pricing service call failed: %w", err)
	}

	var resp flashPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("pricing service returned malformed body: %w", err)
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("pricing service returned non-positive price %f", resp.Price)
	}
	return resp.Price, nil
}

func (a *PricingHTTPAdapter) resolve() (string, error) {
	if a.nacos != nil {
		ip, port, err := a.nacos.DiscoverServiceInstance(pricingServiceName)
		if err == nil {
			return fmt.Sprintf("http://%s:%d", ip, port), nil
		}
	}
	return a.staticURL, nil
}
