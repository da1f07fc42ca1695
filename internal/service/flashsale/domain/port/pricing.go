package port

import "context"

// PricingService 是定价服务的出站端口。
// 秒杀价在创建订单前经它做最终校验，服务不可达时回退到场次自带的秒杀价。
type PricingService interface {
	// QuoteFlashPrice 返回场次当前生效的秒杀单价。
	QuoteFlashPrice(ctx context.Context, saleID int64, fallback float64) (float64, error)
}
