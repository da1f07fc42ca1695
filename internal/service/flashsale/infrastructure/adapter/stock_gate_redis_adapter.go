package adapter

import (
	"context"
	"fmt"

	"atelier/internal/pkg/redis"
)

const (
	gateReserveScriptName = "stock_gate_reserve"
)

// StockGateRedisAdapter 是 port.StockGate 接口的 Redis 实现。
// 维护一份近似库存计数，把明显买不到的请求在进数据库前挡掉。
// 数量是小数（按米计），所以用 INCRBYFLOAT 系语义而不是 DECR。
type StockGateRedisAdapter struct {
	redisClient *redis.Client
}

// NewStockGateRedisAdapter 创建预检闸适配器，创建时加载 Lua 脚本。
func NewStockGateRedisAdapter(redisClient *redis.Client) (*StockGateRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(gateReserveScriptName, gateReserveScript); err != nil {
		return nil, fmt.Errorf("failed to load stock gate script: %w", err)
	}
	return &StockGateRedisAdapter{redisClient: redisClient}, nil
}

func stockKey(saleID int64) string {
	return fmt.Sprintf("flashsale:stock:{%d}", saleID)
}

// TryReserve 原子地检查并扣减近似库存。
// 计数键不存在时放行（预热缺失不能挡真实流量），交给数据库判。
func (a *StockGateRedisAdapter) TryReserve(ctx context.Context, saleID int64, quantity float64) (bool, error) {
	result, err := a.redisClient.RunScript(ctx, gateReserveScriptName,
		[]string{stockKey(saleID)},
		fmt.Sprintf("%f", quantity),
	)
	if err != nil {
		return false, fmt.Errorf("stock gate failed to run script: %w", err)
	}
	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code == 1, nil
}

// Release 把数量还回近似库存。
func (a *StockGateRedisAdapter) Release(ctx context.Context, saleID int64, quantity float64) error {
	return a.redisClient.GetClient().IncrByFloat(ctx, stockKey(saleID), quantity).Err()
}

// Sync 用数据库权威值重置计数。
func (a *StockGateRedisAdapter) Sync(ctx context.Context, saleID int64, available float64) error {
	return a.redisClient.GetClient().Set(ctx, stockKey(saleID), fmt.Sprintf("%f", available), 0).Err()
}

var gateReserveScript = `
-- KEYS[1]: 场次近似库存的 Key, 例如: flashsale:stock:{42}
-- ARGV[1]: 本次希望扣减的数量（小数）

local stock = redis.call('get', KEYS[1])
if not stock then
    -- 键不存在说明没预热过，放行交给数据库权威判断
    return 1
end

local qty = tonumber(ARGV[1])
if tonumber(stock) >= qty then
    redis.call('incrbyfloat', KEYS[1], -qty)
    return 1
end
return 0
`
