package port

import "context"

// StockGate 是 Redis 预检闸的出站端口。
// 它维护一份近似库存计数，在进数据库临界区之前把明显买不到的
// 请求挡掉。它只是优化：计数不准不影响正确性，数据库才是权威。
type StockGate interface {
	// TryReserve 原子地尝试从近似库存中扣减 quantity。
	// 返回 false 表示近似库存不足，请求应直接拒绝。
	TryReserve(ctx context.Context, saleID int64, quantity float64) (bool, error)

	// Release 把 quantity 归还近似库存（预检通过但临界区失败时的补偿）。
	Release(ctx context.Context, saleID int64, quantity float64) error

	// Sync 用数据库权威值重置近似库存。
	Sync(ctx context.Context, saleID int64, available float64) error
}
