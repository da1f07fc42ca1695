package port

import (
	"context"
	"time"
)

// SaleLocker 是按场次粒度的分布式锁出站端口。
// 它只是数据库行锁前面的一道限流闸：拿不到锁的请求快速失败，
// 不会堆积在 MySQL 的锁等待队列上。
type SaleLocker interface {
	// Acquire 在 timeout 内尝试获得 saleID 的锁，
	// 成功返回释放函数，超时返回 ErrLockTimeout 类错误。
	Acquire(ctx context.Context, saleID int64, timeout time.Duration) (release func(), err error)
}
