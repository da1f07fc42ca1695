package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/flashsale/domain"
	"atelier/internal/zookeeper"
)

// ZKLockAdapter 是 port.SaleLocker 接口的 ZooKeeper 实现。
// 每个场次一个锁节点，临时顺序节点排队，超时快速失败，
// 避免拿不到数据库行锁的请求在 MySQL 侧堆积。
type ZKLockAdapter struct {
	conn *zookeeper.Conn
}

func NewZKLockAdapter(conn *zookeeper.Conn) *ZKLockAdapter {
	return &ZKLockAdapter{conn: conn}
}

func (a *ZKLockAdapter) Acquire(ctx context.Context, saleID int64, timeout time.Duration) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(a.conn, fmt.Sprintf("flashsale-%d", saleID))
	if err != nil {
		return nil, fmt.Errorf("create sale lock: %w", err)
	}

	if err := lock.TryLock(timeout); err != nil {
		if errors.Is(err, zookeeper.ErrLockTimeout) {
			return nil, domain.ErrLockTimeout(saleID)
		}
		return nil, fmt.Errorf("acquire sale lock: %w", err)
	}

	release := func() {
		if uerr := lock.Unlock(); uerr != nil {
			logger.Ctx(ctx).Warn().Err(uerr).Int64("sale_id", saleID).Msg("sale lock unlock failed, ephemeral node will expire with session")
		}
	}
	return release, nil
}
