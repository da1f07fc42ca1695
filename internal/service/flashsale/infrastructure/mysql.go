package infrastructure

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewGormDB 初始化 MySQL 连接并迁移秒杀相关的表结构。
func NewGormDB(dsn string) (*gorm.DB, error) {
	// 预留和订单的时间比较都在 Go 侧做，时间列必须解析成 time.Time
	dsnCfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	dsnCfg.ParseTime = true
	dsn = dsnCfg.FormatDSN()

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&FlashSaleModel{},
		&ReservationModel{},
		&OrderModel{},
		&OutboxEventModel{},
		&OutboxDeadLetterModel{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate flash sale tables: %w", err)
	}
	return db, nil
}
