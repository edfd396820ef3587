package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Telmann/opc-ua-task/common/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB 创建PostgreSQL数据库连接
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	return open(cfg.GetDSN(), cfg)
}

// NewPostgresDBFromURL 使用单独的连接串创建连接（连接池参数沿用 cfg）
// 用于 schema 反射连接：DDL 提交后需要从独立连接读取表结构
func NewPostgresDBFromURL(url string, cfg *config.DatabaseConfig) (*sql.DB, error) {
	if url == "" {
		return NewPostgresDB(cfg)
	}
	return open(url, cfg)
}

func open(dsn string, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
