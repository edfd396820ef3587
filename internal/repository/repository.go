package repository

import (
	"context"

	"github.com/Telmann/opc-ua-task/internal/domain"
)

// TablesRepository 设备表持久化接口
type TablesRepository interface {
	CreateTable(ctx context.Context, table string, rows []domain.TagRow) error
	RenameTable(ctx context.Context, oldName, newName string) error
	DeleteTable(ctx context.Context, table string) error

	RenameTag(ctx context.Context, table, oldName, newName string) (int64, error)
	DeleteTag(ctx context.Context, table, name string) (int64, error)
	AddTag(ctx context.Context, table string, row domain.TagRow) (int64, error)

	ListTags(ctx context.Context, table string) ([]domain.TagRow, error)
	ListTables(ctx context.Context) ([]string, error)
}

// 确保实现了接口
var _ TablesRepository = (*TableRepository)(nil)
