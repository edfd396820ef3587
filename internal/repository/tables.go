// Package repository 把发现到的标签持久化到 PostgreSQL：每个设备一张表，每个标签一行。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Telmann/opc-ua-task/internal/domain"

	"github.com/lib/pq"
)

// PostgreSQL 错误码
const (
	pqUndefinedTable = "42P01"
	pqDuplicateTable = "42P07"
)

// insertBatchSize 单条 INSERT 的最大行数（每行 3 个参数，远低于 65535 的绑定参数上限）
const insertBatchSize = 1000

// TableRepository 设备表的 DDL 与标签行操作，每个操作一个事务
type TableRepository struct {
	db      *sql.DB
	schemas *SchemaRegistry
}

// NewTableRepository 创建设备表 Repository；schemas 为 nil 时使用 db 读取表结构
func NewTableRepository(db *sql.DB, schemas *SchemaRegistry) *TableRepository {
	if schemas == nil {
		schemas = NewSchemaRegistry(db)
	}
	return &TableRepository{db: db, schemas: schemas}
}

// Schemas 表结构注册表
func (r *TableRepository) Schemas() *SchemaRegistry { return r.schemas }

func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// withTx 开启事务执行 fn；fn 失败或提交失败时回滚。领域错误原样返回，其余包装为 *domain.PersistenceError
func (r *TableRepository) withTx(ctx context.Context, op, table string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: op, Table: table, Err: fmt.Errorf("begin: %w", err)}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return classify(op, table, err)
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: op, Table: table, Err: fmt.Errorf("commit: %w", err)}
	}
	committed = true
	return nil
}

func classify(op, table string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrPersistence) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUndefinedTable:
			return &domain.NotFoundError{Kind: "table", Name: table}
		case pqDuplicateTable:
			return &domain.ValidationError{Field: "table_name", Value: table, Reason: "table already exists"}
		}
	}
	return &domain.PersistenceError{Op: op, Table: table, Err: err}
}

// CreateTable 建表（若不存在）并批量插入 rows；任一步失败整体回滚，不留下表
func (r *TableRepository) CreateTable(ctx context.Context, table string, rows []domain.TagRow) error {
	if err := domain.ValidateIdentifier("table_name", table); err != nil {
		return err
	}
	err := r.withTx(ctx, "create table", table, func(tx *sql.Tx) error {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			tag_name TEXT NOT NULL,
			tag_type TEXT NOT NULL,
			tag_value TEXT NOT NULL
		)`, quote(table))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		for start := 0; start < len(rows); start += insertBatchSize {
			end := start + insertBatchSize
			if end > len(rows) {
				end = len(rows)
			}
			query, args := buildInsert(table, rows[start:end])
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
			}
		}
		return nil
	})
	r.schemas.Invalidate(table)
	return err
}

// buildInsert 生成多行 INSERT：VALUES ($1, $2, $3), ($4, $5, $6) ...
func buildInsert(table string, rows []domain.TagRow) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quote(table))
	b.WriteString(" (tag_name, tag_type, tag_value) VALUES ")
	args := make([]interface{}, 0, len(rows)*3)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 3
		fmt.Fprintf(&b, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, row.TagName, row.TagType, row.TagValue)
	}
	return b.String(), args
}

// RenameTable 表改名；原表不存在返回 *domain.NotFoundError
func (r *TableRepository) RenameTable(ctx context.Context, oldName, newName string) error {
	if err := domain.ValidateIdentifier("old_name", oldName); err != nil {
		return err
	}
	if err := domain.ValidateIdentifier("new_name", newName); err != nil {
		return err
	}
	err := r.withTx(ctx, "rename table", oldName, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(oldName), quote(newName)))
		return err
	})
	r.schemas.Invalidate(oldName, newName)
	return err
}

// DeleteTable 删除表；表不存在不是错误
func (r *TableRepository) DeleteTable(ctx context.Context, table string) error {
	if err := domain.ValidateIdentifier("table_name", table); err != nil {
		return err
	}
	err := r.withTx(ctx, "delete table", table, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quote(table)))
		return err
	})
	r.schemas.Invalidate(table)
	return err
}

// RenameTag 把 table 中所有 tag_name = oldName 的行改名，返回受影响行数（0 不是错误）
func (r *TableRepository) RenameTag(ctx context.Context, table, oldName, newName string) (int64, error) {
	if _, err := r.requireTagTable(ctx, table); err != nil {
		return 0, err
	}
	var affected int64
	err := r.withTx(ctx, "rename tag", table, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET tag_name = $1 WHERE tag_name = $2", quote(table)),
			newName, oldName,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// DeleteTag 删除 table 中所有 tag_name = name 的行，返回受影响行数（0 不是错误）
func (r *TableRepository) DeleteTag(ctx context.Context, table, name string) (int64, error) {
	if _, err := r.requireTagTable(ctx, table); err != nil {
		return 0, err
	}
	var affected int64
	err := r.withTx(ctx, "delete tag", table, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE tag_name = $1", quote(table)),
			name,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// AddTag 追加一行，返回新行 id；tag_type 由调用方在此之前校验
func (r *TableRepository) AddTag(ctx context.Context, table string, row domain.TagRow) (int64, error) {
	if _, err := r.requireTagTable(ctx, table); err != nil {
		return 0, err
	}
	var id int64
	err := r.withTx(ctx, "add tag", table, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			fmt.Sprintf("INSERT INTO %s (tag_name, tag_type, tag_value) VALUES ($1, $2, $3) RETURNING id", quote(table)),
			row.TagName, row.TagType, row.TagValue,
		).Scan(&id)
	})
	return id, err
}

// ListTags 按 id 顺序读取表中全部行
func (r *TableRepository) ListTags(ctx context.Context, table string) ([]domain.TagRow, error) {
	if _, err := r.requireTagTable(ctx, table); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, tag_name, tag_type, tag_value FROM %s ORDER BY id", quote(table)),
	)
	if err != nil {
		return nil, classify("list tags", table, err)
	}
	defer rows.Close()

	out := []domain.TagRow{}
	for rows.Next() {
		var row domain.TagRow
		if err := rows.Scan(&row.ID, &row.TagName, &row.TagType, &row.TagValue); err != nil {
			return nil, &domain.PersistenceError{Op: "list tags", Table: table, Err: err}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list tags", Table: table, Err: err}
	}
	return out, nil
}

// ListTables 设备表名列表
func (r *TableRepository) ListTables(ctx context.Context) ([]string, error) {
	return r.schemas.ListTables(ctx, domain.DeviceTablePrefix)
}

func (r *TableRepository) requireTagTable(ctx context.Context, table string) (*TableSchema, error) {
	if err := domain.ValidateIdentifier("table_name", table); err != nil {
		return nil, err
	}
	return r.schemas.RequireTagTable(ctx, table)
}
