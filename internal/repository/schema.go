package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/Telmann/opc-ua-task/internal/domain"
)

// TagRowColumns 标签表必须具备的列
var TagRowColumns = []string{"id", "tag_name", "tag_type", "tag_value"}

// Column 表的一列
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// TableSchema 从 information_schema 读取的表结构描述
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// HasColumn 是否包含某列
func (s *TableSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Missing 返回 required 中表里不存在的列
func (s *TableSchema) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if !s.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// SchemaRegistry 表结构描述缓存，通过独立的 schema 连接读取 information_schema
type SchemaRegistry struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[string]*TableSchema
}

// NewSchemaRegistry 创建表结构注册表
func NewSchemaRegistry(db *sql.DB) *SchemaRegistry {
	return &SchemaRegistry{db: db, tables: make(map[string]*TableSchema)}
}

// Describe 读取表结构，命中缓存直接返回；表不存在返回 *domain.NotFoundError
func (r *SchemaRegistry) Describe(ctx context.Context, table string) (*TableSchema, error) {
	r.mu.RLock()
	cached, ok := r.tables[table]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := r.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "describe table", Table: table, Err: err}
	}
	defer rows.Close()

	schema := &TableSchema{Name: table}
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, &domain.PersistenceError{Op: "describe table", Table: table, Err: err}
		}
		col.Nullable = nullable == "YES"
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "describe table", Table: table, Err: err}
	}
	if len(schema.Columns) == 0 {
		return nil, &domain.NotFoundError{Kind: "table", Name: table}
	}

	r.mu.Lock()
	r.tables[table] = schema
	r.mu.Unlock()
	return schema, nil
}

// RequireTagTable 表必须存在且具备标签行的全部列
func (r *SchemaRegistry) RequireTagTable(ctx context.Context, table string) (*TableSchema, error) {
	schema, err := r.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	if missing := schema.Missing(TagRowColumns); len(missing) > 0 {
		return nil, &domain.SchemaMismatchError{Table: table, Missing: missing}
	}
	return schema, nil
}

// Invalidate 丢弃缓存（建表、改名、删表之后调用）
func (r *SchemaRegistry) Invalidate(tables ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tables {
		delete(r.tables, t)
	}
}

// ListTables 当前 schema 下以 prefix 开头的表名
func (r *SchemaRegistry) ListTables(ctx context.Context, prefix string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type = 'BASE TABLE'
		  AND starts_with(table_name, $1)
		ORDER BY table_name
	`
	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list tables", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &domain.PersistenceError{Op: "list tables", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list tables", Err: fmt.Errorf("iterate: %w", err)}
	}
	return names, nil
}
