package domain

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类（哨兵错误），调用方用 errors.Is 判断
var (
	ErrConnection    = errors.New("connection error")
	ErrPathNotFound  = errors.New("path not found")
	ErrNotFound      = errors.New("not found")
	ErrMalformedName = errors.New("malformed tag name")
	ErrValidation    = errors.New("validation error")
	ErrPersistence   = errors.New("persistence error")
	ErrTypeMismatch  = errors.New("tag value type mismatch")
)

// MalformedNameError 标签名缺少 "_" 分隔符
type MalformedNameError struct {
	Name string
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("malformed tag name %q: missing %q delimiter", e.Name, NameDelimiter)
}

func (e *MalformedNameError) Is(target error) bool { return target == ErrMalformedName }

// ValidationError 外部输入校验失败（在持久化之前拒绝）
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError 表或对象不存在
type NotFoundError struct {
	Kind string // "table"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PersistenceError 底层存储失败
type PersistenceError struct {
	Op    string
	Table string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q failed: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// SchemaMismatchError 表存在但缺少标签行所需的列
type SchemaMismatchError struct {
	Table   string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %q is not a tag table: missing columns %s", e.Table, strings.Join(e.Missing, ", "))
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrPersistence }

// DiscoveryError 发现过程失败，Err 包裹 ErrConnection / ErrPathNotFound / *MalformedNameError
type DiscoveryError struct {
	Op   string
	Path []string
	Err  error
}

func (e *DiscoveryError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("discovery %s %s: %v", e.Op, strings.Join(e.Path, "/"), e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// TypeMismatchError 值的运行时形状与声明类型不一致（编程错误）
type TypeMismatchError struct {
	Type TagType
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("value of type %s does not match tag type %q", e.Got, e.Type)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
