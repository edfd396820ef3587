// Package discovery 一次性遍历远端节点树的某个对象，返回其直接子标签的 (名字, 类型, 值) 快照。
//
// 远端访问通过 Client 能力完成：进程内节点树（LocalClient）、模拟器写入的 Redis 镜像（RedisClient）
// 或真实 OPC UA 服务器（OPCUAClient）。发现过程不重试、不订阅。
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Telmann/opc-ua-task/internal/domain"
)

// DefaultObjectPath 模拟器对象的默认浏览路径
var DefaultObjectPath = []string{"0:Objects", "2:MyObject"}

// Node 远端节点句柄
type Node interface {
	BrowseName(ctx context.Context) (string, error)
	Value(ctx context.Context) (domain.Value, error)
}

// Client 远端节点树访问能力；一个 Client 同一时刻只服务一次 Discover
//   - Connect 失败应返回可被 errors.Is(err, domain.ErrConnection) 识别的错误（未分类的错误按连接错误处理）
//   - ResolvePath 路径不存在应返回 domain.ErrPathNotFound
//   - Children 只返回变量子节点
type Client interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Root(ctx context.Context) (Node, error)
	ResolvePath(ctx context.Context, start Node, segments []string) (Node, error)
	Children(ctx context.Context, parent Node) ([]Node, error)
}

// ClientFactory 每次发现创建一个新的 Client；Client 持有连接状态，不能在并发的发现之间共享
type ClientFactory func() Client

// MalformedPolicy 标签名无法解析时的处理策略
type MalformedPolicy string

const (
	// PolicyAbort 任一标签名不合法即中止整个批次
	PolicyAbort MalformedPolicy = "abort"
	// PolicySkip 跳过不合法的标签并记录在 Result.Skipped
	PolicySkip MalformedPolicy = "skip"
)

// ParsePolicy 解析配置值，空串视为 abort
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", &domain.ValidationError{Field: "malformed_tag_policy", Value: s, Reason: "must be abort or skip"}
}

// Tag 发现到的一个标签
type Tag struct {
	Name       string       // 原始浏览名，如 Double_tag7
	Type       string       // 名字中的类型部分（未校验）
	Identifier string       // 名字中的标识部分
	Value      domain.Value // 发现时刻的值
}

// Row 转为持久化行（值经 domain.Encode 编码）
func (t Tag) Row() (domain.TagRow, error) {
	text, err := domain.Encode(t.Value)
	if err != nil {
		return domain.TagRow{}, err
	}
	return domain.TagRow{TagName: t.Identifier, TagType: t.Type, TagValue: text}, nil
}

// Result 发现结果
type Result struct {
	Path    []string
	Tags    []Tag
	Skipped []string // PolicySkip 下被跳过的原始名字
}

// Rows 全部标签的持久化行
func (r *Result) Rows() ([]domain.TagRow, error) {
	rows := make([]domain.TagRow, 0, len(r.Tags))
	for _, t := range r.Tags {
		row, err := t.Row()
		if err != nil {
			return nil, fmt.Errorf("failed to encode tag %s: %w", t.Name, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Discover 连接、解析路径、枚举直接子节点一次，返回每个子节点的名字、类型/标识和当前值
// path 为空时使用 DefaultObjectPath
func Discover(ctx context.Context, client Client, path []string, policy MalformedPolicy) (*Result, error) {
	if len(path) == 0 {
		path = DefaultObjectPath
	}
	if err := client.Connect(ctx); err != nil {
		return nil, &domain.DiscoveryError{Op: "connect", Path: path, Err: classify(domain.ErrConnection, err)}
	}
	defer client.Close(ctx)

	root, err := client.Root(ctx)
	if err != nil {
		return nil, &domain.DiscoveryError{Op: "root", Path: path, Err: classify(domain.ErrConnection, err)}
	}

	obj, err := client.ResolvePath(ctx, root, path)
	if err != nil {
		return nil, &domain.DiscoveryError{Op: "resolve", Path: path, Err: classify(domain.ErrConnection, err)}
	}

	children, err := client.Children(ctx, obj)
	if err != nil {
		return nil, &domain.DiscoveryError{Op: "browse", Path: path, Err: classify(domain.ErrConnection, err)}
	}

	result := &Result{Path: path, Tags: make([]Tag, 0, len(children))}
	for _, child := range children {
		name, err := child.BrowseName(ctx)
		if err != nil {
			return nil, &domain.DiscoveryError{Op: "read", Path: path, Err: classify(domain.ErrConnection, err)}
		}
		typ, identifier, err := domain.ParseName(name)
		if err != nil {
			if policy == PolicySkip {
				result.Skipped = append(result.Skipped, name)
				continue
			}
			return nil, &domain.DiscoveryError{Op: "parse", Path: path, Err: err}
		}
		value, err := child.Value(ctx)
		if err != nil {
			return nil, &domain.DiscoveryError{Op: "read", Path: path, Err: classify(domain.ErrConnection, fmt.Errorf("%s: %w", name, err))}
		}
		result.Tags = append(result.Tags, Tag{
			Name:       name,
			Type:       typ,
			Identifier: identifier,
			Value:      value,
		})
	}
	return result, nil
}

// classify 保留已分类的错误，否则归入 kind
func classify(kind error, err error) error {
	for _, known := range []error{domain.ErrConnection, domain.ErrPathNotFound, domain.ErrMalformedName, domain.ErrTypeMismatch} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Segment 浏览路径中的一段，"2:MyObject" 或 "Objects"（缺省命名空间 0）
type Segment struct {
	Namespace uint16
	Name      string
}

func (s Segment) String() string {
	return strconv.Itoa(int(s.Namespace)) + ":" + s.Name
}

// ParseSegment 解析 "ns:Name"；前缀不是数字时整段视为命名空间 0 下的名字
func ParseSegment(s string) Segment {
	if prefix, name, ok := strings.Cut(s, ":"); ok {
		if ns, err := strconv.ParseUint(prefix, 10, 16); err == nil {
			return Segment{Namespace: uint16(ns), Name: name}
		}
	}
	return Segment{Name: s}
}

// NormalizePath 统一为 "ns:Name" 形式
func NormalizePath(path []string) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = ParseSegment(p).String()
	}
	return out
}
