package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Telmann/opc-ua-task/internal/discovery"
	"github.com/Telmann/opc-ua-task/internal/domain"
	"github.com/Telmann/opc-ua-task/internal/metrics"
	"github.com/Telmann/opc-ua-task/internal/repository"

	"go.uber.org/zap"
)

// Discoverer 一次性发现远端对象下的标签
type Discoverer func(ctx context.Context) (*discovery.Result, error)

// NewDiscoverer 绑定客户端工厂、对象路径与畸形名字策略；每次调用使用独立的客户端，并发请求互不影响
func NewDiscoverer(newClient discovery.ClientFactory, path []string, policy discovery.MalformedPolicy) Discoverer {
	return func(ctx context.Context) (*discovery.Result, error) {
		return discovery.Discover(ctx, newClient(), path, policy)
	}
}

// BridgeService 发现远端标签并同步到设备表
type BridgeService struct {
	repo     repository.TablesRepository
	discover Discoverer
	events   EventPublisher
	metrics  *metrics.Metrics
	timeout  time.Duration
	logger   *zap.Logger

	newTableName func() string
}

// NewBridgeService 创建桥接服务
func NewBridgeService(repo repository.TablesRepository, discover Discoverer, logger *zap.Logger) *BridgeService {
	return &BridgeService{
		repo:         repo,
		discover:     discover,
		logger:       logger,
		newTableName: domain.NewDeviceTableName,
	}
}

// WithEvents 成功的变更写入事件流
func (s *BridgeService) WithEvents(p EventPublisher) *BridgeService {
	s.events = p
	return s
}

// WithMetrics 记录同步操作指标
func (s *BridgeService) WithMetrics(m *metrics.Metrics) *BridgeService {
	s.metrics = m
	return s
}

// WithStatementTimeout 单次持久化操作的超时，0 表示不额外限制
func (s *BridgeService) WithStatementTimeout(d time.Duration) *BridgeService {
	s.timeout = d
	return s
}

func (s *BridgeService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *BridgeService) publish(ctx context.Context, event TableEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTableEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish table event", zap.String("type", event.Type), zap.String("table", event.Table), zap.Error(err))
	}
}

// CreateTableResponse 建表结果
type CreateTableResponse struct {
	DeviceName string   `json:"device_name"`
	TagCount   int      `json:"tag_count"`
	Skipped    []string `json:"skipped,omitempty"`
}

// CreateDeviceTable 发现当前标签，生成新表名，建表并写入全部标签行
func (s *BridgeService) CreateDeviceTable(ctx context.Context) (resp *CreateTableResponse, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSync("create_table", start, err) }()

	result, err := s.discover(ctx)
	if err != nil {
		s.logger.Error("Tag discovery failed", zap.Error(err))
		return nil, err
	}
	s.metrics.ObserveDiscovery(len(result.Tags), len(result.Skipped))
	if len(result.Skipped) > 0 {
		s.logger.Warn("Skipped tags with malformed names", zap.Strings("names", result.Skipped))
	}

	rows, err := result.Rows()
	if err != nil {
		return nil, err
	}

	name := s.newTableName()
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.repo.CreateTable(opCtx, name, rows); err != nil {
		s.logger.Error("Failed to create device table", zap.String("table", name), zap.Int("rows", len(rows)), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Device table created", zap.String("table", name), zap.Int("rows", len(rows)))
	s.publish(ctx, TableEvent{Type: EventTableCreated, Table: name, Rows: int64(len(rows))})
	return &CreateTableResponse{DeviceName: name, TagCount: len(rows), Skipped: result.Skipped}, nil
}

// RenameTableRequest 表改名请求
type RenameTableRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// RenameTable 表改名
func (s *BridgeService) RenameTable(ctx context.Context, req RenameTableRequest) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSync("rename_table", start, err) }()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.repo.RenameTable(opCtx, req.OldName, req.NewName); err != nil {
		s.logger.Warn("Failed to rename table", zap.String("old_name", req.OldName), zap.String("new_name", req.NewName), zap.Error(err))
		return err
	}

	s.logger.Info("Table renamed", zap.String("old_name", req.OldName), zap.String("new_name", req.NewName))
	s.publish(ctx, TableEvent{Type: EventTableRenamed, Table: req.NewName, OldName: req.OldName, NewName: req.NewName})
	return nil
}

// DeleteTableRequest 删表请求
type DeleteTableRequest struct {
	TableName string `json:"table_name"`
}

// DeleteTable 删表（不存在不报错）
func (s *BridgeService) DeleteTable(ctx context.Context, req DeleteTableRequest) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSync("delete_table", start, err) }()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.repo.DeleteTable(opCtx, req.TableName); err != nil {
		s.logger.Warn("Failed to delete table", zap.String("table", req.TableName), zap.Error(err))
		return err
	}

	s.logger.Info("Table deleted", zap.String("table", req.TableName))
	s.publish(ctx, TableEvent{Type: EventTableDeleted, Table: req.TableName})
	return nil
}

// RenameTagRequest 标签改名请求
type RenameTagRequest struct {
	TableName string `json:"table_name"`
	OldName   string `json:"old_name"`
	NewName   string `json:"new_name"`
}

// RenameTag 把表中同名的所有行改名，返回受影响行数
func (s *BridgeService) RenameTag(ctx context.Context, req RenameTagRequest) (n int64, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSync("rename_tag", start, err) }()

	if strings.TrimSpace(req.NewName) == "" {
		return 0, &domain.ValidationError{Field: "new_name", Value: req.NewName, Reason: "must not be empty"}
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	n, err = s.repo.RenameTag(opCtx, req.TableName, req.OldName, req.NewName)
	if err != nil {
		s.logger.Warn("Failed to rename tag", zap.String("table", req.TableName), zap.String("old_name", req.OldName), zap.Error(err))
		return 0, err
	}

	s.logger.Info("Tag renamed", zap.String("table", req.TableName), zap.String("old_name", req.OldName), zap.String("new_name", req.NewName), zap.Int64("rows", n))
	s.publish(ctx, TableEvent{Type: EventTagRenamed, Table: req.TableName, OldName: req.OldName, NewName: req.NewName, Rows: n})
	return n, nil
}

// DeleteTagRequest 删除标签请求
type DeleteTagRequest struct {
	TableName string `json:"table_name"`
	TagName   string `json:"tag_name"`
}

// DeleteTag 删除表中同名的所有行，返回受影响行数
func (s *BridgeService) DeleteTag(ctx context.Context, req DeleteTagRequest) (n int64, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSync("delete_tag", start, err) }()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	n, err = s.repo.DeleteTag(opCtx, req.TableName, req.TagName)
	if err != nil {
		s.logger.Warn("Failed to delete tag", zap.String("table", req.TableName), zap.String("tag", req.TagName), zap.Error(err))
		return 0, err
	}

	s.logger.Info("Tag deleted", zap.String("table", req.TableName), zap.String("tag", req.TagName), zap.Int64("rows", n))
	s.publish(ctx, TableEvent{Type: EventTagDeleted, Table: req.TableName, Tag: req.TagName, Rows: n})
	return n, nil
}

// AddTagRequest 追加标签请求；tag_value 按原文写入
type AddTagRequest struct {
	TableName string `json:"table_name"`
	TagName   string `json:"tag_name"`
	TagType   string `json:"tag_type"`
	TagValue  string `json:"tag_value"`
}

// AddTag 校验类型后追加一行，返回新行 id
func (s *BridgeService) AddTag(ctx context.Context, req AddTagRequest) (id int64, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSync("add_tag", start, err) }()

	typ, err := domain.ParseTagType(req.TagType)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(req.TagName) == "" {
		return 0, &domain.ValidationError{Field: "tag_name", Value: req.TagName, Reason: "must not be empty"}
	}

	row := domain.TagRow{TagName: req.TagName, TagType: typ.String(), TagValue: req.TagValue}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	id, err = s.repo.AddTag(opCtx, req.TableName, row)
	if err != nil {
		s.logger.Warn("Failed to add tag", zap.String("table", req.TableName), zap.String("tag", req.TagName), zap.Error(err))
		return 0, err
	}

	s.logger.Info("Tag added", zap.String("table", req.TableName), zap.String("tag", req.TagName), zap.String("type", row.TagType))
	s.publish(ctx, TableEvent{Type: EventTagAdded, Table: req.TableName, Tag: req.TagName, Rows: 1})
	return id, nil
}

// ListTags 读取表中全部行
func (s *BridgeService) ListTags(ctx context.Context, table string) ([]domain.TagRow, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.repo.ListTags(opCtx, table)
}

// ListTables 设备表名列表
func (s *BridgeService) ListTables(ctx context.Context) ([]string, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	tables, err := s.repo.ListTables(opCtx)
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

// RecentEvents 最近的表变更事件；未配置事件流时返回空
func (s *BridgeService) RecentEvents(ctx context.Context, count int64) ([]TableEvent, error) {
	if s.events == nil {
		return []TableEvent{}, nil
	}
	if count <= 0 {
		count = 20
	}
	events, err := s.events.RecentTableEvents(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
