package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Telmann/opc-ua-task/internal/catalog"
	"github.com/Telmann/opc-ua-task/internal/metrics"
	"github.com/Telmann/opc-ua-task/internal/simulator"

	"go.uber.org/zap"
)

// MaxSimulatedTags 模拟器允许的最大标签数
const MaxSimulatedTags = 10000

// SimulatorOptions 模拟器参数
type SimulatorOptions struct {
	NumTags      int
	Interval     time.Duration
	NamespaceURI string
	ObjectName   string
	Seed         int64 // 0 表示使用当前时间
	MetricsAddr  string
}

// SimulatorService 创建节点树并运行更新循环
type SimulatorService struct {
	opts       SimulatorOptions
	catalog    *catalog.Catalog
	object     *catalog.Node
	random     *simulator.Randomizer
	publishers []simulator.Publisher
	mirror     *simulator.RedisMirror
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// ValidateTagCount 标签数必须在 [1, 10000]
func ValidateTagCount(n int) error {
	if n < 1 || n > MaxSimulatedTags {
		return fmt.Errorf("number of tags must be between 1 and %d, got %d", MaxSimulatedTags, n)
	}
	return nil
}

// NewSimulatorService 注册命名空间、创建对象与 NumTags 个随机类型的标签
func NewSimulatorService(opts SimulatorOptions, logger *zap.Logger) (*SimulatorService, error) {
	if err := ValidateTagCount(opts.NumTags); err != nil {
		return nil, err
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	c := catalog.New()
	ns := c.RegisterNamespace(opts.NamespaceURI)
	obj, err := c.AddObject(c.Objects(), ns, opts.ObjectName)
	if err != nil {
		return nil, fmt.Errorf("failed to create object %s: %w", opts.ObjectName, err)
	}

	random := simulator.NewRandomizer(opts.Seed)
	if _, err := c.CreateTags(obj, ns, opts.NumTags, random); err != nil {
		return nil, err
	}

	logger.Info("Address space created",
		zap.String("namespace", opts.NamespaceURI),
		zap.Uint16("namespace_index", ns),
		zap.String("object", opts.ObjectName),
		zap.Int("tags", opts.NumTags),
	)

	return &SimulatorService{
		opts:    opts,
		catalog: c,
		object:  obj,
		random:  random,
		metrics: metrics.New(),
		logger:  logger,
	}, nil
}

// Catalog 节点树
func (s *SimulatorService) Catalog() *catalog.Catalog { return s.catalog }

// Object 被模拟的对象节点
func (s *SimulatorService) Object() *catalog.Node { return s.object }

// Metrics 模拟器指标
func (s *SimulatorService) Metrics() *metrics.Metrics { return s.metrics }

// AddPublisher 追加快照发布者
func (s *SimulatorService) AddPublisher(p simulator.Publisher) {
	s.publishers = append(s.publishers, p)
}

// SetRedisMirror 快照镜像到 Redis；停止时删除镜像键
func (s *SimulatorService) SetRedisMirror(m *simulator.RedisMirror) {
	s.mirror = m
	s.AddPublisher(m)
}

// Run 运行更新循环直到 ctx 取消；停止时先关闭 /metrics，再清理镜像键
func (s *SimulatorService) Run(ctx context.Context) error {
	opts := []simulator.Option{
		simulator.WithInterval(s.opts.Interval),
		simulator.WithMetrics(s.metrics),
	}
	for _, p := range s.publishers {
		opts = append(opts, simulator.WithPublisher(p))
	}

	if s.mirror != nil {
		path := s.catalog.PathOf(s.object)
		opts = append(opts, simulator.OnStop(func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.mirror.Delete(cleanupCtx, path); err != nil {
				s.logger.Warn("Failed to delete mirror key", zap.Error(err))
			}
		}))
	}

	if s.opts.MetricsAddr != "" {
		srv := NewServer("tagsim-metrics", s.opts.MetricsAddr, s.metrics.Handler(), s.logger)
		go func() {
			if err := srv.Start(); err != nil {
				s.logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		opts = append(opts, simulator.OnStop(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}))
	}

	loop := simulator.NewLoop(s.catalog, s.object, s.random, s.logger, opts...)
	return loop.Run(ctx)
}
