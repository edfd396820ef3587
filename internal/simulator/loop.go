// Package simulator 模拟实时数据源：周期性地按类型规则改写节点树中每个标签的值。
package simulator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Telmann/opc-ua-task/internal/catalog"
	"github.com/Telmann/opc-ua-task/internal/metrics"

	"go.uber.org/zap"
)

// DefaultInterval 两次迭代之间的等待时间
const DefaultInterval = 250 * time.Millisecond

// Publisher 每次迭代结束后接收对象快照（Redis 镜像、MQTT 遥测等）
type Publisher interface {
	Name() string
	Publish(ctx context.Context, snap catalog.ObjectSnapshot) error
}

// Loop 更新循环
type Loop struct {
	catalog    *catalog.Catalog
	object     *catalog.Node
	random     *Randomizer
	interval   time.Duration
	publishers []Publisher
	onStop     []func()
	metrics    *metrics.Metrics
	logger     *zap.Logger
	iterations atomic.Uint64
}

// Option Loop 可选参数
type Option func(*Loop)

// WithInterval 设置迭代间隔
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithPublisher 追加快照发布者
func WithPublisher(p Publisher) Option {
	return func(l *Loop) { l.publishers = append(l.publishers, p) }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// OnStop 注册停止时的资源释放回调（按注册的逆序执行）
func OnStop(fn func()) Option {
	return func(l *Loop) { l.onStop = append(l.onStop, fn) }
}

// NewLoop 创建更新循环；object 为被发布快照的对象节点
func NewLoop(c *catalog.Catalog, object *catalog.Node, random *Randomizer, logger *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		catalog:  c,
		object:   object,
		random:   random,
		interval: DefaultInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interval 当前迭代间隔
func (l *Loop) Interval() time.Duration { return l.interval }

// Iterations 已完成的迭代次数
func (l *Loop) Iterations() uint64 { return l.iterations.Load() }

// Step 执行一次迭代：按插入顺序改写全部标签，然后发布快照
func (l *Loop) Step(ctx context.Context) error {
	start := time.Now()
	for _, entry := range l.catalog.Tags() {
		if err := entry.Node.SetValue(l.random.Next(entry.Type)); err != nil {
			return fmt.Errorf("failed to update %s: %w", entry.Node.ID(), err)
		}
		l.metrics.TagWritten(string(entry.Type))
	}
	l.iterations.Add(1)
	l.metrics.ObserveIteration(time.Since(start))

	if len(l.publishers) == 0 || l.object == nil {
		return nil
	}
	snap := l.catalog.Snapshot(l.object)
	for _, p := range l.publishers {
		if err := p.Publish(ctx, snap); err != nil {
			// 发布失败不影响下一次迭代
			l.metrics.PublishFailed(p.Name())
			l.logger.Warn("Failed to publish snapshot",
				zap.String("publisher", p.Name()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Run 循环执行 Step，直到 ctx 取消；只在两次迭代之间响应取消
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	l.logger.Info("Starting update loop",
		zap.Int("tag_count", len(l.catalog.Tags())),
		zap.Duration("interval", l.interval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Update loop stopped", zap.Uint64("iterations", l.iterations.Load()))
			return nil
		case <-timer.C:
		}

		if err := l.Step(ctx); err != nil {
			return err
		}
		timer.Reset(l.interval)
	}
}

func (l *Loop) stop() {
	for i := len(l.onStop) - 1; i >= 0; i-- {
		l.onStop[i]()
	}
}
