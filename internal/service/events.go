package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonredis "github.com/Telmann/opc-ua-task/common/redis"

	"github.com/go-redis/redis/v8"
)

// 表生命周期事件类型
const (
	EventTableCreated = "table.created"
	EventTableRenamed = "table.renamed"
	EventTableDeleted = "table.deleted"
	EventTagRenamed   = "tag.renamed"
	EventTagDeleted   = "tag.deleted"
	EventTagAdded     = "tag.added"
)

// TableEvent 一次成功的表或标签变更
type TableEvent struct {
	Type      string `json:"type"`
	Table     string `json:"table"`
	OldName   string `json:"old_name,omitempty"`
	NewName   string `json:"new_name,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Rows      int64  `json:"rows"`
	Timestamp int64  `json:"timestamp"`
}

// EventPublisher 事件发布接口
type EventPublisher interface {
	PublishTableEvent(ctx context.Context, event TableEvent) error
	RecentTableEvents(ctx context.Context, count int64) ([]TableEvent, error)
}

// StreamEventPublisher 把事件写入 Redis Stream（字段 data 为 JSON）
type StreamEventPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamEventPublisher 创建 Redis Stream 事件发布者
func NewStreamEventPublisher(client *redis.Client, stream string, maxLen int64) *StreamEventPublisher {
	return &StreamEventPublisher{client: client, stream: stream, maxLen: maxLen}
}

// PublishTableEvent 发布事件
func (p *StreamEventPublisher) PublishTableEvent(ctx context.Context, event TableEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	if _, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// RecentTableEvents 最近 count 条事件，新的在前
func (p *StreamEventPublisher) RecentTableEvents(ctx context.Context, count int64) ([]TableEvent, error) {
	msgs, err := commonredis.ReadRange(ctx, p.client, p.stream, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}
	events := make([]TableEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var event TableEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
