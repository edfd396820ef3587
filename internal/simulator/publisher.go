package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Telmann/opc-ua-task/internal/catalog"
	"github.com/Telmann/opc-ua-task/internal/domain"

	"github.com/go-redis/redis/v8"
)

// DefaultMirrorPrefix Redis 镜像键前缀，完整键为 <prefix>:<浏览路径>
const DefaultMirrorPrefix = "tagsim:objects"

// MirrorKey 对象快照在 Redis 中的键
func MirrorKey(prefix string, path []string) string {
	return prefix + ":" + catalog.JoinPath(path)
}

// RedisMirror 把每次迭代的对象快照整体写入一个 Redis 键（SET 覆盖，读取方总是看到完整快照）
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror 创建 Redis 镜像发布者；ttl 为 0 表示不过期
func NewRedisMirror(client *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = DefaultMirrorPrefix
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) Name() string { return "redis" }

// Publish 写入快照
func (m *RedisMirror) Publish(ctx context.Context, snap catalog.ObjectSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := MirrorKey(m.prefix, snap.Path)
	if err := m.client.Set(ctx, key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write mirror key %s: %w", key, err)
	}
	return nil
}

// Delete 停止时删除镜像键，避免发现方读到过期数据
func (m *RedisMirror) Delete(ctx context.Context, path []string) error {
	return m.client.Del(ctx, MirrorKey(m.prefix, path)).Err()
}

// MQTTPublishFunc 与 common/mqtt.Client.Publish 签名一致
type MQTTPublishFunc func(topic string, qos byte, retained bool, payload []byte) error

// TelemetryMessage MQTT 上每个标签的消息体
type TelemetryMessage struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// MQTTTelemetry 每次迭代把每个标签的编码值发布到 <prefix>/<对象名>/<标签名>
type MQTTTelemetry struct {
	publish MQTTPublishFunc
	prefix  string
	qos     byte
	now     func() time.Time
}

// NewMQTTTelemetry 创建 MQTT 遥测发布者
func NewMQTTTelemetry(publish MQTTPublishFunc, prefix string, qos byte) *MQTTTelemetry {
	return &MQTTTelemetry{
		publish: publish,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		now:     time.Now,
	}
}

func (m *MQTTTelemetry) Name() string { return "mqtt" }

// Topic 标签对应的主题
func (m *MQTTTelemetry) Topic(path []string, tagName string) string {
	object := ""
	if len(path) > 0 {
		last := path[len(path)-1]
		if _, name, ok := strings.Cut(last, ":"); ok {
			last = name
		}
		object = last
	}
	return fmt.Sprintf("%s/%s/%s", m.prefix, object, tagName)
}

// Publish 逐个标签发布；遇到第一个错误即返回
func (m *MQTTTelemetry) Publish(_ context.Context, snap catalog.ObjectSnapshot) error {
	ts := m.now().Unix()
	for _, tag := range snap.Tags {
		text, err := domain.Encode(tag.Value)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(TelemetryMessage{
			Name:      tag.Name,
			Type:      string(tag.Value.Type()),
			Value:     text,
			Timestamp: ts,
		})
		if err != nil {
			return err
		}
		if err := m.publish(m.Topic(snap.Path, tag.Name), m.qos, false, payload); err != nil {
			return err
		}
	}
	return nil
}
