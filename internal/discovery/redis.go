package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Telmann/opc-ua-task/internal/catalog"
	"github.com/Telmann/opc-ua-task/internal/domain"
	"github.com/Telmann/opc-ua-task/internal/simulator"

	"github.com/go-redis/redis/v8"
)

// RedisClient 读取模拟器写入 Redis 的对象快照（键见 simulator.MirrorKey）
//
// 根节点只是路径的起点；ResolvePath 一次 GET 取回整个对象，之后的 Children / Value 不再访问 Redis，
// 因此一次发现中所有值来自同一次迭代。
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient 创建 Redis 镜像客户端
func NewRedisClient(client *redis.Client, prefix string) *RedisClient {
	if prefix == "" {
		prefix = simulator.DefaultMirrorPrefix
	}
	return &RedisClient{client: client, prefix: prefix}
}

type redisRoot struct{}

func (redisRoot) BrowseName(context.Context) (string, error) { return "Root", nil }

func (redisRoot) Value(context.Context) (domain.Value, error) {
	return domain.Value{}, errors.New("root is not a variable")
}

type redisObject struct {
	snap catalog.ObjectSnapshot
}

func (o redisObject) BrowseName(context.Context) (string, error) {
	if len(o.snap.Path) == 0 {
		return "", nil
	}
	return ParseSegment(o.snap.Path[len(o.snap.Path)-1]).Name, nil
}

func (o redisObject) Value(context.Context) (domain.Value, error) {
	return domain.Value{}, errors.New("object is not a variable")
}

type redisTag struct {
	tag catalog.TagSnapshot
}

func (t redisTag) BrowseName(context.Context) (string, error) { return t.tag.Name, nil }

func (t redisTag) Value(context.Context) (domain.Value, error) { return t.tag.Value, nil }

func (c *RedisClient) Connect(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("%w: redis client not configured", domain.ErrConnection)
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return nil
}

// Close 连接由调用方持有，这里不关闭
func (c *RedisClient) Close(context.Context) error { return nil }

func (c *RedisClient) Root(context.Context) (Node, error) { return redisRoot{}, nil }

func (c *RedisClient) ResolvePath(ctx context.Context, start Node, segments []string) (Node, error) {
	if _, ok := start.(redisRoot); !ok {
		return nil, fmt.Errorf("unexpected node type %T", start)
	}
	path := NormalizePath(segments)
	key := simulator.MirrorKey(c.prefix, path)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no snapshot at %s", domain.ErrPathNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	var snap catalog.ObjectSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return redisObject{snap: snap}, nil
}

func (c *RedisClient) Children(_ context.Context, parent Node) ([]Node, error) {
	obj, ok := parent.(redisObject)
	if !ok {
		return nil, nil
	}
	out := make([]Node, 0, len(obj.snap.Tags))
	for _, t := range obj.snap.Tags {
		out = append(out, redisTag{tag: t})
	}
	return out, nil
}
