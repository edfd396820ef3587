package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "github.com/Telmann/opc-ua-task/common/config"

	"github.com/BurntSushi/toml"
)

// ConfigFileEnv 可选 TOML 配置文件路径；文件先加载，环境变量覆盖文件
const ConfigFileEnv = "TAGBRIDGE_CONFIG"

// 发现数据来源
const (
	SourceOPCUA = "opcua"
	SourceRedis = "redis"
)

// Config tagsim / tagbridge 共用配置
type Config struct {
	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`

	Database commoncfg.DatabaseConfig `toml:"database"`
	// SchemaDBURL 读取表结构的独立连接串，为空时复用 Database
	SchemaDBURL string `toml:"schema_db_url"`

	RedisEnabled bool                  `toml:"redis_enabled"`
	Redis        commoncfg.RedisConfig `toml:"redis"`

	MQTT MQTTConfig `toml:"mqtt"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Discovery DiscoveryConfig `toml:"discovery"`
	Simulator SimulatorConfig `toml:"simulator"`
	Events    EventsConfig    `toml:"events"`
}

// MQTTConfig 模拟器遥测发布配置（默认禁用）
type MQTTConfig struct {
	Enabled bool `toml:"enabled"`
	commoncfg.MQTTConfig
	TopicPrefix string `toml:"topic_prefix"`
}

// DiscoveryConfig 标签发现配置
type DiscoveryConfig struct {
	Source          string        `toml:"source"`           // opcua | redis
	Endpoint        string        `toml:"endpoint"`         // OPC UA 端点
	ObjectPath      []string      `toml:"object_path"`      // 如 ["0:Objects", "2:MyObject"]
	Timeout         time.Duration `toml:"timeout"`          // 连接与请求超时
	MalformedPolicy string        `toml:"malformed_policy"` // abort | skip
}

// SimulatorConfig 模拟器配置
type SimulatorConfig struct {
	Interval     time.Duration `toml:"interval"`
	NamespaceURI string        `toml:"namespace_uri"`
	ObjectName   string        `toml:"object_name"`
	MirrorPrefix string        `toml:"mirror_prefix"` // Redis 快照键前缀
	MirrorTTL    time.Duration `toml:"mirror_ttl"`
	MetricsAddr  string        `toml:"metrics_addr"` // 为空不启动 /metrics
	Seed         int64         `toml:"seed"`         // 0 表示使用当前时间
}

// EventsConfig 表生命周期事件流
type EventsConfig struct {
	Stream string `toml:"stream"`
	MaxLen int64  `toml:"max_len"`
}

// Default 默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8000"

	cfg.Database = commoncfg.DatabaseConfig{
		Host:             "localhost",
		Port:             5432,
		User:             "postgres",
		Password:         "postgres",
		Database:         "tagbridge",
		SSLMode:          "disable",
		MaxConns:         10,
		MaxIdle:          5,
		StatementTimeout: 30 * time.Second,
	}

	cfg.RedisEnabled = true
	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "tagsim"
	cfg.MQTT.TopicPrefix = "tagsim"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	cfg.Discovery.Source = SourceOPCUA
	cfg.Discovery.Endpoint = "opc.tcp://localhost:4840/freeopcua/server/"
	cfg.Discovery.ObjectPath = []string{"0:Objects", "2:MyObject"}
	cfg.Discovery.Timeout = 10 * time.Second
	cfg.Discovery.MalformedPolicy = "abort"

	cfg.Simulator.Interval = 250 * time.Millisecond
	cfg.Simulator.NamespaceURI = "http://examples.freeopcua.github.io"
	cfg.Simulator.ObjectName = "MyObject"
	cfg.Simulator.MirrorPrefix = "tagsim:objects"
	cfg.Simulator.MirrorTTL = 0

	cfg.Events.Stream = "tagbridge:table:events"
	cfg.Events.MaxLen = 10000
	return cfg
}

// Load 默认值 → TOML 文件（TAGBRIDGE_CONFIG）→ 环境变量
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Database.LoadFromEnv("DB")
	c.SchemaDBURL = getEnv("SCHEMA_DB_URL", c.SchemaDBURL)

	c.RedisEnabled = parseBool(getEnv("REDIS_ENABLED", ""), c.RedisEnabled)
	c.Redis.LoadFromEnv("REDIS")

	c.MQTT.Enabled = parseBool(getEnv("MQTT_ENABLED", ""), c.MQTT.Enabled)
	c.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	c.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Discovery.Source = strings.ToLower(getEnv("DISCOVERY_SOURCE", c.Discovery.Source))
	c.Discovery.Endpoint = getEnv("OPC_ENDPOINT", c.Discovery.Endpoint)
	if path := getEnv("OPC_OBJECT_PATH", ""); path != "" {
		c.Discovery.ObjectPath = splitList(path)
	}
	c.Discovery.Timeout = parseDuration(getEnv("OPC_TIMEOUT", ""), c.Discovery.Timeout)
	c.Discovery.MalformedPolicy = getEnv("MALFORMED_TAG_POLICY", c.Discovery.MalformedPolicy)

	c.Simulator.Interval = parseDuration(getEnv("SIM_INTERVAL", ""), c.Simulator.Interval)
	c.Simulator.NamespaceURI = getEnv("SIM_NAMESPACE_URI", c.Simulator.NamespaceURI)
	c.Simulator.ObjectName = getEnv("SIM_OBJECT_NAME", c.Simulator.ObjectName)
	c.Simulator.MirrorPrefix = getEnv("SIM_MIRROR_KEY", c.Simulator.MirrorPrefix)
	c.Simulator.MirrorTTL = parseDuration(getEnv("SIM_MIRROR_TTL", ""), c.Simulator.MirrorTTL)
	c.Simulator.MetricsAddr = getEnv("SIM_METRICS_ADDR", c.Simulator.MetricsAddr)
	c.Simulator.Seed = parseInt64(getEnv("SIM_SEED", ""), c.Simulator.Seed)

	c.Events.Stream = getEnv("EVENT_STREAM", c.Events.Stream)
	c.Events.MaxLen = parseInt64(getEnv("EVENT_STREAM_MAXLEN", ""), c.Events.MaxLen)
}

// Validate 校验枚举值与必填项
func (c *Config) Validate() error {
	switch c.Discovery.Source {
	case SourceOPCUA, SourceRedis:
	default:
		return fmt.Errorf("invalid DISCOVERY_SOURCE %q: must be %s or %s", c.Discovery.Source, SourceOPCUA, SourceRedis)
	}
	if c.Discovery.Source == SourceRedis && !c.RedisEnabled {
		return fmt.Errorf("DISCOVERY_SOURCE=redis requires REDIS_ENABLED=true")
	}
	switch strings.ToLower(c.Discovery.MalformedPolicy) {
	case "", "abort", "skip":
	default:
		return fmt.Errorf("invalid MALFORMED_TAG_POLICY %q: must be abort or skip", c.Discovery.MalformedPolicy)
	}
	if len(c.Discovery.ObjectPath) == 0 {
		return fmt.Errorf("OPC_OBJECT_PATH must not be empty")
	}
	if c.Simulator.Interval <= 0 {
		return fmt.Errorf("SIM_INTERVAL must be positive, got %s", c.Simulator.Interval)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// splitList 逗号或斜杠分隔，如 "0:Objects,2:MyObject"
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '/' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
