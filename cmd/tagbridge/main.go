package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Telmann/opc-ua-task/common/database"
	"github.com/Telmann/opc-ua-task/common/logger"
	commonredis "github.com/Telmann/opc-ua-task/common/redis"
	"github.com/Telmann/opc-ua-task/internal/config"
	"github.com/Telmann/opc-ua-task/internal/discovery"
	httpapi "github.com/Telmann/opc-ua-task/internal/http"
	"github.com/Telmann/opc-ua-task/internal/metrics"
	"github.com/Telmann/opc-ua-task/internal/repository"
	"github.com/Telmann/opc-ua-task/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "tagbridge")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Starting tagbridge",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("discovery_source", cfg.Discovery.Source),
		zap.String("opc_endpoint", cfg.Discovery.Endpoint),
		zap.Strings("object_path", cfg.Discovery.ObjectPath),
	)

	// 数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		lg.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	schemaDB := db
	if cfg.SchemaDBURL != "" {
		schemaDB, err = database.NewPostgresDBFromURL(cfg.SchemaDBURL, &cfg.Database)
		if err != nil {
			lg.Fatal("Failed to connect to schema database", zap.Error(err))
		}
		defer database.Close(schemaDB)
	}

	repo := repository.NewTableRepository(db, repository.NewSchemaRegistry(schemaDB))

	// Redis（事件流；也可作为发现源）
	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb = commonredis.NewRedisClient(&cfg.Redis)
		defer commonredis.Close(rdb)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := commonredis.Ping(pingCtx, rdb)
		cancel()
		if err != nil {
			lg.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	policy, err := discovery.ParsePolicy(cfg.Discovery.MalformedPolicy)
	if err != nil {
		lg.Fatal("Invalid malformed tag policy", zap.Error(err))
	}

	// 每个建表请求使用自己的发现客户端
	var newSource discovery.ClientFactory
	switch cfg.Discovery.Source {
	case config.SourceRedis:
		newSource = func() discovery.Client {
			return discovery.NewRedisClient(rdb, cfg.Simulator.MirrorPrefix)
		}
	default:
		newSource = func() discovery.Client {
			return discovery.NewOPCUAClient(cfg.Discovery.Endpoint, cfg.Discovery.Timeout)
		}
	}

	m := metrics.New()
	svc := service.NewBridgeService(repo, service.NewDiscoverer(newSource, cfg.Discovery.ObjectPath, policy), lg).
		WithMetrics(m).
		WithStatementTimeout(cfg.Database.StatementTimeout)
	if rdb != nil {
		svc = svc.WithEvents(service.NewStreamEventPublisher(rdb, cfg.Events.Stream, cfg.Events.MaxLen))
	}

	router := httpapi.NewRouter(lg)
	router.RegisterTableRoutes(httpapi.NewTablesHandler(svc, lg))
	router.RegisterHealthRoutes(func(ctx context.Context) error {
		return pingAll(ctx, db, rdb)
	})
	router.RegisterMetricsRoutes(m.Handler())

	server := service.NewServer("tagbridge", cfg.HTTP.Addr, router, lg)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		lg.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			lg.Error("HTTP server failed", zap.Error(err))
		}
	}

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		lg.Error("Error during shutdown", zap.Error(err))
	}

	lg.Info("Service stopped")
}

func pingAll(ctx context.Context, db *sql.DB, rdb *redis.Client) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if rdb != nil {
		return commonredis.Ping(ctx, rdb)
	}
	return nil
}
