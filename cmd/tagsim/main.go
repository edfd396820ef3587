package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Telmann/opc-ua-task/common/logger"
	"github.com/Telmann/opc-ua-task/common/mqtt"
	commonredis "github.com/Telmann/opc-ua-task/common/redis"
	"github.com/Telmann/opc-ua-task/internal/config"
	"github.com/Telmann/opc-ua-task/internal/service"
	"github.com/Telmann/opc-ua-task/internal/simulator"

	"go.uber.org/zap"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s <num_tags>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	numTags, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		log.Fatalf("Invalid number of tags %q: %v", flag.Arg(0), err)
	}
	if err := service.ValidateTagCount(numTags); err != nil {
		log.Fatal(err)
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "tagsim")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Starting tagsim",
		zap.Int("tags", numTags),
		zap.Duration("interval", cfg.Simulator.Interval),
		zap.String("object", cfg.Simulator.ObjectName),
		zap.Bool("redis_mirror", cfg.RedisEnabled),
		zap.Bool("mqtt_telemetry", cfg.MQTT.Enabled),
	)

	svc, err := service.NewSimulatorService(service.SimulatorOptions{
		NumTags:      numTags,
		Interval:     cfg.Simulator.Interval,
		NamespaceURI: cfg.Simulator.NamespaceURI,
		ObjectName:   cfg.Simulator.ObjectName,
		Seed:         cfg.Simulator.Seed,
		MetricsAddr:  cfg.Simulator.MetricsAddr,
	}, lg)
	if err != nil {
		lg.Fatal("Failed to create simulator", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis 快照镜像（tagbridge 的 redis 发现源读取它）
	if cfg.RedisEnabled {
		rdb := commonredis.NewRedisClient(&cfg.Redis)
		defer commonredis.Close(rdb)
		if err := commonredis.Ping(ctx, rdb); err != nil {
			lg.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		svc.SetRedisMirror(simulator.NewRedisMirror(rdb, cfg.Simulator.MirrorPrefix, cfg.Simulator.MirrorTTL))
	}

	// MQTT 遥测（默认关闭）
	if cfg.MQTT.Enabled {
		mc, err := mqtt.NewClient(&cfg.MQTT.MQTTConfig, lg)
		if err != nil {
			lg.Fatal("Failed to connect to MQTT broker", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		}
		defer mc.Disconnect()
		svc.AddPublisher(simulator.NewMQTTTelemetry(mc.Publish, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		lg.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := <-done; err != nil {
			lg.Error("Simulator stopped with error", zap.Error(err))
		}
	case err := <-done:
		if err != nil {
			lg.Error("Simulator stopped with error", zap.Error(err))
		}
	}

	lg.Info("Simulator stopped")
}
