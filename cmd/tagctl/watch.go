package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Telmann/opc-ua-task/common/logger"
	"github.com/Telmann/opc-ua-task/common/mqtt"
	"github.com/Telmann/opc-ua-task/internal/config"
	"github.com/Telmann/opc-ua-task/internal/simulator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// watch 订阅 <prefix>/# 并逐行打印遥测，直到 ctx 取消
func watch(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lg, err := logger.NewLogger(cfg.Log.Level, "console", "tagctl")
	if err != nil {
		return err
	}
	defer lg.Sync()

	mqttCfg := cfg.MQTT.MQTTConfig
	mqttCfg.ClientID = "tagctl-" + uuid.NewString()[:8]

	mc, err := mqtt.NewClient(&mqttCfg, lg)
	if err != nil {
		return err
	}
	defer mc.Disconnect()

	topic := cfg.MQTT.TopicPrefix + "/#"
	err = mc.Subscribe(topic, mqttCfg.QoS, func(topic string, payload []byte) error {
		var msg simulator.TelemetryMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid telemetry payload: %w", err)
		}
		ts := time.Unix(msg.Timestamp, 0).Format(time.RFC3339)
		fmt.Printf("%s  %-40s %-10s %s\n", ts, topic, msg.Type, msg.Value)
		return nil
	})
	if err != nil {
		return err
	}
	lg.Info("Watching telemetry", zap.String("broker", mqttCfg.Broker), zap.String("topic", topic))

	<-ctx.Done()

	if mc.IsConnected() {
		if err := mc.Unsubscribe(topic); err != nil {
			lg.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	return nil
}
