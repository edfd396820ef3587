package service

import (
	"context"
	"testing"
	"time"

	"github.com/Telmann/opc-ua-task/internal/simulator"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateTagCount(t *testing.T) {
	assert.NoError(t, ValidateTagCount(1))
	assert.NoError(t, ValidateTagCount(MaxSimulatedTags))
	assert.Error(t, ValidateTagCount(0))
	assert.Error(t, ValidateTagCount(MaxSimulatedTags+1))
}

func TestNewSimulatorService_CreatesTags(t *testing.T) {
	sim, err := NewSimulatorService(SimulatorOptions{
		NumTags:      25,
		NamespaceURI: "http://examples.freeopcua.github.io",
		ObjectName:   "MyObject",
		Seed:         3,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, sim.Catalog().Tags(), 25)
	assert.Equal(t, []string{"0:Objects", "2:MyObject"}, sim.Catalog().PathOf(sim.Object()))
}

func TestSimulatorService_RunMirrorsAndCleansUp(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sim, err := NewSimulatorService(SimulatorOptions{
		NumTags:      5,
		Interval:     5 * time.Millisecond,
		NamespaceURI: "http://examples.freeopcua.github.io",
		ObjectName:   "MyObject",
		Seed:         3,
	}, zap.NewNop())
	require.NoError(t, err)
	sim.SetRedisMirror(simulator.NewRedisMirror(rdb, "", 0))

	key := simulator.MirrorKey(simulator.DefaultMirrorPrefix, []string{"0:Objects", "2:MyObject"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	require.Eventually(t, func() bool { return mr.Exists(key) }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}
	assert.False(t, mr.Exists(key))
}
