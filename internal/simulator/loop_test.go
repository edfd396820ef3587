package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Telmann/opc-ua-task/internal/catalog"
	"github.com/Telmann/opc-ua-task/internal/domain"
	"github.com/Telmann/opc-ua-task/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// oneType 让 CreateTags 总是选中同一种类型
type oneType int

func (o oneType) Intn(n int) int { return int(o) % n }

func typeIndex(t domain.TagType) oneType {
	for i, tt := range domain.TagTypes {
		if tt == t {
			return oneType(i)
		}
	}
	panic("unknown type")
}

func newTestCatalog(t *testing.T, num int, typ domain.TagType) (*catalog.Catalog, *catalog.Node) {
	c := catalog.New()
	ns := c.RegisterNamespace("http://examples.freeopcua.github.io")
	obj, err := c.AddObject(c.Objects(), ns, "MyObject")
	require.NoError(t, err)
	_, err = c.CreateTags(obj, ns, num, typeIndex(typ))
	require.NoError(t, err)
	return c, obj
}

func TestRandomizer_Ranges(t *testing.T) {
	r := NewRandomizer(42)
	xmlPattern := regexp.MustCompile(`^<result>(\d+)</result>$`)

	for i := 0; i < 2000; i++ {
		f, ok := r.Next(domain.TypeDouble).Float()
		require.True(t, ok)
		assert.GreaterOrEqual(t, f, DoubleMin)
		assert.LessOrEqual(t, f, DoubleMax)

		n, ok := r.Next(domain.TypeInt).Int()
		require.True(t, ok)
		assert.GreaterOrEqual(t, n, int64(IntMin))
		assert.LessOrEqual(t, n, int64(IntMax))

		_, ok = r.Next(domain.TypeBoolean).Bool()
		require.True(t, ok)

		b, ok := r.Next(domain.TypeByteString).Bytes()
		require.True(t, ok)
		assert.Len(t, b, 2)

		x, ok := r.Next(domain.TypeXMLElement).XML()
		require.True(t, ok)
		m := xmlPattern.FindStringSubmatch(x)
		require.Len(t, m, 2, x)
		v, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		assert.LessOrEqual(t, v, XMLMax)
	}
}

func TestRandomizer_BooleanTakesBothValues(t *testing.T) {
	r := NewRandomizer(7)
	seen := map[bool]bool{}
	for i := 0; i < 100; i++ {
		b, _ := r.Next(domain.TypeBoolean).Bool()
		seen[b] = true
	}
	assert.Len(t, seen, 2)
}

func TestLoop_IntTagStaysInRangeAndChanges(t *testing.T) {
	c, obj := newTestCatalog(t, 1, domain.TypeInt)
	loop := NewLoop(c, obj, NewRandomizer(1), zap.NewNop())

	node := c.Tags()[0].Node
	distinct := map[int64]bool{}
	for i := 0; i < 50; i++ {
		require.NoError(t, loop.Step(context.Background()))
		n, ok := node.Value().Int()
		require.True(t, ok)
		assert.GreaterOrEqual(t, n, int64(1))
		assert.LessOrEqual(t, n, int64(150))
		distinct[n] = true
	}
	assert.Greater(t, len(distinct), 1, "value never changed across iterations")
	assert.Equal(t, uint64(50), loop.Iterations())
}

func TestLoop_PreservesTypes(t *testing.T) {
	c := catalog.New()
	ns := c.RegisterNamespace("urn:test")
	obj, err := c.AddObject(c.Objects(), ns, "MyObject")
	require.NoError(t, err)
	_, err = c.CreateTags(obj, ns, 50, NewRandomizer(3))
	require.NoError(t, err)

	loop := NewLoop(c, obj, NewRandomizer(4), zap.NewNop(), WithMetrics(metrics.New()))
	for i := 0; i < 5; i++ {
		require.NoError(t, loop.Step(context.Background()))
	}
	for _, e := range c.Tags() {
		assert.Equal(t, e.Type, e.Node.Value().Type())
	}
}

func TestLoop_RunStopsOnCancelAndReleasesResources(t *testing.T) {
	c, obj := newTestCatalog(t, 3, domain.TypeDouble)

	var stopped []string
	loop := NewLoop(c, obj, NewRandomizer(1), zap.NewNop(),
		WithInterval(5*time.Millisecond),
		OnStop(func() { stopped = append(stopped, "server") }),
		OnStop(func() { stopped = append(stopped, "publisher") }),
	)
	assert.Equal(t, 5*time.Millisecond, loop.Interval())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return loop.Iterations() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, []string{"publisher", "server"}, stopped)
}

func TestWithInterval_IgnoresNonPositive(t *testing.T) {
	c, obj := newTestCatalog(t, 1, domain.TypeInt)
	loop := NewLoop(c, obj, NewRandomizer(1), zap.NewNop(), WithInterval(0))
	assert.Equal(t, DefaultInterval, loop.Interval())
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Name() string { return "failing" }

func (f *failingPublisher) Publish(context.Context, catalog.ObjectSnapshot) error {
	f.calls++
	return errors.New("broker down")
}

func TestLoop_PublishFailureDoesNotStopIteration(t *testing.T) {
	c, obj := newTestCatalog(t, 2, domain.TypeBoolean)
	p := &failingPublisher{}
	loop := NewLoop(c, obj, NewRandomizer(1), zap.NewNop(), WithPublisher(p))

	require.NoError(t, loop.Step(context.Background()))
	require.NoError(t, loop.Step(context.Background()))
	assert.Equal(t, 2, p.calls)
}

func TestRedisMirror_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c, obj := newTestCatalog(t, 4, domain.TypeXMLElement)
	mirror := NewRedisMirror(client, "", 0)
	loop := NewLoop(c, obj, NewRandomizer(1), zap.NewNop(), WithPublisher(mirror))
	require.NoError(t, loop.Step(context.Background()))

	raw, err := mr.Get("tagsim:objects:0:Objects/2:MyObject")
	require.NoError(t, err)

	var snap catalog.ObjectSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	require.Len(t, snap.Tags, 4)
	assert.Equal(t, "XmlElement_tag0", snap.Tags[0].Name)
	assert.Equal(t, domain.TypeXMLElement, snap.Tags[0].Value.Type())
	assert.True(t, snap.Tags[0].Value.Equal(c.Tags()[0].Node.Value()))

	require.NoError(t, mirror.Delete(context.Background(), snap.Path))
	assert.False(t, mr.Exists("tagsim:objects:0:Objects/2:MyObject"))
}

func TestMQTTTelemetry_Publish(t *testing.T) {
	var (
		mu     sync.Mutex
		topics []string
		bodies [][]byte
	)
	publish := func(topic string, qos byte, retained bool, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, byte(1), qos)
		assert.False(t, retained)
		topics = append(topics, topic)
		bodies = append(bodies, payload)
		return nil
	}

	c, obj := newTestCatalog(t, 2, domain.TypeByteString)
	telemetry := NewMQTTTelemetry(publish, "tagsim/", 1)
	telemetry.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, telemetry.Publish(context.Background(), c.Snapshot(obj)))
	assert.Equal(t, []string{"tagsim/MyObject/ByteString_tag0", "tagsim/MyObject/ByteString_tag1"}, topics)

	var msg TelemetryMessage
	require.NoError(t, json.Unmarshal(bodies[0], &msg))
	assert.Equal(t, "ByteString_tag0", msg.Name)
	assert.Equal(t, "ByteString", msg.Type)
	assert.Equal(t, "0x30", msg.Value)
	assert.Equal(t, int64(1700000000), msg.Timestamp)
}

func TestMQTTTelemetry_StopsOnError(t *testing.T) {
	calls := 0
	publish := func(string, byte, bool, []byte) error {
		calls++
		return errors.New("not connected")
	}
	c, obj := newTestCatalog(t, 3, domain.TypeInt)
	err := NewMQTTTelemetry(publish, "tagsim", 0).Publish(context.Background(), c.Snapshot(obj))
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
