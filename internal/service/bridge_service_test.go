package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Telmann/opc-ua-task/internal/discovery"
	"github.com/Telmann/opc-ua-task/internal/domain"
	"github.com/Telmann/opc-ua-task/internal/metrics"
	"github.com/Telmann/opc-ua-task/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTable = "device_abc123"

type bridgeFixture struct {
	svc    *BridgeService
	mock   sqlmock.Sqlmock
	rdb    *redis.Client
	events *StreamEventPublisher
	sim    *SimulatorService
}

func setupBridge(t *testing.T, numTags int) *bridgeFixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	sim, err := NewSimulatorService(SimulatorOptions{
		NumTags:      numTags,
		NamespaceURI: "http://examples.freeopcua.github.io",
		ObjectName:   "MyObject",
		Seed:         11,
	}, logger)
	require.NoError(t, err)

	repo := repository.NewTableRepository(db, nil)
	discover := NewDiscoverer(localClients(sim), discovery.DefaultObjectPath, discovery.PolicyAbort)
	events := NewStreamEventPublisher(rdb, "tagbridge:table:events", 100)

	svc := NewBridgeService(repo, discover, logger).
		WithEvents(events).
		WithMetrics(metrics.New()).
		WithStatementTimeout(5 * time.Second)
	svc.newTableName = func() string { return testTable }

	return &bridgeFixture{svc: svc, mock: mock, rdb: rdb, events: events, sim: sim}
}

func localClients(sim *SimulatorService) discovery.ClientFactory {
	return func() discovery.Client { return discovery.NewLocalClient(sim.Catalog()) }
}

// slowClient 浏览时加入延迟，使并发的发现互相重叠
type slowClient struct {
	*discovery.LocalClient
	delay time.Duration
}

func (c slowClient) Children(ctx context.Context, parent discovery.Node) ([]discovery.Node, error) {
	time.Sleep(c.delay)
	return c.LocalClient.Children(ctx, parent)
}

func expectTagTable(mock sqlmock.Sqlmock, table string) {
	mock.ExpectQuery(`FROM information_schema.columns`).
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "bigint", "NO").
			AddRow("tag_name", "text", "NO").
			AddRow("tag_type", "text", "NO").
			AddRow("tag_value", "text", "NO"))
}

func TestBridgeService_CreateDeviceTable(t *testing.T) {
	f := setupBridge(t, 25)
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "device_abc123"`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(`INSERT INTO "device_abc123"`).WillReturnResult(sqlmock.NewResult(0, 25))
	f.mock.ExpectCommit()

	resp, err := f.svc.CreateDeviceTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, testTable, resp.DeviceName)
	assert.Equal(t, 25, resp.TagCount)
	assert.Empty(t, resp.Skipped)
	require.NoError(t, f.mock.ExpectationsWereMet())

	events, err := f.svc.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTableCreated, events[0].Type)
	assert.Equal(t, testTable, events[0].Table)
	assert.Equal(t, int64(25), events[0].Rows)

	expected := `
# HELP opc_tagbridge_discovery_last_tag_count Number of tags returned by the most recent discovery.
# TYPE opc_tagbridge_discovery_last_tag_count gauge
opc_tagbridge_discovery_last_tag_count 25
`
	assert.NoError(t, testutil.GatherAndCompare(f.svc.metrics.Registry(), strings.NewReader(expected), "opc_tagbridge_discovery_last_tag_count"))
}

func TestBridgeService_CreateDeviceTable_DiscoveryFailure(t *testing.T) {
	f := setupBridge(t, 3)
	f.svc.discover = NewDiscoverer(localClients(f.sim), []string{"0:Objects", "2:Nope"}, discovery.PolicyAbort)

	_, err := f.svc.CreateDeviceTable(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPathNotFound))
	require.NoError(t, f.mock.ExpectationsWereMet())

	events, err := f.svc.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestBridgeService_AddTag_RejectsUnknownType(t *testing.T) {
	f := setupBridge(t, 1)

	_, err := f.svc.AddTag(context.Background(), AddTagRequest{
		TableName: testTable,
		TagName:   "price",
		TagType:   "Currency",
		TagValue:  "1",
	})
	require.Error(t, err)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "tag_type", verr.Field)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBridgeService_AddTag(t *testing.T) {
	f := setupBridge(t, 1)

	expectTagTable(f.mock, testTable)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`INSERT INTO "device_abc123"`).
		WithArgs("pressure", "Double", "12.5").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(26))
	f.mock.ExpectCommit()

	id, err := f.svc.AddTag(context.Background(), AddTagRequest{
		TableName: testTable,
		TagName:   "pressure",
		TagType:   "Double",
		TagValue:  "12.5",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(26), id)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBridgeService_RenameTagPublishesRowCount(t *testing.T) {
	f := setupBridge(t, 1)
	ctx := context.Background()

	expectTagTable(f.mock, testTable)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`UPDATE "device_abc123" SET tag_name`).
		WithArgs("b", "a").
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectCommit()

	n, err := f.svc.RenameTag(ctx, RenameTagRequest{TableName: testTable, OldName: "a", NewName: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := f.svc.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTagRenamed, events[0].Type)
	assert.Equal(t, int64(2), events[0].Rows)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBridgeService_RenameTag_EmptyNewName(t *testing.T) {
	f := setupBridge(t, 1)

	_, err := f.svc.RenameTag(context.Background(), RenameTagRequest{TableName: testTable, OldName: "a", NewName: " "})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBridgeService_DeleteTableNonexistent(t *testing.T) {
	f := setupBridge(t, 1)

	f.mock.ExpectBegin()
	f.mock.ExpectExec(`DROP TABLE IF EXISTS "device_000000"`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.DeleteTable(context.Background(), DeleteTableRequest{TableName: "device_000000"}))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBridgeService_RecentEventsWithoutStream(t *testing.T) {
	svc := NewBridgeService(nil, nil, zap.NewNop())

	events, err := svc.RecentEvents(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDiscoverer_ConcurrentCallsUseSeparateClients(t *testing.T) {
	f := setupBridge(t, 25)

	var created atomic.Int32
	discover := NewDiscoverer(func() discovery.Client {
		created.Add(1)
		return slowClient{LocalClient: discovery.NewLocalClient(f.sim.Catalog()), delay: 20 * time.Millisecond}
	}, discovery.DefaultObjectPath, discovery.PolicyAbort)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	counts := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := discover(context.Background())
			errs[i] = err
			if err == nil {
				counts[i] = len(res.Tags)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, 25, counts[i], "caller %d", i)
	}
	assert.Equal(t, int32(callers), created.Load())
}
