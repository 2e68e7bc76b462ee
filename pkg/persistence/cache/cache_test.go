package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/nodegraph/pkg/mocks"
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type memoryRedis struct {
	mu      sync.Mutex
	entries map[string][]byte
	down    bool
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{entries: map[string][]byte{}}
}

var errRedisDown = errors.New("connection refused")

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down {
		return redis.NewStringResult("", errRedisDown)
	}

	v, ok := m.entries[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}

	return redis.NewStringResult(string(v), nil)
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down {
		return redis.NewStatusResult("", errRedisDown)
	}

	m.entries[key] = append([]byte(nil), value.([]byte)...)

	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down {
		return redis.NewIntResult(0, errRedisDown)
	}

	for _, k := range keys {
		delete(m.entries, k)
	}

	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *memoryRedis) Ping(_ context.Context) *redis.StatusCmd {
	if m.down {
		return redis.NewStatusResult("", errRedisDown)
	}

	return redis.NewStatusResult("PONG", nil)
}

func testDoc() *models.NodeDocument {
	return &models.NodeDocument{
		Params: map[string]any{"prompt": "a cat", "steps": float64(20)},
		Cache:  true,
		Time:   0.25,
	}
}

func TestPersistence_LoadIsReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := &mocks.MockGateway{}
	inner.On("LoadNodeData", ctx, "n1").Return(testDoc(), nil).Once()

	p := NewWithClient(slog.Default(), newMemoryRedis(), inner, time.Minute)

	first, err := p.LoadNodeData(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, testDoc(), first)

	second, err := p.LoadNodeData(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, testDoc(), second)

	inner.AssertExpectations(t)
}

func TestPersistence_MissIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &mocks.MockGateway{}
	inner.On("LoadNodeData", ctx, "ghost").Return(nil, nil).Twice()

	p := NewWithClient(slog.Default(), newMemoryRedis(), inner, time.Minute)

	for range 2 {
		doc, err := p.LoadNodeData(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, doc)
	}

	inner.AssertExpectations(t)
}

func TestPersistence_SaveAndDeleteKeepCacheCoherent(t *testing.T) {
	ctx := context.Background()
	rc := newMemoryRedis()
	inner := &mocks.MockGateway{}
	doc := testDoc()

	inner.On("SaveNodeData", ctx, "n1", doc).Return(nil).Once()
	inner.On("LoadNodeData", ctx, "n1").Return(doc, nil).Once()
	inner.On("DeleteNodeData", ctx, "n1").Return(nil).Once()
	inner.On("LoadNodeData", ctx, "n1").Return(nil, nil).Once()

	p := NewWithClient(slog.Default(), rc, inner, time.Minute)

	require.NoError(t, p.SaveNodeData(ctx, "n1", doc))
	assert.NotContains(t, rc.entries, key("n1"))

	loaded, err := p.LoadNodeData(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
	assert.Contains(t, rc.entries, key("n1"))

	require.NoError(t, p.DeleteNodeData(ctx, "n1"))
	assert.NotContains(t, rc.entries, key("n1"))

	gone, err := p.LoadNodeData(ctx, "n1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	inner.AssertExpectations(t)
}

func TestPersistence_SaveNeverCachesAnOlderDocument(t *testing.T) {
	ctx := context.Background()
	rc := newMemoryRedis()
	inner := &mocks.MockGateway{}

	older := testDoc()
	newer := testDoc()
	newer.Params["prompt"] = "a dog"

	// The backing store ends with the newer document even though the
	// older save returns last.
	inner.On("SaveNodeData", ctx, "n1", newer).Return(nil).Once()
	inner.On("SaveNodeData", ctx, "n1", older).Return(nil).Once()
	inner.On("LoadNodeData", ctx, "n1").Return(newer, nil).Once()

	p := NewWithClient(slog.Default(), rc, inner, time.Minute)

	require.NoError(t, p.SaveNodeData(ctx, "n1", newer))
	require.NoError(t, p.SaveNodeData(ctx, "n1", older))
	assert.NotContains(t, rc.entries, key("n1"))

	loaded, err := p.LoadNodeData(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "a dog", loaded.Params["prompt"])

	inner.AssertExpectations(t)
}

func TestPersistence_FailedSaveEvicts(t *testing.T) {
	ctx := context.Background()
	rc := newMemoryRedis()
	inner := &mocks.MockGateway{}
	failure := persistence.NewNodeError("save", "n1", persistence.ErrUnreachable)

	inner.On("SaveNodeData", ctx, "n1", mock.Anything).Return(failure)

	p := NewWithClient(slog.Default(), rc, inner, time.Minute)
	rc.entries[key("n1")] = []byte("stale")

	err := p.SaveNodeData(ctx, "n1", testDoc())
	require.Error(t, err)
	assert.True(t, persistence.IsUnreachable(err))
	assert.NotContains(t, rc.entries, key("n1"))
}

func TestPersistence_RedisOutageFallsBack(t *testing.T) {
	ctx := context.Background()
	rc := newMemoryRedis()
	rc.down = true

	inner := &mocks.MockGateway{}
	inner.On("LoadNodeData", ctx, "n1").Return(testDoc(), nil)
	inner.On("SaveNodeData", ctx, "n1", mock.Anything).Return(nil)
	inner.On("HealthCheck", ctx).Return(nil)

	p := NewWithClient(slog.Default(), rc, inner, time.Minute)

	doc, err := p.LoadNodeData(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, testDoc(), doc)

	require.NoError(t, p.SaveNodeData(ctx, "n1", testDoc()))
	assert.True(t, persistence.IsUnreachable(p.HealthCheck(ctx)))
}

func TestPersistence_CorruptEntryIsDiscarded(t *testing.T) {
	ctx := context.Background()
	rc := newMemoryRedis()
	rc.entries[key("n1")] = []byte("not snappy")

	inner := &mocks.MockGateway{}
	inner.On("LoadNodeData", ctx, "n1").Return(testDoc(), nil).Once()

	p := NewWithClient(slog.Default(), rc, inner, time.Minute)

	doc, err := p.LoadNodeData(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, testDoc(), doc)

	raw := rc.entries[key("n1")]
	decoded, err := decode(raw)
	require.NoError(t, err)
	assert.Equal(t, testDoc(), decoded)
}

func TestPersistence_FilesPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := &mocks.MockGateway{}
	inner.On("SaveNodeFile", ctx, "n1", "a.png", []byte("x")).Return("a.png", nil)
	inner.On("LoadNodeFile", ctx, "n1", "a.png").Return([]byte("x"), nil)
	inner.On("DeleteNodeFile", ctx, "n1", "a.png").Return(nil)

	p := NewWithClient(slog.Default(), newMemoryRedis(), inner, time.Minute)

	name, err := p.SaveNodeFile(ctx, "n1", "a.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "a.png", name)

	data, err := p.LoadNodeFile(ctx, "n1", "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	require.NoError(t, p.DeleteNodeFile(ctx, "n1", "a.png"))
	inner.AssertExpectations(t)
}

func TestPersistence_RedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping redis integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	inner := &mocks.MockGateway{}
	inner.On("SaveNodeData", mock.Anything, "n1", mock.Anything).Return(nil)
	inner.On("LoadNodeData", mock.Anything, "n1").Return(testDoc(), nil).Once()
	inner.On("Close", mock.Anything).Return(nil)

	p, err := NewPersistence(ctx, slog.Default(), fmt.Sprintf("redis://%s:%s/0", host, port.Port()), inner)
	require.NoError(t, err)

	require.NoError(t, p.SaveNodeData(ctx, "n1", testDoc()))

	for range 2 {
		doc, err := p.LoadNodeData(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, testDoc(), doc)
	}

	require.NoError(t, p.Close(ctx))
	inner.AssertNumberOfCalls(t, "LoadNodeData", 1)
}
