package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/EditMuse/EditMuse-sub002/internal/common/logger"
	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

type blockingGateway struct {
	started chan struct{}
	release chan struct{}
	err     error

	mu   sync.Mutex
	keys []string
	once sync.Once
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *blockingGateway) Get(context.Context, string) (models.RankingOutcome, bool, error) {
	return models.RankingOutcome{}, false, nil
}

func (g *blockingGateway) Put(_ context.Context, key string, _ models.RankingOutcome, _ time.Duration) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.mu.Lock()
	g.keys = append(g.keys, key)
	g.mu.Unlock()
	return g.err
}

func (g *blockingGateway) written() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.keys...)
}

func TestAsyncWriter_WritesThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	w := NewAsyncWriter(NewRedisGateway(client, testPrefix), time.Minute, 4, logger.NewTestLogger(t))
	assert.True(t, w.Enqueue("k1", sampleOutcome()))
	assert.True(t, w.Enqueue("k2", sampleOutcome()))
	w.Close()

	assert.True(t, mr.Exists(testPrefix+"k1"))
	assert.True(t, mr.Exists(testPrefix+"k2"))
}

func TestAsyncWriter_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gw := newBlockingGateway()
	w := NewAsyncWriter(gw, time.Minute, 1, logger.NewNoOpLogger())

	require.True(t, w.Enqueue("first", sampleOutcome()))
	<-gw.started

	assert.True(t, w.Enqueue("second", sampleOutcome()), "queue has one free slot")
	assert.False(t, w.Enqueue("third", sampleOutcome()), "queue is full")

	close(gw.release)
	w.Close()

	assert.Equal(t, []string{"first", "second"}, gw.written())
}

func TestAsyncWriter_ErrorsAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gw := newBlockingGateway()
	gw.err = errors.New("redis down")
	close(gw.release)

	w := NewAsyncWriter(gw, time.Minute, 2, logger.NewTestLogger(t))
	assert.True(t, w.Enqueue("k", sampleOutcome()))
	w.Close()

	assert.Equal(t, []string{"k"}, gw.written())
}

func TestAsyncWriter_EnqueueAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gw := newBlockingGateway()
	close(gw.release)

	w := NewAsyncWriter(gw, time.Minute, 1, nil)
	w.Close()
	w.Close()

	assert.False(t, w.Enqueue("late", sampleOutcome()))
	assert.Empty(t, gw.written())
}
