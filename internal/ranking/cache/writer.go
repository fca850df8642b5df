package cache

import (
	"context"
	"sync"
	"time"

	"github.com/EditMuse/EditMuse-sub002/internal/common/logger"
	"github.com/EditMuse/EditMuse-sub002/internal/common/metrics"
	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const defaultWriteTimeout = 2 * time.Second

type entry struct {
	key     string
	outcome models.RankingOutcome
}

// AsyncWriter drains cache writes on a single background goroutine. Enqueue
// never blocks: when the queue is full or the writer is closed the write is
// dropped and counted.
type AsyncWriter struct {
	gateway      Gateway
	ttl          time.Duration
	writeTimeout time.Duration
	log          logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}
}

func NewAsyncWriter(gateway Gateway, ttl time.Duration, queueSize int, log logger.Logger) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	w := &AsyncWriter{
		gateway:      gateway,
		ttl:          ttl,
		writeTimeout: defaultWriteTimeout,
		log:          log,
		queue:        make(chan entry, queueSize),
		done:         make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue schedules a write and reports whether it was accepted.
func (w *AsyncWriter) Enqueue(key string, outcome models.RankingOutcome) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		metrics.RankingCacheWritesDropped.Inc()
		return false
	}

	select {
	case w.queue <- entry{key: key, outcome: outcome}:
		return true
	default:
		metrics.RankingCacheWritesDropped.Inc()
		w.log.Warn("Cache write queue full, dropping write", map[string]interface{}{
			"queueSize": cap(w.queue),
		})
		return false
	}
}

// Close stops accepting writes, flushes what is queued and waits for the
// background goroutine to exit. It is safe to call more than once.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
		err := w.gateway.Put(ctx, e.key, e.outcome, w.ttl)
		cancel()
		if err != nil {
			w.log.Warn("Cache write failed", map[string]interface{}{
				"error":     err,
				"rankingId": e.outcome.RankingID,
			})
		}
	}
}
