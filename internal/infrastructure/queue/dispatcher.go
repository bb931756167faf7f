package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/ports"
	"github.com/intranet/realtime-system/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	jobTimeout     = 30 * time.Second
)

// ErrDispatcherClosed is returned by Schedule after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs notification fan-out jobs on a fixed set of workers. Jobs
// are sharded on the room id, so the notifications of one room are written
// in the order the messages were accepted.
type Dispatcher struct {
	workers []chan ports.FanoutJob
	service ports.NotificationService
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.NotificationService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.FanoutJob, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.FanoutJob, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers exit once Close has been
// called and their queue is drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Schedule queues a job on the worker responsible for its room. It blocks
// while that worker's queue is full, until ctx is done.
func (d *Dispatcher) Schedule(ctx context.Context, job ports.FanoutJob) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	idx := d.shardIndex(job.Message.RoomID)
	select {
	case d.workers[idx] <- job:
		metrics.FanoutQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs. Jobs already queued are still processed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
}

// Wait blocks until every worker has drained its queue and exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// shardIndex maps a room id deterministically to a worker index.
func (d *Dispatcher) shardIndex(roomID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.FanoutJob) {
	defer d.wg.Done()
	label := strconv.Itoa(id)

	// The queue is drained even after ctx is cancelled; jobs then run on a
	// detached context bounded by jobTimeout.
	for job := range ch {
		metrics.FanoutQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
		d.process(ctx, id, job)
	}
}

func (d *Dispatcher) process(ctx context.Context, id int, job ports.FanoutJob) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	defer cancel()

	start := time.Now()
	report, err := d.service.FanOutChatMessage(jobCtx, job)

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case report != nil && len(report.Failed()) > 0:
		result = "partial"
	}
	metrics.FanoutDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err != nil {
		d.log.Error().Err(err).
			Str("message_id", job.Message.ID).
			Str("room", job.Message.RoomID).
			Int("worker_id", id).
			Msg("notification fan-out failed")
		return
	}
	for _, f := range report.Failed() {
		d.log.Warn().Err(f.Err).
			Str("message_id", job.Message.ID).
			Str("user_id", f.UserID).
			Int("worker_id", id).
			Msg("notification not delivered")
	}
}
