package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/api/metrics"
	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher delivers notifications in the background on a fixed set of
// workers. Notifications are sharded by recipient, so messages to the same
// address are delivered in the order they were queued.
type Dispatcher struct {
	workers  []chan domain.Notification
	notifier ports.Notifier
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ ports.NotificationQueue = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers, each
// buffering up to buffer notifications.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers, buffer int, notifier ports.Notifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = channelBuffer
	}
	d := &Dispatcher{
		workers:  make([]chan domain.Notification, numWorkers),
		notifier: notifier,
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.Notification, buffer)
	}
	return d
}

// Start launches all worker goroutines. ctx is passed to every delivery;
// cancelling it stops the workers without draining. Use Shutdown to stop
// gracefully.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands n to the worker responsible for its recipient. It never
// blocks: when that worker's buffer is full, or the dispatcher is shut down,
// the notification is dropped.
func (d *Dispatcher) Enqueue(n domain.Notification) {
	id := d.shardIndex(n.To)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, id, "dispatcher shut down, dropping notification")
		return
	}
	select {
	case d.workers[id] <- n:
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(id)).Inc()
	default:
		d.drop(n, id, "notification queue full, dropping")
	}
}

func (d *Dispatcher) drop(n domain.Notification, id int, msg string) {
	metrics.NotificationsTotal.WithLabelValues(string(n.Channel), "dropped").Inc()
	d.log.Warn().
		Str("channel", string(n.Channel)).
		Str("to", n.To).
		Int("worker_id", id).
		Msg(msg)
}

// Shutdown stops accepting notifications and waits until the workers have
// delivered everything already queued, or until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		d.log.Warn().Int("pending", d.pending()).Msg("notification queue not drained before shutdown")
		return ctx.Err()
	}
}

func (d *Dispatcher) pending() int {
	n := 0
	for _, ch := range d.workers {
		n += len(ch)
	}
	return n
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.Notification) {
	defer d.wg.Done()
	depth := metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			if left := len(ch); left > 0 {
				d.log.Warn().Int("worker_id", id).Int("pending", left).Msg("worker stopped with undelivered notifications")
			}
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			depth.Dec()
			if _, err := d.notifier.Send(ctx, n); err != nil {
				d.log.Error().Err(err).
					Str("channel", string(n.Channel)).
					Str("to", n.To).
					Int("worker_id", id).
					Msg("notification delivery failed")
			}
		}
	}
}
