package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// DefaultUserQueueSize is the buffer size of each per-user turn queue.
const DefaultUserQueueSize = 16

// Handler processes one normalized inbound message (one conversation turn).
type Handler func(ctx context.Context, msg models.Message) error

// Dispatcher fans in inbound messages from every channel service and routes
// them to the handler through one ordered queue per channel user. This
// guarantees at most one in-flight turn per user even when channel adapters
// deliver events concurrently, which the flow engine relies on: interleaved
// turns for the same user would corrupt captured inputs and retry counts.
type Dispatcher struct {
	handler Handler

	mu     sync.Mutex
	queues map[string]chan models.Message

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher routing messages to the given handler.
func NewDispatcher(handler Handler) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		queues:  make(map[string]chan models.Message),
	}
}

// Start begins draining every service's inbound channel.
func (d *Dispatcher) Start(ctx context.Context, services ...Service) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	for _, svc := range services {
		d.wg.Add(1)
		go d.drainService(svc)
	}
	slog.Debug("Dispatcher started", "services", len(services))
}

// Stop cancels all workers and waits for in-flight turns to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	slog.Info("Dispatcher stopped")
}

func (d *Dispatcher) drainService(svc Service) {
	defer d.wg.Done()
	for {
		select {
		case msg, ok := <-svc.Messages():
			if !ok {
				slog.Debug("Dispatcher service channel closed", "channel", svc.Channel())
				return
			}
			d.enqueue(msg)
		case <-d.ctx.Done():
			return
		}
	}
}

// enqueue places the message on the sender's queue, spawning the per-user
// worker on first contact.
func (d *Dispatcher) enqueue(msg models.Message) {
	key := string(msg.Channel) + ":" + msg.ChannelUserID

	d.mu.Lock()
	queue, ok := d.queues[key]
	if !ok {
		queue = make(chan models.Message, DefaultUserQueueSize)
		d.queues[key] = queue
		d.wg.Add(1)
		go d.runWorker(key, queue)
	}
	d.mu.Unlock()

	select {
	case queue <- msg:
	default:
		slog.Warn("Dispatcher user queue full, dropping message", "user", key)
	}
}

// runWorker processes one user's turns strictly in order.
func (d *Dispatcher) runWorker(key string, queue chan models.Message) {
	defer d.wg.Done()
	for {
		select {
		case msg := <-queue:
			if err := d.handler(d.ctx, msg); err != nil {
				slog.Error("Dispatcher turn failed", "error", err, "user", key)
			}
		case <-d.ctx.Done():
			return
		}
	}
}
