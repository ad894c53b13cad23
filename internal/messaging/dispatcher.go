package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BotWeave/BotWeave/internal/models"
)

// DefaultQueueBufferSize is the per-sender queue depth. A full queue blocks
// the pump rather than dropping, preserving arrival order.
const DefaultQueueBufferSize = 16

// InboundHandler processes one inbound message to completion.
type InboundHandler interface {
	HandleInboundMessage(ctx context.Context, msg models.InboundMessage)
}

// Dispatcher routes inbound messages to the handler with per-sender
// serialization: messages from the same phone number are processed strictly
// in arrival order by a dedicated worker goroutine, while different phone
// numbers proceed in parallel. Session mutation is read-modify-write with no
// optimistic-concurrency check, so this serialization is what prevents lost
// updates when two deliveries for one phone race.
type Dispatcher struct {
	handler InboundHandler
	mu      sync.Mutex
	queues  map[string]chan models.InboundMessage
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewDispatcher creates a dispatcher over the given handler.
func NewDispatcher(handler InboundHandler) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		queues:  make(map[string]chan models.InboundMessage),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue hands one inbound message to its sender's queue, creating the
// queue and its worker on first contact. The sender must already be
// canonicalized by the transport.
func (d *Dispatcher) Enqueue(msg models.InboundMessage) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		slog.Warn("Dispatcher.Enqueue: dropping message, dispatcher stopped", "from", msg.From)
		return
	}
	q, ok := d.queues[msg.From]
	if !ok {
		q = make(chan models.InboundMessage, DefaultQueueBufferSize)
		d.queues[msg.From] = q
		d.wg.Add(1)
		go d.worker(msg.From, q)
	}
	d.mu.Unlock()

	select {
	case q <- msg:
	case <-d.ctx.Done():
		slog.Warn("Dispatcher.Enqueue: dropping message during shutdown", "from", msg.From)
	}
}

// worker drains one sender's queue sequentially.
func (d *Dispatcher) worker(from string, q chan models.InboundMessage) {
	defer d.wg.Done()
	slog.Debug("Dispatcher.worker: started", "from", from)
	for {
		select {
		case msg := <-q:
			d.handler.HandleInboundMessage(d.ctx, msg)
		case <-d.ctx.Done():
			slog.Debug("Dispatcher.worker: stopping", "from", from)
			return
		}
	}
}

// Attach starts a pump goroutine that forwards a service's inbound channel
// into the dispatcher. Multiple services may be attached.
func (d *Dispatcher) Attach(svc Service) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case msg, ok := <-svc.Inbound():
				if !ok {
					slog.Debug("Dispatcher.Attach: inbound channel closed")
					return
				}
				d.Enqueue(msg)
			case <-d.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops all workers and pumps. Messages still queued are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
	slog.Info("Dispatcher stopped")
}
