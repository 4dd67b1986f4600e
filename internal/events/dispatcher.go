package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher decouples the grading core from messaging: Emit enqueues and
// returns immediately; a single goroutine appends each event to the log
// and fans it out to handlers. A full queue drops the event with a log
// line rather than stalling a state transition.
type Dispatcher struct {
	repo     *EventRepo
	handlers []Handler
	log      *zap.Logger

	ch   chan Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(repo *EventRepo, log *zap.Logger, handlers ...Handler) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		handlers: handlers,
		log:      log,
		ch:       make(chan Event, 256),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Emit(_ context.Context, e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn("event dispatcher stopped, dropping event",
			zap.String("type", e.Type), zap.String("key", e.Key))
		return
	}
	select {
	case d.ch <- e:
	default:
		d.log.Warn("event queue full, dropping event",
			zap.String("type", e.Type), zap.String("key", e.Key))
	}
}

func (d *Dispatcher) Run() {
	for e := range d.ch {
		d.dispatch(e)
	}
	close(d.done)
}

// Stop drains the queue and waits for the worker to exit. Emit calls
// arriving after Stop are dropped instead of panicking on the closed
// channel. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.ch)
	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		d.log.Warn("event dispatcher did not drain in time")
	}
}

func (d *Dispatcher) dispatch(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := json.Marshal(e.Data)
	if err != nil {
		d.log.Error("marshal event payload", zap.String("type", e.Type), zap.Error(err))
		return
	}
	if d.repo != nil {
		if err := d.repo.Append(ctx, e.Type, e.Key, string(data)); err != nil {
			d.log.Error("append event log", zap.String("type", e.Type), zap.Error(err))
		}
	}
	for _, h := range d.handlers {
		if err := h.Handle(ctx, e); err != nil {
			d.log.Error("event handler failed",
				zap.String("type", e.Type), zap.String("key", e.Key), zap.Error(err))
		}
	}
}
