package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultDrainTimeout = 5 * time.Second

// Config controls buffering. With DropIfFull unset, Emit waits for queue
// space until ctx ends.
type Config struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	DrainTimeout time.Duration
	Logger       *zap.Logger
}

// Dispatcher hands events to a sink on one background goroutine, so a slow
// Kafka broker or database never sits on the request path.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	stop    chan struct{}
	stopped chan struct{}
	block   bool
	drain   time.Duration
	logger  *zap.Logger
	dropped atomic.Uint64
	once    sync.Once
}

// NewDispatcher returns nil when auditing is disabled. A nil *Dispatcher
// accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, max(cfg.BufferSize, 1)),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		block:   !cfg.DropIfFull,
		drain:   cfg.DrainTimeout,
		logger:  cfg.Logger,
	}
	if d.drain <= 0 {
		d.drain = defaultDrainTimeout
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(context.Background(), ev)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers what is still queued. Events left once the drain timeout
// passes are counted as dropped.
func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), d.drain)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			if ctx.Err() != nil {
				d.dropped.Add(1)
				continue
			}
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.dropped.Add(1)
			d.logger.Error("audit sink panicked", zap.String("event", ev.EventType), zap.Any("panic", r))
		}
	}()
	d.sink.Emit(ctx, ev)
}

// Emit queues ev. After Close it is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	select {
	case <-d.stop:
		return
	default:
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if !d.block {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() { close(d.stop) })
	<-d.stopped
}

// Dropped counts events lost to a full buffer, a cancelled context, a
// panicking sink or the drain timeout.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
