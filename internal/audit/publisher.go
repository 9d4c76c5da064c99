package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader lists the audit trail of one wallet, oldest first.
type Reader interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Publisher stamps events and hands them to a Store, either inline or
// through a bounded buffer drained by a Worker.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	bufferSize int
	inbox      chan Event
	done       chan struct{}
	closeOnce  sync.Once
	dropped    atomic.Int64
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking. Events beyond size are dropped
// and counted.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan Event, p.bufferSize)
		p.done = make(chan struct{})
		worker := NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			worker.Run()
		}()
	}
	return p
}

// Emit records event. In async mode it never blocks and only fails if the
// publisher is closed.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
	default:
		p.dropped.Add(1)
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, event dropped",
				"action", event.Action,
				"subject", event.Subject,
			)
		}
	}
	return nil
}

// Dropped returns how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and waits for buffered ones to be stored.
// Emit must not be called after Close.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.inbox)
		<-p.done
	})
}
