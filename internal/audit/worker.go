package audit

import (
	"context"
	"log/slog"
	"time"
)

const appendTimeout = 5 * time.Second

// Worker drains an event channel into a Store until the channel is closed.
// Append failures are logged and skipped so one bad sink write does not
// stall the queue.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run() {
	for event := range w.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := w.store.Append(ctx, event)
		cancel()
		if err != nil && w.logger != nil {
			w.logger.Error("failed to store audit event",
				"error", err,
				"action", event.Action,
				"subject", event.Subject,
			)
		}
	}
}
