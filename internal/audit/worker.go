package audit

import (
	"context"
	"errors"
	"log/slog"
)

// ErrQueueFull is returned by Queue.Append when the worker has fallen behind.
var ErrQueueFull = errors.New("audit queue full")

// Queue is a Sink that hands events to a Worker without blocking the caller.
type Queue struct {
	ch chan Event
}

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Event, size)}
}

func (q *Queue) Append(_ context.Context, event Event) error {
	select {
	case q.ch <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events is the receive side consumed by a Worker.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Worker drains a queue into a slower sink such as Kafka. Sink failures are
// logged and the worker moves on to the next event.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "audit sink append failed",
					"action", event.Action,
					"policy_id", event.PolicyID,
					"error", err,
				)
			}
		}
	}
}
