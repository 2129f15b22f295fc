package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher fans each event out to its sinks. Every sink is attempted even
// when an earlier one fails.
type Publisher struct {
	sinks []Sink
}

func NewPublisher(sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
