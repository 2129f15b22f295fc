package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"
)

type failingSink struct{ err error }

func (f failingSink) Append(context.Context, Event) error { return f.err }

type fakeProducer struct {
	err     error
	records []*kgo.Record
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

type AuditSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func TestAuditSuite(t *testing.T) {
	suite.Run(t, new(AuditSuite))
}

func (s *AuditSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuditSuite) TestPublisherFansOut() {
	first, second := NewInMemoryStore(), NewInMemoryStore()
	boom := errors.New("sink down")
	p := NewPublisher(first, failingSink{err: boom}, second)

	err := p.Emit(s.ctx, Event{Action: ActionPolicyCreated, PolicyID: 7})
	s.Require().ErrorIs(err, boom)

	for _, store := range []*InMemoryStore{first, second} {
		events, err := store.ListByPolicy(s.ctx, 7)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.NotEmpty(events[0].ID)
		s.False(events[0].Timestamp.IsZero())
	}
}

func (s *AuditSuite) TestQueueAndWorker() {
	q := NewQueue(1)
	s.Require().NoError(q.Append(s.ctx, Event{Action: ActionBillIssued, PolicyID: 1}))
	s.Require().ErrorIs(q.Append(s.ctx, Event{Action: ActionBillIssued, PolicyID: 2}), ErrQueueFull)

	store := NewInMemoryStore()
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- NewWorker(store, q.Events(), s.logger).Run(ctx) }()

	s.Eventually(func() bool { return len(store.All()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

func (s *AuditSuite) TestKafkaSink() {
	s.Run("publishes JSON keyed by policy id", func() {
		producer := &fakeProducer{}
		sink := NewKafkaSink(producer, "policy-activity", s.logger)
		s.Require().NoError(sink.Append(s.ctx, Event{Action: ActionPaymentRecorded, PolicyID: 42}))
		s.Require().Len(producer.records, 1)
		s.Equal("42", string(producer.records[0].Key))
		s.Equal("policy-activity", producer.records[0].Topic)
		s.Contains(string(producer.records[0].Value), `"action":"payment_recorded"`)
	})

	s.Run("drops events once the breaker opens", func() {
		producer := &fakeProducer{err: errors.New("broker unavailable")}
		sink := NewKafkaSink(producer, "policy-activity", s.logger)
		for i := 0; i < 4; i++ {
			s.Require().Error(sink.Append(s.ctx, Event{PolicyID: 1}))
		}
		s.Require().NoError(sink.Append(s.ctx, Event{PolicyID: 1}))
		s.True(sink.breaker.IsOpen())
		s.Require().NoError(sink.Append(s.ctx, Event{PolicyID: 1}))
	})
}
