// Package service holds the queue operations: booking, check-in, walk-in
// registration, queue reads and staff actions. It owns no state; every
// decision is made against a fresh read of the store and every write is a
// guarded status update.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"smartq/queue-service/internal/queue"
	"smartq/queue-service/internal/schedule"
	"smartq/queue-service/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrContactMismatch = errors.New("contact does not match the appointment")
	ErrCheckInExpired  = errors.New("appointment time has passed, please book again")
	ErrEmptyQueue      = errors.New("queue is empty")
	ErrNothingServing  = errors.New("no ticket is being served")
)

// Publisher receives the queue after every change that can move it.
type Publisher interface {
	PublishQueue(q queue.Queue)
}

type Options struct {
	Hours     schedule.BusinessHours
	Now       func() time.Time
	Publisher Publisher
	Logger    *slog.Logger
}

type Service struct {
	store     store.TicketStore
	hours     schedule.BusinessHours
	now       func() time.Time
	publisher Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

func New(st store.TicketStore, options Options) *Service {
	s := &Service{
		store:     st,
		hours:     options.Hours,
		now:       options.Now,
		publisher: options.Publisher,
		logger:    options.Logger,
		tracer:    otel.Tracer("smartq/queue-service/service"),
	}
	if s.hours.Days == nil {
		s.hours = schedule.DefaultHours(time.UTC)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) Hours() schedule.BusinessHours {
	return s.hours
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// refresh re-projects the queue and hands it to the publisher. A failed read
// only costs the board one update, so it is logged and not returned.
func (s *Service) refresh(ctx context.Context) (queue.Queue, bool) {
	q, err := s.GetQueue(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "queue refresh failed", "error", err)
		return queue.Queue{}, false
	}
	if s.publisher != nil {
		s.publisher.PublishQueue(q)
	}
	return q, true
}

func findEntry(q queue.Queue, id string) *queue.Entry {
	for i := range q.Entries {
		if q.Entries[i].ID == id {
			entry := q.Entries[i]
			return &entry
		}
	}
	return nil
}
