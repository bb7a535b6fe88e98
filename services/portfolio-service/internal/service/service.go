// Package service implements the portfolio ledger: asset resolution, lot
// bookkeeping, portfolio membership, valuation and reconciliation.
//
// None of the multi-step mutations run in a transaction. Each step is a
// separate write; when a later step fails the earlier ones stay applied and
// the returned error says what was left behind. Reconcile repairs whatever
// such failures leave.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/pkg/lock"
	"github.com/Rohianon/ptracker/pkg/logger"
	"github.com/Rohianon/ptracker/pkg/metrics"
	"github.com/Rohianon/ptracker/pkg/quotes"
	"github.com/Rohianon/ptracker/pkg/telemetry"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
)

const eventSource = "portfolio-service"

type Config struct {
	// Concurrency bounds parallel quote fetches within one valuation run.
	Concurrency int
	// QuoteTimeout bounds each individual quote fetch during valuation.
	QuoteTimeout time.Duration
	// LockTTL is the lease on the per-symbol asset creation lock.
	LockTTL time.Duration
}

// Service handles portfolio operations for authenticated users. The caller
// supplies the user id; every portfolio or lot scoped call checks ownership.
type Service struct {
	store     repository.Store
	quotes    quotes.Source
	publisher events.Publisher
	locker    lock.Locker
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

func New(store repository.Store, source quotes.Source, publisher events.Publisher, locker lock.Locker, cfg Config) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Service{
		store:     store,
		quotes:    source,
		publisher: publisher,
		locker:    locker,
		cfg:       cfg,
		log:       logger.Component("ledger"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type correlationKey struct{}

// WithCorrelationID tags ctx so events published while serving it carry id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// publish never fails the caller: the mutation it describes already happened.
func (s *Service) publish(ctx context.Context, topic, eventType, userID string, payload any) {
	event := events.NewEvent(eventType, eventSource, userID, payload)
	if id := correlationID(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		event.WithMetadata("trace_id", traceID).WithMetadata("span_id", telemetry.SpanID(ctx))
	}

	err := s.publisher.Publish(ctx, topic, event)
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		s.log.Warn().Err(err).
			Str("topic", topic).
			Str("event_id", event.EventID).
			Msg("Failed to publish event")
	}
}

// record counts a ledger operation by the kind of its outcome.
func record(operation string, err error) {
	outcome := metrics.OutcomeOK
	switch apperrors.KindOf(err) {
	case "":
	case apperrors.KindNoChange:
		outcome = metrics.OutcomeNoChange
	case apperrors.KindNotFound:
		outcome = metrics.OutcomeNotFound
	default:
		outcome = metrics.OutcomeError
	}
	metrics.RecordLedgerOperation(operation, outcome)
}

// storeErr maps a repository error: a missing record becomes missing, anything
// else is a persistence failure.
func storeErr(err error, missing *apperrors.AppError) error {
	if errors.Is(err, repository.ErrNotFound) {
		return missing
	}
	return apperrors.ErrPersistence.WithError(err)
}
