package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every ledger event.
//
// Topics are named ptracker.<entity>.<action>; event types carry a version
// suffix ("lot.added.v1") so payloads can evolve independently of topics.
type Event struct {
	EventID string `json:"event_id"`

	EventType string `json:"event_type"`

	// OccurredAt is when the mutation committed, not when it was published.
	OccurredAt time.Time `json:"occurred_at"`

	// CorrelationID is the request id of the API call that caused the event.
	CorrelationID string `json:"correlation_id,omitempty"`

	Source string `json:"source"`

	// UserID owns the entity the event describes. It doubles as the message key
	// so one user's events stay ordered within a partition.
	UserID string `json:"user_id"`

	Payload any `json:"payload"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

func NewEvent(eventType, source, userID string, payload any) *Event {
	return &Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Source:     source,
		UserID:     userID,
		Payload:    payload,
		Metadata:   make(map[string]string),
	}
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// DecodePayload converts the payload of a consumed event into v. After JSON
// decoding the payload is a generic map, so it is re-encoded first.
func (e *Event) DecodePayload(v any) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// Topic payloads: portfolio created carries PortfolioPayload, updated
// PortfolioRenamedPayload, deleted PortfolioDeletedPayload, asset added and
// removed PortfolioAssetPayload. Lot topics carry LotPayload.
const (
	TopicPortfolioCreated      = "ptracker.portfolios.created"
	TopicPortfolioUpdated      = "ptracker.portfolios.updated"
	TopicPortfolioDeleted      = "ptracker.portfolios.deleted"
	TopicPortfolioAssetAdded   = "ptracker.portfolios.asset_added"
	TopicPortfolioAssetRemoved = "ptracker.portfolios.asset_removed"

	TopicAssetCreated = "ptracker.assets.created"

	TopicLotAdded   = "ptracker.lots.added"
	TopicLotUpdated = "ptracker.lots.updated"
	TopicLotDeleted = "ptracker.lots.deleted"

	TopicReconcileCompleted = "ptracker.reconcile.completed"
)

var AllTopics = []string{
	TopicPortfolioCreated,
	TopicPortfolioUpdated,
	TopicPortfolioDeleted,
	TopicPortfolioAssetAdded,
	TopicPortfolioAssetRemoved,
	TopicAssetCreated,
	TopicLotAdded,
	TopicLotUpdated,
	TopicLotDeleted,
	TopicReconcileCompleted,
}

const (
	EventTypePortfolioCreated      = "portfolio.created.v1"
	EventTypePortfolioRenamed      = "portfolio.renamed.v1"
	EventTypePortfolioDeleted      = "portfolio.deleted.v1"
	EventTypePortfolioAssetAdded   = "portfolio.asset_added.v1"
	EventTypePortfolioAssetRemoved = "portfolio.asset_removed.v1"

	EventTypeAssetCreated = "asset.created.v1"

	EventTypeLotAdded   = "lot.added.v1"
	EventTypeLotUpdated = "lot.updated.v1"
	EventTypeLotDeleted = "lot.deleted.v1"

	EventTypeReconcileCompleted = "reconcile.completed.v1"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// Handler processes one consumed event. ctx carries the producer's trace.
type Handler func(ctx context.Context, event *Event) error

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// NoopPublisher drops every event. It is used when kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, *Event) error { return nil }
func (NoopPublisher) Close() error                                  { return nil }

// Published is one event captured by a Recorder.
type Published struct {
	Topic string
	Event *Event
}

// Recorder keeps published events in memory. Err, when set, is returned
// from every Publish after the event is recorded.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (r *Recorder) Publish(_ context.Context, topic string, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{Topic: topic, Event: event})
	return r.Err
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

// Topics lists the topic of each recorded event in publish order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, p := range r.events {
		out[i] = p.Topic
	}
	return out
}
