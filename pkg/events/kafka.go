package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Rohianon/ptracker/pkg/logger"
	"github.com/Rohianon/ptracker/pkg/telemetry"
)

type KafkaPublisher struct {
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	brokers []string
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writers: make(map[string]*kafka.Writer),
		brokers: brokers,
	}
}

func (p *KafkaPublisher) getWriter(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w
}

// Publish writes event keyed by user id so each user's events keep their order.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	if event.EventID == "" || event.OccurredAt.IsZero() {
		return fmt.Errorf("event on %s is missing id or timestamp", topic)
	}

	ctx, span := telemetry.StartProducerSpan(ctx, topic, event.EventType)
	defer span.End()
	span.SetAttributes(attribute.String("messaging.message.id", event.EventID))

	data, err := json.Marshal(event)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}}
	telemetry.InjectTraceContext(ctx, &headers)

	err = p.getWriter(topic).WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.UserID),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	telemetry.SetMessageAttributes(ctx, event.EventID, len(data))
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, w := range p.writers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

type KafkaSubscriber struct {
	mu      sync.Mutex
	brokers []string
	groupID string
	readers []*kafka.Reader
}

// NewKafkaSubscriber joins groupID. An empty group reads each partition from
// the latest offset without committing, which suits a one-off tail.
func NewKafkaSubscriber(brokers []string, groupID string) *KafkaSubscriber {
	return &KafkaSubscriber{
		brokers: brokers,
		groupID: groupID,
		readers: make([]*kafka.Reader, 0),
	}
}

func (s *KafkaSubscriber) Subscribe(ctx context.Context, topic string, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		Topic:       topic,
		GroupID:     s.groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	s.mu.Lock()
	s.readers = append(s.readers, reader)
	s.mu.Unlock()

	log := logger.Component("kafka-subscriber").With().Str("topic", topic).Logger()

	go func() {
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				log.Warn().Err(err).Msg("Failed to read message")
				continue
			}

			msgCtx := telemetry.ExtractTraceContext(ctx, msg.Headers)
			msgCtx, span := telemetry.StartConsumerSpan(msgCtx, topic, msg.Partition, msg.Offset)

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				telemetry.RecordError(msgCtx, err)
				span.End()
				log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable message")
				continue
			}

			telemetry.SetMessageAttributes(msgCtx, event.EventID, len(msg.Value))

			if err := handler(msgCtx, &event); err != nil {
				telemetry.RecordError(msgCtx, err)
				log.Error().Err(err).Str("event_id", event.EventID).Msg("Handler failed")
			}
			span.End()
		}
	}()

	return nil
}

func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, r := range s.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
