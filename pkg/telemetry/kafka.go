package telemetry

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// KafkaHeaderCarrier adapts kafka message headers to propagation.TextMapCarrier.
type KafkaHeaderCarrier struct {
	Headers *[]kafka.Header
}

func (c KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces any header already stored under key.
func (c KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c.Headers {
		if h.Key == key {
			(*c.Headers)[i].Value = []byte(value)
			return
		}
	}
	*c.Headers = append(*c.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(*c.Headers))
	for i, h := range *c.Headers {
		keys[i] = h.Key
	}
	return keys
}

// InjectTraceContext injects the trace context into Kafka message headers
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	carrier := KafkaHeaderCarrier{Headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractTraceContext extracts the trace context from Kafka message headers
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := KafkaHeaderCarrier{Headers: &headers}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// StartProducerSpan starts a span for publishing one ledger event.
func StartProducerSpan(ctx context.Context, topic, eventType string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("ptracker.event_type", eventType),
		),
	)
	return ctx, span
}

// StartConsumerSpan starts a span for consuming a Kafka message
func StartConsumerSpan(ctx context.Context, topic string, partition int, offset int64) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, topic+" receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.operation", "receive"),
			attribute.Int64("messaging.kafka.message.offset", offset),
			attribute.Int("messaging.kafka.partition", partition),
		),
	)
	return ctx, span
}

// SetMessageAttributes tags the current span with the message key and payload size.
func SetMessageAttributes(ctx context.Context, key string, size int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("messaging.message.id", key),
		attribute.Int("messaging.message.body.size", size),
	)
}
