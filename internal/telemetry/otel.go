package telemetry

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a zero-duration span carrying the
// event's fields as attributes, mirroring the teacher's OTelEmitter
// (graph/emit/otel.go) adapted to run/run-node ids instead of string
// run ids.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter builds an OTelEmitter over tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit starts and immediately ends a span named event.Msg.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.Int64("run_id", event.RunID),
		attribute.Int64("run_node_id", event.RunNodeID),
		attribute.String("node_key", event.NodeKey),
		attribute.Int("attempt", event.Attempt),
	}
	for k, v := range event.Meta {
		attrs = append(attrs, attribute.String(k, toString(v)))
	}
	span.SetAttributes(attrs...)

	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, toString(errVal))
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
