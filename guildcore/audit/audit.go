package audit

import (
	"context"
	"time"
)

// Event is one immutable audit record. Every economically significant
// action (grants, holds, draws, lot closes) emits one.
type Event struct {
	Kind      string         `json:"kind" bson:"kind"`
	AccountID string         `json:"account_id,omitempty" bson:"account_id,omitempty"`
	RefID     string         `json:"ref_id,omitempty" bson:"ref_id,omitempty"`
	Amount    float64        `json:"amount,omitempty" bson:"amount,omitempty"`
	Detail    map[string]any `json:"detail,omitempty" bson:"detail,omitempty"`
	At        time.Time      `json:"at" bson:"at"`
}

// Sink receives audit events. Implementations must tolerate being called
// from multiple goroutines.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// NopSink discards everything. Used in tests and when auditing is disabled.
type NopSink struct{}

func (NopSink) Write(context.Context, Event) error { return nil }
