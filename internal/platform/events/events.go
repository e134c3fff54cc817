// Package events publishes usage events for completed backend operations.
// Events are fire-and-forget: a failed publish is logged and never reaches
// the visitor.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	RiskPredicted        = "risk.predicted"
	TreatmentRecommended = "treatment.recommended"
	SyntheticGenerated   = "synthetic.generated"
	DatasetImported      = "dataset.imported"
	ExportCreated        = "export.created"
)

// Event is one usage event. Attributes carry counts, levels and backend ids;
// never patient demographics.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// New returns an event with a fresh id.
func New(eventType, sessionID string, attrs map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		SessionID:  sessionID,
		OccurredAt: time.Now().UTC(),
		Attributes: attrs,
	}
}

// Encode returns the wire form of the event.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Emit publishes e and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event_type", e.Type).
			Str("event_id", e.ID).
			Msg("event publish failed")
	}
}

// ---------------------------------------------------------------------------
// Log sink
// ---------------------------------------------------------------------------

// LogPublisher writes events to the application log.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Str("session_id", e.SessionID).
		Interface("attributes", e.Attributes).
		Msg("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// ---------------------------------------------------------------------------
// Discard sink
// ---------------------------------------------------------------------------

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// ---------------------------------------------------------------------------
// Counting decorator
// ---------------------------------------------------------------------------

type counted struct {
	Publisher
	observe func(eventType string)
}

// Counted wraps p so observe is called with the type of every event p
// accepted.
func Counted(p Publisher, observe func(eventType string)) Publisher {
	return &counted{Publisher: p, observe: observe}
}

func (c *counted) Publish(ctx context.Context, e Event) error {
	if err := c.Publisher.Publish(ctx, e); err != nil {
		return err
	}
	c.observe(e.Type)
	return nil
}
