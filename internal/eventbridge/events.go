package eventbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// EventSchemaVersion is the currently supported inbound event version.
	EventSchemaVersion = 1
)

// Event types carried by the bridge.
const (
	TypeScoreUpdated  = "ac:updated"
	TypeTrackSelected = "parcours:selected"
	// TypeSynced is emitted by the server after each synchronization pass.
	TypeSynced = "wiring:synced"
)

// Event is a fire-and-forget notification. Detail holds the type-specific
// payload (ScoreDetail, TrackDetail or SyncDetail).
type Event struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	ClientTime time.Time       `json:"client_time,omitempty"`
	ServerTime time.Time       `json:"server_time,omitempty"`
	Source     string          `json:"source,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// ScoreDetail accompanies ac:updated.
type ScoreDetail struct {
	Code  string `json:"code"`
	Value int    `json:"value"`
}

// TrackDetail accompanies parcours:selected.
type TrackDetail struct {
	Choice string `json:"choice"`
}

// FanDetail is one aggregate indicator's target in a synced frame.
type FanDetail struct {
	ID     string   `json:"id"`
	Codes  []string `json:"codes"`
	Ratio  float64  `json:"ratio"`
	Target float64  `json:"target"`
	Speed  float64  `json:"speed"`
	State  string   `json:"state"`
}

// SyncDetail accompanies wiring:synced.
type SyncDetail struct {
	Pass     int         `json:"pass"`
	Failures int         `json:"failures"`
	Fans     []FanDetail `json:"fans,omitempty"`
}

// NewEvent builds a normalized event with the given detail payload.
func NewEvent(kind, source string, detail any) (Event, error) {
	evt := Event{Type: kind, Source: source, ClientTime: time.Now().UTC()}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			return Event{}, fmt.Errorf("eventbridge: encode %s detail: %w", kind, err)
		}
		evt.Detail = raw
	}
	evt.Normalize()
	return evt, nil
}

// Normalize applies defaults and canonical formatting before validation.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Version == 0 {
		e.Version = EventSchemaVersion
	}
	e.EventID = strings.TrimSpace(e.EventID)
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.Source = strings.TrimSpace(e.Source)
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (e *Event) StampServerTime(now time.Time) {
	if e == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e.ServerTime = now.UTC()
}

// Validate enforces baseline schema requirements for incoming events.
func (e Event) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	switch e.Type {
	case TypeScoreUpdated, TypeTrackSelected, TypeSynced:
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("type %q not supported", e.Type)
	}
	return nil
}

// Score decodes the detail of an ac:updated event.
func (e Event) Score() (ScoreDetail, error) {
	var d ScoreDetail
	if e.Type != TypeScoreUpdated {
		return d, fmt.Errorf("eventbridge: %s carries no score", e.Type)
	}
	if len(e.Detail) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(e.Detail, &d); err != nil {
		return d, fmt.Errorf("eventbridge: decode score detail: %w", err)
	}
	return d, nil
}

// Track decodes the detail of a parcours:selected event.
func (e Event) Track() (TrackDetail, error) {
	var d TrackDetail
	if e.Type != TypeTrackSelected {
		return d, fmt.Errorf("eventbridge: %s carries no track", e.Type)
	}
	if len(e.Detail) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(e.Detail, &d); err != nil {
		return d, fmt.Errorf("eventbridge: decode track detail: %w", err)
	}
	return d, nil
}

// EventProcessor consumes validated events.
type EventProcessor interface {
	HandleEvent(Event) error
}

// EventProcessorFunc adapts a function into an EventProcessor.
type EventProcessorFunc func(Event) error

// HandleEvent executes f(e).
func (f EventProcessorFunc) HandleEvent(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}
