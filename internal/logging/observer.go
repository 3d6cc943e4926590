package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Observer receives progress from long-running operations.
type Observer interface {
	// Printf logs an informational progress line.
	Printf(format string, v ...any)

	// Warnf logs a non-fatal condition the operator should look at.
	Warnf(format string, v ...any)

	// Event emits a structured event.
	Event(event Event)
}

// Event is a structured lifecycle event.
type Event struct {
	Type      EventType
	Phase     string
	Message   string
	Resource  string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType identifies the kind of event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventArtifactExported EventType = "artifact.exported"
	EventArtifactFailed   EventType = "artifact.failed"

	EventManifestApplied EventType = "manifest.applied"
	EventReadinessPoll   EventType = "readiness.poll"
)

// ZerologObserver implements Observer on top of a zerolog logger.
type ZerologObserver struct {
	logger zerolog.Logger
}

// NewObserver returns an Observer writing through the given logger.
func NewObserver(logger zerolog.Logger) *ZerologObserver {
	return &ZerologObserver{logger: logger}
}

// Printf implements Observer.
func (o *ZerologObserver) Printf(format string, v ...any) {
	o.logger.Info().Msg(fmt.Sprintf(format, v...))
}

// Warnf implements Observer.
func (o *ZerologObserver) Warnf(format string, v ...any) {
	o.logger.Warn().Msg(fmt.Sprintf(format, v...))
}

// Event implements Observer. Failures are logged at error level, everything
// else at debug so the default console output stays readable.
func (o *ZerologObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var e *zerolog.Event
	switch event.Type {
	case EventPhaseFailed, EventArtifactFailed:
		e = o.logger.Error()
	default:
		e = o.logger.Debug()
	}

	e = e.Str("event", string(event.Type)).Time("at", event.Timestamp)
	if event.Phase != "" {
		e = e.Str("phase", event.Phase)
	}
	if event.Resource != "" {
		e = e.Str("resource", event.Resource)
	}
	for k, v := range event.Fields {
		e = e.Str(k, v)
	}
	e.Msg(event.Message)
}

// Discard is an Observer that drops everything.
var Discard Observer = discard{}

type discard struct{}

func (discard) Printf(string, ...any) {}
func (discard) Warnf(string, ...any)  {}
func (discard) Event(Event)           {}

// LogPhaseStart emits a phase start event.
func LogPhaseStart(o Observer, phase string) {
	o.Event(Event{Type: EventPhaseStarted, Phase: phase, Message: "starting"})
}

// LogPhaseComplete emits a phase completion event.
func LogPhaseComplete(o Observer, phase string, duration time.Duration) {
	o.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseFailed emits a phase failure event.
func LogPhaseFailed(o Observer, phase string, err error) {
	o.Event(Event{Type: EventPhaseFailed, Phase: phase, Message: fmt.Sprintf("failed: %v", err)})
}
