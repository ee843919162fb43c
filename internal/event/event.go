// Package event defines the abstract inbound events the tracking
// engine consumes and the outcome model derived from them.
//
// The transport collaborator (the chat bot surface) translates its
// native payloads into these five event types. The engine never sees
// transport-specific structures.
package event

import "fmt"

// Source records how a participant entry came to exist.
type Source string

const (
	// SourceSelf means the user added themselves (e.g. a reaction).
	SourceSelf Source = "self"
	// SourceAssisted means another actor added the user on their behalf.
	SourceAssisted Source = "assisted"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceSelf || s == SourceAssisted
}

// Outcome is the derived win/loss state of a record.
//
// The two underlying markers are independent external signals; the
// mapping is exclusive: a record is Win only while the win marker is
// present and the loss marker is not, and vice versa. Both markers
// present, or neither, derive to None.
type Outcome string

const (
	OutcomeNone Outcome = "none"
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// DeriveOutcome maps the two raw markers to the single-valued outcome.
func DeriveOutcome(winMarker, lossMarker bool) Outcome {
	switch {
	case winMarker && !lossMarker:
		return OutcomeWin
	case lossMarker && !winMarker:
		return OutcomeLoss
	default:
		return OutcomeNone
	}
}

// MarkerKind identifies which marker an OutcomeMarkerChanged event flips.
type MarkerKind string

const (
	MarkerWin        MarkerKind = "win"
	MarkerLoss       MarkerKind = "loss"
	MarkerIncomplete MarkerKind = "incomplete"
)

// Valid reports whether k is a known marker kind.
func (k MarkerKind) Valid() bool {
	return k == MarkerWin || k == MarkerLoss || k == MarkerIncomplete
}

// Event is the sealed set of inbound events.
type Event interface {
	// RecordID returns the id of the record the event refers to.
	RecordID() string
	eventType() Type
}

// Type tags an event for the wire envelope.
type Type string

const (
	TypeRecordSeen            Type = "record_seen"
	TypeParticipationMarked   Type = "participation_marked"
	TypeParticipationUnmarked Type = "participation_unmarked"
	TypeOutcomeMarkerChanged  Type = "outcome_marker"
	TypeRecordDeleted         Type = "record_deleted"
)

// RecordSeen announces a tracked record. The first event for an id
// creates the record; later ones are no-ops.
type RecordSeen struct {
	ID        string
	ScopeID   string
	TeamID    string // optional, empty means no team
	CreatorID string
	CreatedAt int64 // unix seconds
}

func (e RecordSeen) RecordID() string { return e.ID }
func (e RecordSeen) eventType() Type  { return TypeRecordSeen }

// ParticipationMarked credits UserID as a participant of the record.
// ActorID is whoever performed the action; for SourceSelf the actor is
// the user themselves.
type ParticipationMarked struct {
	Record  string
	UserID  string
	ActorID string
	Source  Source
}

func (e ParticipationMarked) RecordID() string { return e.Record }
func (e ParticipationMarked) eventType() Type  { return TypeParticipationMarked }

// ParticipationUnmarked revokes a participation entry. Honored only
// when the same actor that created a self-sourced entry revokes it.
type ParticipationUnmarked struct {
	Record  string
	UserID  string
	ActorID string
}

func (e ParticipationUnmarked) RecordID() string { return e.Record }
func (e ParticipationUnmarked) eventType() Type  { return TypeParticipationUnmarked }

// OutcomeMarkerChanged reports that one of the three markers was set
// or cleared on the record.
type OutcomeMarkerChanged struct {
	Record  string
	Marker  MarkerKind
	Present bool
}

func (e OutcomeMarkerChanged) RecordID() string { return e.Record }
func (e OutcomeMarkerChanged) eventType() Type  { return TypeOutcomeMarkerChanged }

// RecordDeleted reports that the external record was deleted. All
// credits attached to it are reversed.
type RecordDeleted struct {
	Record string
}

func (e RecordDeleted) RecordID() string { return e.Record }
func (e RecordDeleted) eventType() Type  { return TypeRecordDeleted }

// Validate checks the structural requirements of an event before it
// reaches the engine. Unknown records are the engine's concern, not
// Validate's.
func Validate(ev Event) error {
	if ev.RecordID() == "" {
		return fmt.Errorf("event %s: empty record id", TypeOf(ev))
	}
	switch e := ev.(type) {
	case RecordSeen:
		if e.ScopeID == "" {
			return fmt.Errorf("record_seen %s: empty scope id", e.ID)
		}
		if e.CreatorID == "" {
			return fmt.Errorf("record_seen %s: empty creator id", e.ID)
		}
		if e.CreatedAt <= 0 {
			return fmt.Errorf("record_seen %s: created_at must be positive", e.ID)
		}
	case ParticipationMarked:
		if e.UserID == "" {
			return fmt.Errorf("participation_marked %s: empty user id", e.Record)
		}
		if !e.Source.Valid() {
			return fmt.Errorf("participation_marked %s: invalid source %q", e.Record, e.Source)
		}
	case ParticipationUnmarked:
		if e.UserID == "" {
			return fmt.Errorf("participation_unmarked %s: empty user id", e.Record)
		}
	case OutcomeMarkerChanged:
		if !e.Marker.Valid() {
			return fmt.Errorf("outcome_marker %s: invalid marker %q", e.Record, e.Marker)
		}
	case RecordDeleted:
		// record id already checked
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
	return nil
}

// TypeOf returns the wire type tag of an event.
func TypeOf(ev Event) Type { return ev.eventType() }
