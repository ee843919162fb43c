package event

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of an event: a type tag plus the union of
// all event fields. Used by the replay feed and the ingest command.
type Envelope struct {
	Type      Type       `json:"type"`
	RecordID  string     `json:"record_id"`
	ScopeID   string     `json:"scope_id,omitempty"`
	TeamID    string     `json:"team_id,omitempty"`
	CreatorID string     `json:"creator_id,omitempty"`
	CreatedAt int64      `json:"created_at,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	ActorID   string     `json:"actor_id,omitempty"`
	Source    Source     `json:"source,omitempty"`
	Marker    MarkerKind `json:"marker,omitempty"`
	Present   *bool      `json:"present,omitempty"`
}

// Decode converts the envelope into its typed event and validates it.
func (env Envelope) Decode() (Event, error) {
	var ev Event
	switch env.Type {
	case TypeRecordSeen:
		ev = RecordSeen{
			ID:        env.RecordID,
			ScopeID:   env.ScopeID,
			TeamID:    env.TeamID,
			CreatorID: env.CreatorID,
			CreatedAt: env.CreatedAt,
		}
	case TypeParticipationMarked:
		src := env.Source
		if src == "" {
			src = SourceSelf
		}
		actor := env.ActorID
		if actor == "" && src == SourceSelf {
			actor = env.UserID
		}
		ev = ParticipationMarked{
			Record:  env.RecordID,
			UserID:  env.UserID,
			ActorID: actor,
			Source:  src,
		}
	case TypeParticipationUnmarked:
		actor := env.ActorID
		if actor == "" {
			actor = env.UserID
		}
		ev = ParticipationUnmarked{
			Record:  env.RecordID,
			UserID:  env.UserID,
			ActorID: actor,
		}
	case TypeOutcomeMarkerChanged:
		if env.Present == nil {
			return nil, fmt.Errorf("outcome_marker %s: missing present flag", env.RecordID)
		}
		ev = OutcomeMarkerChanged{
			Record:  env.RecordID,
			Marker:  env.Marker,
			Present: *env.Present,
		}
	case TypeRecordDeleted:
		ev = RecordDeleted{Record: env.RecordID}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if err := Validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ParseEnvelope decodes a single JSON envelope into a typed event.
func ParseEnvelope(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env.Decode()
}

// Wrap converts a typed event back into its envelope form.
func Wrap(ev Event) Envelope {
	switch e := ev.(type) {
	case RecordSeen:
		return Envelope{
			Type:      TypeRecordSeen,
			RecordID:  e.ID,
			ScopeID:   e.ScopeID,
			TeamID:    e.TeamID,
			CreatorID: e.CreatorID,
			CreatedAt: e.CreatedAt,
		}
	case ParticipationMarked:
		return Envelope{
			Type:     TypeParticipationMarked,
			RecordID: e.Record,
			UserID:   e.UserID,
			ActorID:  e.ActorID,
			Source:   e.Source,
		}
	case ParticipationUnmarked:
		return Envelope{
			Type:     TypeParticipationUnmarked,
			RecordID: e.Record,
			UserID:   e.UserID,
			ActorID:  e.ActorID,
		}
	case OutcomeMarkerChanged:
		present := e.Present
		return Envelope{
			Type:     TypeOutcomeMarkerChanged,
			RecordID: e.Record,
			Marker:   e.Marker,
			Present:  &present,
		}
	case RecordDeleted:
		return Envelope{Type: TypeRecordDeleted, RecordID: e.Record}
	default:
		return Envelope{}
	}
}
