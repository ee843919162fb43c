package testutil

import "github.com/manonlortal-sys/Bot-Alli/internal/event"

// RecordSeen builds a minimal record sighting for tests.
func RecordSeen(id, scopeID, creatorID string, createdAt int64) event.RecordSeen {
	return event.RecordSeen{
		ID:        id,
		ScopeID:   scopeID,
		CreatorID: creatorID,
		CreatedAt: createdAt,
	}
}

// TeamRecordSeen builds a record sighting attached to a team.
func TeamRecordSeen(id, scopeID, teamID, creatorID string, createdAt int64) event.RecordSeen {
	ev := RecordSeen(id, scopeID, creatorID, createdAt)
	ev.TeamID = teamID
	return ev
}

// SelfJoin builds a self-sourced participation for userID.
func SelfJoin(recordID, userID string) event.ParticipationMarked {
	return event.ParticipationMarked{
		Record:  recordID,
		UserID:  userID,
		ActorID: userID,
		Source:  event.SourceSelf,
	}
}

// AssistedJoin builds a participation added by another actor.
func AssistedJoin(recordID, userID, actorID string) event.ParticipationMarked {
	return event.ParticipationMarked{
		Record:  recordID,
		UserID:  userID,
		ActorID: actorID,
		Source:  event.SourceAssisted,
	}
}

// Unmark builds a removal attempt by actorID.
func Unmark(recordID, userID, actorID string) event.ParticipationUnmarked {
	return event.ParticipationUnmarked{
		Record:  recordID,
		UserID:  userID,
		ActorID: actorID,
	}
}

// Marker builds a marker set/clear for a record.
func Marker(recordID string, kind event.MarkerKind, present bool) event.OutcomeMarkerChanged {
	return event.OutcomeMarkerChanged{
		Record:  recordID,
		Marker:  kind,
		Present: present,
	}
}
