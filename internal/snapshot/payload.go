// Package snapshot serializes the engine's durable state into a
// versioned payload, publishes it to an external archive, and restores
// the baseline from the most recent matching payload at boot.
//
// The archive is an append-mostly, latest-wins blob channel with no
// key lookup; restore scans the most recent entries and takes the
// first payload whose scope matches.
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/manonlortal-sys/Bot-Alli/internal/aggregate"
	"github.com/manonlortal-sys/Bot-Alli/internal/event"
)

// SchemaVersion is the current payload schema.
//
// Version history:
//  1 - fixed team_1/team_2 keys, defense_by_user/ping_by_user counter
//      maps, numeric guild_id scope (legacy, decode only)
//  2 - open teams map, counters keyed by metric, string scope_id
const SchemaVersion = 2

//go:embed schema.json
var payloadSchemaJSON string

// Payload is the versioned snapshot format. It must round-trip through
// save and restore with zero loss.
type Payload struct {
	SchemaVersion int                         `json:"schema_version"`
	SnapshotID    string                      `json:"snapshot_id"`
	ScopeID       string                      `json:"scope_id"`
	GeneratedAt   string                      `json:"generated_at"`
	Global        aggregate.Totals            `json:"global"`
	Teams         map[string]aggregate.Totals `json:"teams"`
	Hourly        map[string]int64            `json:"hourly"`
	Counters      map[string]map[string]int64 `json:"counters"`
}

var (
	schemaOnce    sync.Once
	payloadSchema *jsonschema.Schema
	schemaErr     error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(payloadSchemaJSON)))
		if err != nil {
			schemaErr = fmt.Errorf("parse payload schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("snapshot-payload.json", doc); err != nil {
			schemaErr = fmt.Errorf("add payload schema: %w", err)
			return
		}
		payloadSchema, schemaErr = c.Compile("snapshot-payload.json")
	})
	return payloadSchema, schemaErr
}

// Decode parses a payload of any supported schema version for the
// given scope. The decoders run newest-shape-first; a payload that
// matches no shape, fails validation, or names a different scope
// returns (nil, false). Malformed archive entries are a skip, never a
// crash.
func Decode(data []byte, scopeID string) (*Payload, bool) {
	if p, ok := decodeCurrent(data, scopeID); ok {
		return p, true
	}
	if p, ok := decodeLegacy(data, scopeID); ok {
		return p, true
	}
	return nil, false
}

// decodeCurrent handles schema version 2: validated against the
// embedded JSON schema before anything is trusted.
func decodeCurrent(data []byte, scopeID string) (*Payload, bool) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, false
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	if err := sch.Validate(doc); err != nil {
		return nil, false
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	if p.SchemaVersion != SchemaVersion || p.ScopeID != scopeID {
		return nil, false
	}
	if p.Teams == nil {
		p.Teams = map[string]aggregate.Totals{}
	}
	if p.Hourly == nil {
		p.Hourly = map[string]int64{}
	}
	if p.Counters == nil {
		p.Counters = map[string]map[string]int64{}
	}
	return &p, true
}

// legacyPayload is the original fixed-shape format (schema version 1).
// The scope was a numeric guild id, teams were hardwired to two slots,
// and only two counter maps existed.
type legacyPayload struct {
	SchemaVersion int                    `json:"schema_version"`
	GuildID       json.Number            `json:"guild_id"`
	GeneratedAt   string                 `json:"generated_at"`
	Global        *aggregate.Totals      `json:"global"`
	Team1         *aggregate.Totals      `json:"team_1"`
	Team2         *aggregate.Totals      `json:"team_2"`
	HourlyBuckets map[string]int64       `json:"hourly_buckets"`
	DefenseByUser map[string]json.Number `json:"defense_by_user"`
	PingByUser    map[string]json.Number `json:"ping_by_user"`
}

// decodeLegacy upgrades a version-1 payload to the current shape.
// Fields the old format never carried (per-user win/loss maps) degrade
// to empty, not to an error.
func decodeLegacy(data []byte, scopeID string) (*Payload, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var lp legacyPayload
	if err := dec.Decode(&lp); err != nil {
		return nil, false
	}
	if lp.SchemaVersion != 1 || lp.Global == nil {
		return nil, false
	}
	if lp.GuildID.String() != scopeID {
		return nil, false
	}

	p := &Payload{
		SchemaVersion: SchemaVersion,
		ScopeID:       scopeID,
		GeneratedAt:   lp.GeneratedAt,
		Global:        *lp.Global,
		Teams:         map[string]aggregate.Totals{},
		Hourly:        map[string]int64{},
		Counters:      map[string]map[string]int64{},
	}
	if lp.Team1 != nil {
		p.Teams["1"] = *lp.Team1
	}
	if lp.Team2 != nil {
		p.Teams["2"] = *lp.Team2
	}
	for _, name := range aggregate.BucketNames {
		if v, ok := lp.HourlyBuckets[name]; ok {
			p.Hourly[name] = v
		}
	}
	if m, ok := legacyCounterMap(lp.DefenseByUser); ok {
		p.Counters[string(event.MetricParticipation)] = m
	}
	if m, ok := legacyCounterMap(lp.PingByUser); ok {
		p.Counters[string(event.MetricInitiator)] = m
	}
	return p, true
}

func legacyCounterMap(src map[string]json.Number) (map[string]int64, bool) {
	if src == nil {
		return nil, false
	}
	m := make(map[string]int64, len(src))
	for user, n := range src {
		v, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || v < 0 {
			// Partially decodable payloads keep their good entries.
			continue
		}
		m[user] = v
	}
	return m, true
}
