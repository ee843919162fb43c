package snapshot

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/manonlortal-sys/Bot-Alli/internal/aggregate"
)

// EncodeCanonical serializes a payload to canonical JSON: object keys
// sorted by UTF-16 code units, strings NFC normalized, no HTML
// escaping, no floats. Identical state always produces identical
// bytes, which lets the manager skip republishing an unchanged
// snapshot and lets tests compare payloads byte-for-byte.
func EncodeCanonical(p *Payload) ([]byte, error) {
	return marshalCanonical(payloadToMap(p))
}

func payloadToMap(p *Payload) map[string]any {
	teams := make(map[string]any, len(p.Teams))
	for id, t := range p.Teams {
		teams[id] = totalsToMap(t)
	}

	hourly := make(map[string]any, len(p.Hourly))
	for name, v := range p.Hourly {
		hourly[name] = v
	}

	counters := make(map[string]any, len(p.Counters))
	for metric, byUser := range p.Counters {
		m := make(map[string]any, len(byUser))
		for user, count := range byUser {
			m[user] = count
		}
		counters[metric] = m
	}

	return map[string]any{
		"schema_version": int64(p.SchemaVersion),
		"snapshot_id":    p.SnapshotID,
		"scope_id":       p.ScopeID,
		"generated_at":   p.GeneratedAt,
		"global":         totalsToMap(p.Global),
		"teams":          teams,
		"hourly":         hourly,
		"counters":       counters,
	}
}

func totalsToMap(t aggregate.Totals) map[string]any {
	return map[string]any{
		"attacks":    t.Attacks,
		"wins":       t.Wins,
		"losses":     t.Losses,
		"incomplete": t.Incomplete,
	}
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return marshalCanonicalString(val), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case map[string]any:
		return marshalCanonicalObject(val)
	case []any:
		return marshalCanonicalArray(val)
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString escapes only what JSON requires - control
// characters, quote, and backslash - and NFC-normalizes first. No HTML
// escaping; U+2028 and U+2029 stay literal.
func marshalCanonicalString(s string) []byte {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.Bytes()
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// Keys sort by UTF-16 code units, not UTF-8 bytes.
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalCanonicalString(k))
		buf.WriteByte(':')

		b, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
