// Package events transforms raw source rows into sink tracking events.
package events

import (
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

// RawRow is one source record as decoded from the query endpoint: an open
// mapping of field name to value.
type RawRow map[string]interface{}

// FieldMapping names the three fields extracted from every row. The rest
// of the row travels untouched as event properties.
type FieldMapping struct {
	User      string
	Event     string
	Timestamp string
}

// DefaultFieldMapping returns the field names the source schema uses.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		User:      "user_id",
		Event:     "event",
		Timestamp: "timestamp",
	}
}

// Row is the structured view of a RawRow: the three extracted fields plus
// the whole original row kept as properties.
type Row struct {
	UserID     string
	Event      string
	Timestamp  int64
	Properties RawRow
}

// ParseRow extracts the mapped fields from a raw row. A missing or
// uninterpretable required field is a malformed_row error; the caller skips
// the row rather than failing the run.
func ParseRow(raw RawRow, mapping FieldMapping) (Row, error) {
	userID, ok := stringField(raw[mapping.User])
	if !ok {
		return Row{}, errors.Newf(errors.ErrorTypeMalformedRow, "row is missing field %q", mapping.User)
	}

	event, ok := stringField(raw[mapping.Event])
	if !ok {
		return Row{}, errors.Newf(errors.ErrorTypeMalformedRow, "row is missing field %q", mapping.Event)
	}

	ts, ok := NumericTimestamp(raw[mapping.Timestamp])
	if !ok {
		return Row{}, errors.Newf(errors.ErrorTypeMalformedRow, "row has no numeric field %q", mapping.Timestamp)
	}

	return Row{
		UserID:     userID,
		Event:      event,
		Timestamp:  ts,
		Properties: raw,
	}, nil
}

// TrackingEvent is the sink's wire format for one exported row.
type TrackingEvent struct {
	Type       string `json:"type"`
	UserID     string `json:"userId"`
	Event      string `json:"event"`
	Properties RawRow `json:"properties"`
	Timestamp  string `json:"timestamp"`
}

// Tracking converts the row into its tracking event. The numeric timestamp
// becomes a local-time ISO-8601 string, matching what the sink has always
// received.
func (r Row) Tracking() TrackingEvent {
	return TrackingEvent{
		Type:       "track",
		UserID:     r.UserID,
		Event:      r.Event,
		Properties: r.Properties,
		Timestamp:  FormatTimestamp(r.Timestamp),
	}
}

// FormatTimestamp renders an epoch-seconds value as local-time ISO-8601.
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).Format("2006-01-02T15:04:05")
}

// stringField coerces a field value to a non-empty string.
func stringField(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case gojson.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	default:
		return "", false
	}
}

// NumericTimestamp coerces a decoded JSON value to epoch seconds. Fractional
// seconds are truncated, matching the source schema's integer timestamps.
func NumericTimestamp(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case gojson.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}
