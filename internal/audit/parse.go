package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ErrTruncated marks a trailing line that was not terminated by "}\n" — a
// rotation/crash artifact, not a real parse failure (spec.md §6).
var ErrTruncated = fmt.Errorf("audit: truncated trailing record")

// ParseNDJSONLine parses one serialized line (without its trailing '\n')
// into an Entry. Unknown fields are ignored for forward compatibility
// (spec.md §6); details, if present, are read via Decoder.Token so their
// original insertion order survives the round trip.
func ParseNDJSONLine(line []byte) (Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(line))

	tok, err := dec.Token()
	if err != nil {
		return Entry{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Entry{}, fmt.Errorf("audit: expected object, got %v", tok)
	}

	var e Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Entry{}, err
		}
		key, _ := keyTok.(string)

		switch key {
		case "timestamp":
			var s string
			if err := dec.Decode(&s); err != nil {
				return Entry{}, err
			}
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return Entry{}, err
			}
			e.Timestamp = ts
		case "type":
			var s string
			if err := dec.Decode(&s); err != nil {
				return Entry{}, err
			}
			e.Type = Type(s)
		case "action":
			if err := dec.Decode(&e.Action); err != nil {
				return Entry{}, err
			}
		case "user_id":
			if err := dec.Decode(&e.UserID); err != nil {
				return Entry{}, err
			}
		case "ip_address":
			if err := dec.Decode(&e.IPAddress); err != nil {
				return Entry{}, err
			}
		case "request_id":
			if err := dec.Decode(&e.RequestID); err != nil {
				return Entry{}, err
			}
		case "details":
			details, err := decodeOrderedDetails(dec)
			if err != nil {
				return Entry{}, err
			}
			e.Details = details
		default:
			// Unknown field: skip its value, whatever shape it is.
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return Entry{}, err
			}
		}
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return Entry{}, err
	}

	return e, nil
}

// decodeOrderedDetails reads a JSON object of string->string pairs,
// preserving the order keys appear on the wire.
func decodeOrderedDetails(dec *json.Decoder) (*OrderedDetails, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("audit: expected details object, got %v", tok)
	}

	out := NewOrderedDetails()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitTrailingTruncated trims a final, incomplete "}\n"-terminated record
// from raw segment bytes, returning the complete-lines prefix. Segments may
// end mid-write after a crash; callers treat the remainder as EOF, never as
// an error (spec.md §6).
func SplitTrailingTruncated(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	if data[len(data)-1] == '\n' {
		return data
	}
	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		return nil
	}
	return data[:idx+1]
}
