// Package cdxj implements the CDXJ line format: "<surt> <timestamp> <json>"
// triples used to index web archive captures.
package cdxj

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedLine is returned when a line does not split into the
// surt/timestamp/json triple that strict parsing requires.
var ErrMalformedLine = errors.New("malformed cdxj line")

// Record is a single parsed CDXJ line.
type Record struct {
	SURT      string
	Timestamp string
	JSONText  string
	JSON      map[string]any
}

// Parse splits a raw CDXJ line (trailing newline tolerated) into its three
// parts. In strict mode, fewer than two separating spaces is a
// ErrMalformedLine. In lenient mode, a missing json segment yields an empty
// object rather than failing.
func Parse(line []byte, strict bool) (Record, error) {
	line = bytes.TrimRight(line, "\r\n")

	first := bytes.IndexByte(line, ' ')
	if first < 0 {
		if strict {
			return Record{}, fmt.Errorf("%w: no separators", ErrMalformedLine)
		}

		return Record{SURT: string(line), JSON: map[string]any{}}, nil
	}

	rest := line[first+1:]

	second := bytes.IndexByte(rest, ' ')
	if second < 0 {
		if strict {
			return Record{}, fmt.Errorf("%w: missing json field", ErrMalformedLine)
		}

		return Record{
			SURT:      string(line[:first]),
			Timestamp: string(rest),
			JSON:      map[string]any{},
		}, nil
	}

	surt := string(line[:first])
	ts := string(rest[:second])
	jsonText := rest[second+1:]

	rec := Record{
		SURT:      surt,
		Timestamp: ts,
		JSONText:  string(jsonText),
	}

	if len(jsonText) == 0 {
		rec.JSON = map[string]any{}

		return rec, nil
	}

	var v map[string]any
	if err := json.Unmarshal(jsonText, &v); err != nil {
		if strict {
			return Record{}, fmt.Errorf("%w: %s", ErrMalformedLine, err)
		}

		rec.JSON = map[string]any{}

		return rec, nil
	}

	rec.JSON = v

	return rec, nil
}

// Format renders surt, timestamp and a JSON value back into a CDXJ line
// (without a trailing newline). JSON is emitted compact; key ordering
// is not guaranteed to match the original.
func Format(surt, timestamp string, v map[string]any) (string, error) {
	jb, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return surt + " " + timestamp + " " + string(jb), nil
}

// Key returns the (surt, timestamp) sort key of the record as raw bytes,
// for lexicographic comparison.
func (r Record) Key() string {
	return r.SURT + " " + r.Timestamp
}

// Less reports whether line a sorts strictly before line b, comparing
// raw bytes up to (and including) the timestamp field. Both lines must
// be at least surt+timestamp; comparison is over the full line bytes
// since surt/timestamp are a prefix of the line and JSON never affects
// primary ordering in a well-formed stream.
func Less(a, b []byte) bool {
	return bytes.Compare(bytes.TrimRight(a, "\r\n"), bytes.TrimRight(b, "\r\n")) < 0
}

// Compare is the bytes.Compare-style three-way comparison used by the
// merge heap and binary search bisection.
func Compare(a, b []byte) int {
	return bytes.Compare(bytes.TrimRight(a, "\r\n"), bytes.TrimRight(b, "\r\n"))
}
