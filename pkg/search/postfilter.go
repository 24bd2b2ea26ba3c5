package search

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/cdxj"
)

// TimestampRange bounds matches by the 14-digit timestamp segment
// From/To may be given at any precision (year,
// year-month, ..., full 14 digits); empty means unbounded.
type TimestampRange struct {
	From string
	To   string
}

const fullTimestampLen = 14

func (r TimestampRange) loBound() string {
	return padTimestamp(r.From, '0')
}

func (r TimestampRange) hiBound() string {
	if r.To == "" {
		return strings.Repeat("9", fullTimestampLen)
	}

	return padTimestamp(r.To, '9')
}

func padTimestamp(ts string, pad byte) string {
	if len(ts) >= fullTimestampLen {
		return ts[:fullTimestampLen]
	}

	return ts + strings.Repeat(string(pad), fullTimestampLen-len(ts))
}

// Contains reports whether timestamp falls within the range,
// inclusive.
func (r TimestampRange) Contains(timestamp string) bool {
	lo, hi := r.loBound(), r.hiBound()
	ts := padTimestamp(timestamp, '0')

	return ts >= lo && ts <= hi
}

// PredicateOp is one of the four field-predicate
// operators.
type PredicateOp string

const (
	// OpEquals is "field=value".
	OpEquals PredicateOp = "="
	// OpNotEquals is "field!=value".
	OpNotEquals PredicateOp = "!="
	// OpMatches is "field~pattern" (regex).
	OpMatches PredicateOp = "~"
	// OpNotMatches is "field!~pattern" (regex).
	OpNotMatches PredicateOp = "!~"
)

// Predicate is one field-level test; predicates combine with logical
// AND.
type Predicate struct {
	Field string
	Op    PredicateOp
	Value string

	re *regexp.Regexp
}

// CompilePredicate parses an expression like "status=200", "mime!=text/html",
// "url~^https", or "url!~\\?" into a Predicate.
func CompilePredicate(expr string) (Predicate, error) {
	for _, op := range []PredicateOp{OpNotEquals, OpNotMatches, OpEquals, OpMatches} {
		if idx := strings.Index(expr, string(op)); idx >= 0 {
			// Prefer the two-char operators over their one-char prefixes:
			// "!=" and "!~" must be tried before "=" and "~".
			field := expr[:idx]
			value := expr[idx+len(op):]

			p := Predicate{Field: field, Op: op, Value: value}

			if op == OpMatches || op == OpNotMatches {
				re, err := regexp.Compile(value)
				if err != nil {
					return Predicate{}, fmt.Errorf("compile predicate %q: %w", expr, err)
				}

				p.re = re
			}

			return p, nil
		}
	}

	return Predicate{}, fmt.Errorf("invalid predicate expression %q", expr)
}

// Match evaluates the predicate against a record's JSON payload. A
// missing field is treated as the empty string.
func (p Predicate) Match(v map[string]any) bool {
	raw := v[p.Field]
	s := fmt.Sprintf("%v", raw)

	if raw == nil {
		s = ""
	}

	switch p.Op {
	case OpEquals:
		return s == p.Value
	case OpNotEquals:
		return s != p.Value
	case OpMatches:
		return p.re.MatchString(s)
	case OpNotMatches:
		return !p.re.MatchString(s)
	default:
		return false
	}
}

// PostOps controls the opt-in, memory-buffering post-processing stage
//
type PostOps struct {
	Sort    bool
	Dedupe  bool
	Limit   int
	Range   *TimestampRange
	Preds   []Predicate
}

// Apply runs range filtering, predicate filtering, then (if requested)
// sort, dedupe, and limit, over an already-materialized slice of
// parsed lines.
func Apply(lines [][]byte, ops PostOps) ([][]byte, error) {
	filtered := make([][]byte, 0, len(lines))

	for _, line := range lines {
		rec, err := cdxj.Parse(line, false)
		if err != nil {
			return nil, err
		}

		if ops.Range != nil && !ops.Range.Contains(rec.Timestamp) {
			continue
		}

		allMatch := true

		for _, p := range ops.Preds {
			if !p.Match(rec.JSON) {
				allMatch = false

				break
			}
		}

		if !allMatch {
			continue
		}

		filtered = append(filtered, line)
	}

	if ops.Sort {
		sort.SliceStable(filtered, func(i, j int) bool {
			return cdxj.Less(filtered[i], filtered[j])
		})
	}

	if ops.Dedupe {
		filtered = dedupeConsecutive(filtered)
	}

	if ops.Limit > 0 && len(filtered) > ops.Limit {
		filtered = filtered[:ops.Limit]
	}

	return filtered, nil
}

func dedupeConsecutive(lines [][]byte) [][]byte {
	if len(lines) == 0 {
		return lines
	}

	out := lines[:1]

	for _, line := range lines[1:] {
		prev, _ := cdxj.Parse(out[len(out)-1], false)
		cur, _ := cdxj.Parse(line, false)

		if prev.Key() == cur.Key() {
			continue
		}

		out = append(out, line)
	}

	return out
}
