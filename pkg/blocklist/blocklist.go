// Package blocklist implements a regex-based line-drop filter: lines
// matching any of a compiled pattern set are dropped from the stream.
package blocklist

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Filter holds a compiled pattern set.
type Filter struct {
	patterns []*regexp.Regexp
}

// LoadPatterns parses a pattern file: one regex per line, blank lines
// and lines beginning with "#" (after leading whitespace) ignored.
// Patterns that fail to compile are skipped with a warning logged to
// ctx's logger; a file with zero usable patterns still returns a valid
// (empty) Filter, and the caller should treat it as a no-op pass-through
// with a warning.
func LoadPatterns(ctx context.Context, r io.Reader) (*Filter, error) {
	log := zerolog.Ctx(ctx)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var patterns []*regexp.Regexp

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		re, err := regexp.Compile(line)
		if err != nil {
			log.Warn().Err(err).Str("pattern", line).Msg("skipping unparseable blocklist pattern")

			continue
		}

		patterns = append(patterns, re)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(patterns) == 0 {
		log.Warn().Msg("blocklist has zero usable patterns; filter is a no-op")
	}

	return &Filter{patterns: patterns}, nil
}

// Matches reports whether line (raw bytes, including surt/timestamp/json)
// matches any configured pattern.
func (f *Filter) Matches(line []byte) bool {
	for _, re := range f.patterns {
		if re.Match(line) {
			return true
		}
	}

	return false
}

// Stats reports kept/dropped counters ("Statistics:
// kept/dropped counters are reported on close").
type Stats struct {
	Kept    int64
	Dropped int64
}

// Apply streams lines from r to w, dropping any that match f, and
// returns the kept/dropped counts.
func (f *Filter) Apply(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	bw := bufio.NewWriterSize(w, 1<<20)

	var stats Stats

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line, err := br.ReadBytes('\n')
		if len(line) == 0 {
			if err == io.EOF {
				break
			}

			if err != nil {
				return stats, err
			}
		}

		if f.Matches(line) {
			stats.Dropped++
		} else {
			stats.Kept++

			if _, werr := bw.Write(line); werr != nil {
				return stats, werr
			}
		}

		if err == io.EOF {
			break
		}
	}

	if err := bw.Flush(); err != nil {
		return stats, err
	}

	zerolog.Ctx(ctx).Debug().
		Int64("kept", stats.Kept).
		Int64("dropped", stats.Dropped).
		Msg("blocklist filter complete")

	return stats, nil
}
