// Package excessive implements the excessive-URL filter:
// a per-SURT cardinality cap, in three modes — find (discover keys over
// threshold), remove (drop lines whose key is in a preloaded set), and
// auto (find then remove over the same file, two passes).
package excessive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultThreshold is the default cardinality cap.
const DefaultThreshold = 1000

// ErrStdinRequiresTwoPasses is returned when auto mode is requested
// against the "-" stdin source, which cannot be read twice.
var ErrStdinRequiresTwoPasses = errors.New("excessive-urls auto mode requires a file, not stdin")

// Entry is one key whose record count exceeded the threshold.
type Entry struct {
	Key   string
	Count int64
}

// CountKeys performs a single pass over r, counting records per SURT
// key. The cardinality table is process-scoped: it lives only for the
// duration of this call.
func CountKeys(ctx context.Context, r io.Reader) (map[string]int64, error) {
	counts := make(map[string]int64)

	br := bufio.NewReaderSize(r, 1<<20)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			key := surtOf(line)
			if key != "" {
				counts[key]++
			}
		}

		if err != nil {
			if err == io.EOF {
				break
			}

			return nil, err
		}
	}

	return counts, nil
}

func surtOf(line []byte) string {
	line = bytes.TrimRight(line, "\r\n")

	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		return string(line)
	}

	return string(line[:idx])
}

// FindExcessive returns the keys whose count exceeds threshold, sorted
// by descending count (ties broken by key, ascending, for determinism).
func FindExcessive(counts map[string]int64, threshold int64) []Entry {
	var entries []Entry

	for k, c := range counts {
		if c > threshold {
			entries = append(entries, Entry{Key: k, Count: c})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}

		return entries[i].Key < entries[j].Key
	})

	return entries
}

// WriteFindOutput renders find-mode results: "<surt>\t<count>" lines,
// followed by a trailing comment summarizing the total.
func WriteFindOutput(w io.Writer, entries []Entry, threshold int64) error {
	bw := bufio.NewWriter(w)

	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", e.Key, e.Count); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(bw, "# Found %d URLs with > %d occurrences\n", len(entries), threshold); err != nil {
		return err
	}

	return bw.Flush()
}

// Find runs the find pass end-to-end: count, select, and write.
func Find(ctx context.Context, r io.Reader, w io.Writer, threshold int64) ([]Entry, error) {
	counts, err := CountKeys(ctx, r)
	if err != nil {
		return nil, err
	}

	entries := FindExcessive(counts, threshold)

	if err := WriteFindOutput(w, entries, threshold); err != nil {
		return entries, err
	}

	zerolog.Ctx(ctx).Debug().
		Int("excessive_keys", len(entries)).
		Int64("threshold", threshold).
		Msg("excessive-url find complete")

	return entries, nil
}

// LoadKeySet reads a blacklist file: the first whitespace-delimited
// field of each non-comment, non-blank line is a SURT key; any
// remaining fields (e.g. a count) are ignored.
func LoadKeySet(r io.Reader) (map[string]struct{}, error) {
	set := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		set[fields[0]] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return set, nil
}

// Stats reports kept/dropped counters.
type Stats struct {
	Kept    int64
	Dropped int64
}

// Remove streams lines from r to w, dropping any whose SURT key is in
// keys.
func Remove(ctx context.Context, r io.Reader, w io.Writer, keys map[string]struct{}) (Stats, error) {
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
		if len(line) > 0 {
			if _, drop := keys[surtOf(line)]; drop {
				stats.Dropped++
			} else {
				stats.Kept++

				if _, werr := bw.Write(line); werr != nil {
					return stats, werr
				}
			}
		}

		if err != nil {
			if err == io.EOF {
				break
			}

			return stats, err
		}
	}

	if err := bw.Flush(); err != nil {
		return stats, err
	}

	zerolog.Ctx(ctx).Debug().
		Int64("kept", stats.Kept).
		Int64("dropped", stats.Dropped).
		Msg("excessive-url remove complete")

	return stats, nil
}

// Auto runs find over path into an in-memory set, then remove over path
// again, writing the filtered stream to w. It requires a real file path
// ("-" is rejected, since stdin cannot be read twice).
func Auto(ctx context.Context, path string, w io.Writer, threshold int64) (Stats, error) {
	if path == "-" {
		return Stats{}, ErrStdinRequiresTwoPasses
	}

	f1, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}

	counts, err := CountKeys(ctx, f1)
	f1.Close()

	if err != nil {
		return Stats{}, err
	}

	entries := FindExcessive(counts, threshold)

	keys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keys[e.Key] = struct{}{}
	}

	f2, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f2.Close()

	return Remove(ctx, f2, w, keys)
}

// FormatCount renders a count or threshold in base 10.
func FormatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
