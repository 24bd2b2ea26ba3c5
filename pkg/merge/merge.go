// Package merge implements the sorted k-way merge of CDXJ streams via
// a min-heap over K sorted sources, stable by source index on ties,
// validating each source is non-decreasing as it reads.
package merge

import (
	"bufio"
	"container/heap"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/cdxj"
)

// readBufSize is the default buffered-read size: 1 MiB.
const readBufSize = 1 << 20

// Source is one sorted input to the merge. Name is used in error
// messages; the source's position in the slice is the stable
// tiebreaker ordinal. The heap compares whole lines, so lines with equal
// (surt, timestamp) are ordered by their remaining bytes, and only
// byte-identical lines fall back to the earlier-registered source first.
type Source struct {
	Name string
	R    io.Reader
}

// Stats summarizes a completed merge.
type Stats struct {
	LinesWritten int64
	SourceCount  int
}

type heapItem struct {
	line    []byte
	srcIdx  int
	lineIdx int // not set or read by Merge
}

type itemHeap []heapItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	c := cdxj.Compare(h[i].line, h[j].line)
	if c != 0 {
		return c < 0
	}

	return h[i].srcIdx < h[j].srcIdx
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(heapItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]

	return it
}

type reader struct {
	name   string
	br     *bufio.Reader
	last   []byte
	lineNo int
}

func (r *reader) next() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if len(line) == 0 {
		return nil, err
	}

	if err != nil && err != io.EOF {
		return nil, err
	}

	r.lineNo++

	if r.last != nil && cdxj.Compare(line, r.last) < 0 {
		return nil, &UnsortedInputError{
			Source:   r.name,
			LineNo:   r.lineNo,
			Previous: string(trimNL(r.last)),
			Current:  string(trimNL(line)),
		}
	}

	r.last = append([]byte(nil), line...)

	return line, nil
}

func trimNL(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}

	return b[:n]
}

// Merge reads all sources, writes the sorted union to w, and returns
// Stats. It is always strict: an unsorted-input violation aborts
// immediately, and the caller is responsible for discarding any partial
// output already written to w (Merge itself performs no buffering of
// w beyond a bufio.Writer flush on success).
func Merge(ctx context.Context, sources []Source, w io.Writer) (Stats, error) {
	readers := make([]*reader, len(sources))
	for i, s := range sources {
		readers[i] = &reader{name: s.Name, br: bufio.NewReaderSize(s.R, readBufSize)}
	}

	bw := bufio.NewWriterSize(w, readBufSize)

	h := make(itemHeap, 0, len(sources))
	heap.Init(&h)

	for i, r := range readers {
		line, err := r.next()
		if err != nil {
			if err == io.EOF {
				continue
			}

			return Stats{}, err
		}

		heap.Push(&h, heapItem{line: line, srcIdx: i})
	}

	var stats Stats
	stats.SourceCount = len(sources)

	for h.Len() > 0 {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		top := heap.Pop(&h).(heapItem)

		if _, err := bw.Write(ensureNL(top.line)); err != nil {
			return stats, err
		}

		stats.LinesWritten++

		line, err := readers[top.srcIdx].next()
		if err != nil {
			if err == io.EOF {
				continue
			}

			return stats, err
		}

		heap.Push(&h, heapItem{line: line, srcIdx: top.srcIdx})
	}

	if err := bw.Flush(); err != nil {
		return stats, err
	}

	return stats, nil
}

func ensureNL(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] != '\n' {
		return append(append([]byte(nil), b...), '\n')
	}

	return b
}

// LogSummary writes a structured summary line, matching the
// pattern of logging pipeline counters from the context logger in
// verbose mode.
func LogSummary(ctx context.Context, stats Stats) {
	zerolog.Ctx(ctx).Info().
		Int64("lines_written", stats.LinesWritten).
		Int("source_count", stats.SourceCount).
		Msg("merge complete")
}

// errTooFewSources is returned by ValidateSources when given no
// sources.
var errTooFewSources = fmt.Errorf("merge requires at least one source")

// ValidateSources is a small guard used by the staged fan-in merge and
// the CLI to fail fast before any I/O.
func ValidateSources(sources []Source) error {
	if len(sources) == 0 {
		return errTooFewSources
	}

	return nil
}
