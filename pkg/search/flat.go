// Package search implements binary search over sorted CDXJ artifacts:
// byte-offset bisection within a flat file, index-driven chunk lookup
// within a ZipNum shard set, match-type expansion, and an optional
// post-filter pipeline.
package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/cdxj"
)

// ErrUnsortedInput is raised when a forward scan detects an inversion,
// mirroring merge's own invariant check.
var ErrUnsortedInput = errors.New("search: input is not sorted")

// minScanBuf is the minimum read granularity during bisection
// Reads are buffered at least 4 KiB at a time.
const minScanBuf = 4096

// Query selects what flat/ZipNum search should match.
type Query struct {
	SearchKey   string
	PrefixMatch bool
}

// FlatFile performs byte-offset bisection over an already-sorted CDXJ
// file opened at f (size must be known), then linearly scans forward
// from the located window, emitting every line whose SURT satisfies q
// to emit, until the match condition fails.
func FlatFile(ctx context.Context, f *os.File, q Query, emit func([]byte) error) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}

	start, err := bisect(ctx, f, info.Size(), q.SearchKey)
	if err != nil {
		return err
	}

	_, err = scanFrom(ctx, f, start, q, emit)

	return err
}

// bisect narrows [0, size) to an offset at or before the first line
// whose SURT could satisfy search_key, by repeated midpoint probes.
func bisect(ctx context.Context, f *os.File, size int64, searchKey string) (int64, error) {
	lo, hi := int64(0), size

	for hi-lo > minScanBuf {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		mid := lo + (hi-lo)/2

		lineStart, line, err := readLineAt(f, mid, size)
		if err != nil {
			return 0, err
		}

		if line == nil {
			hi = lineStart

			continue
		}

		key := surtPrefix(line)
		if key < searchKey {
			lo = lineStart + int64(len(line))
		} else {
			hi = lineStart
		}
	}

	return lo, nil
}

// readLineAt snaps offset back to the start of the line it falls
// within (via findLineStart), then reads forward until a full line
// (including its trailing '\n') is available, growing the read buffer
// if the line is unusually long. Returns the line's start offset and
// bytes; a nil line means offset is at or past EOF.
func readLineAt(f *os.File, offset, size int64) (int64, []byte, error) {
	if offset >= size {
		return size, nil, nil
	}

	lineStart := findLineStart(f, offset)

	for bufSize := int64(minScanBuf); ; bufSize *= 4 {
		want := bufSize
		if lineStart+want > size {
			want = size - lineStart
		}

		buf := make([]byte, want)

		n, err := f.ReadAt(buf, lineStart)
		if err != nil && err != io.EOF {
			return 0, nil, err
		}

		buf = buf[:n]

		if idx := bytes.IndexByte(buf, '\n'); idx >= 0 {
			return lineStart, buf[:idx+1], nil
		}

		if lineStart+int64(n) >= size {
			if n == 0 {
				return size, nil, nil
			}

			return lineStart, buf, nil
		}
	}
}

// findLineStart scans backward in fixed-size blocks from offset to
// find the byte just after the preceding '\n' (or 0, at file start).
func findLineStart(f *os.File, offset int64) int64 {
	const block = 4096

	pos := offset

	for pos > 0 {
		readLen := int64(block)
		if readLen > pos {
			readLen = pos
		}

		start := pos - readLen

		buf := make([]byte, readLen)
		if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
			return 0
		}

		if idx := bytes.LastIndexByte(buf, '\n'); idx >= 0 {
			return start + int64(idx) + 1
		}

		pos = start
	}

	return 0
}

func surtPrefix(line []byte) string {
	line = bytes.TrimRight(line, "\r\n")

	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		return string(line)
	}

	return string(line[:idx])
}

// scanFrom performs the linear scan+emit phase starting at a
// byte offset already narrowed by bisect (or 0, for ZipNum chunk scans
// over an in-memory decompressed buffer wrapped as a ReaderAt).
// scanFrom returns stopped=true when it terminated because a line
// definitively fell outside the match range (no later chunk, if any,
// could contain further matches); stopped=false when it ran off the
// end of the available bytes while still inside or before the match
// window (a ZipNum caller should still consult the next chunk).
func scanFrom(ctx context.Context, f io.ReaderAt, start int64, q Query, emit func([]byte) error) (stopped bool, err error) {
	sr := io.NewSectionReader(f, start, 1<<62)
	br := bufio.NewReaderSize(sr, 1<<20)

	var last []byte

	matched := false

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		line, rerr := br.ReadBytes('\n')
		if len(line) == 0 {
			if rerr == io.EOF {
				return false, nil
			}

			return false, rerr
		}

		if last != nil && cdxj.Compare(last, line) > 0 {
			return false, fmt.Errorf("%w", ErrUnsortedInput)
		}

		last = append(last[:0:0], line...)

		key := surtPrefix(line)

		var ok bool
		if q.PrefixMatch {
			ok = len(key) >= len(q.SearchKey) && key[:len(q.SearchKey)] == q.SearchKey
		} else {
			ok = key == q.SearchKey
		}

		if ok {
			matched = true

			if emitErr := emit(line); emitErr != nil {
				return false, emitErr
			}
		} else if matched || key > q.SearchKey {
			return true, nil
		}

		if rerr == io.EOF {
			return false, nil
		}
	}
}
