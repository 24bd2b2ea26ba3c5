// Package zipnum implements the ZipNum shard-set encoder/decoder:
// splitting a sorted CDXJ stream into compressed shards with a
// searchable top-level index, and the reverse.
package zipnum

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedIndex is returned when a ".idx" line does not have the
// five expected TSV fields.
var ErrMalformedIndex = errors.New("malformed zipnum index line")

// IndexEntry is one line of a ".idx" summary file: the chunk's first
// CDXJ key, which shard holds it, and the compressed byte range within
// that shard.
type IndexEntry struct {
	FirstKey string
	ShardName string
	Offset    int64
	Length    int64
	ShardNum  int
}

// LocEntry maps a shard name to a physical location (local path,
// http(s):// URL, or s3:// URL).
type LocEntry struct {
	ShardName string
	Location  string
}

// WriteIndex writes entries as UTF-8 TSV, LF-terminated, in the order
// given (the encoder guarantees they already arrive sorted by
// FirstKey, since the input stream was sorted).
func WriteIndex(w io.Writer, entries []IndexEntry) error {
	bw := bufio.NewWriter(w)

	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%d\t%d\n", e.FirstKey, e.ShardName, e.Offset, e.Length, e.ShardNum); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ReadIndex parses a ".idx" file.
func ReadIndex(r io.Reader) ([]IndexEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var entries []IndexEntry

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			return nil, fmt.Errorf("%w: line %d: got %d fields", ErrMalformedIndex, lineNo, len(fields))
		}

		offset, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: offset: %w", ErrMalformedIndex, lineNo, err)
		}

		length, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: length: %w", ErrMalformedIndex, lineNo, err)
		}

		shardNum, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: shard_num: %w", ErrMalformedIndex, lineNo, err)
		}

		entries = append(entries, IndexEntry{
			FirstKey:  fields[0],
			ShardName: fields[1],
			Offset:    offset,
			Length:    length,
			ShardNum:  shardNum,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// WriteLoc writes shard-name -> location mappings as UTF-8 TSV.
func WriteLoc(w io.Writer, entries []LocEntry) error {
	bw := bufio.NewWriter(w)

	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", e.ShardName, e.Location); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ReadLoc parses a ".loc" file into a shard-name -> location map.
func ReadLoc(r io.Reader) (map[string]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	locs := make(map[string]string)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}

		locs[fields[0]] = fields[1]
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return locs, nil
}

// shardFinalName applies the shard naming rule: the bare base name
// when there is exactly one shard, otherwise a zero-padded numbered
// suffix.
func shardFinalName(base string, shardNum, totalShards int) string {
	if totalShards <= 1 {
		return base + ".cdx.gz"
	}

	return fmt.Sprintf("%s-%05d.cdx.gz", base, shardNum)
}
