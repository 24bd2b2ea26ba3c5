package zipnum

import "errors"

// errUnsorted is wrapped with a position when Encode detects an
// out-of-order input line (merge/encode invariants require
// pre-sorted input).
var errUnsorted = errors.New("input is not sorted by (surt, timestamp)")

// ErrShardMissing is wrapped around the underlying error when Decode or
// a ZipNum search cannot fetch an index entry's shard byte range.
var ErrShardMissing = errors.New("zipnum: shard location not found")
