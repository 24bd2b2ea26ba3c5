// Package addfield implements per-line JSON field augmentation:
// either merging a constant set of key/value pairs into each line's
// JSON object, or running a single registered transform function over
// it. Exactly one of the two must be configured.
package addfield

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/cdxj"
)

// ErrConfig is returned when neither or both of Constants/Transform are
// configured.
var ErrConfig = errors.New("addfield: configure exactly one of Constants or Transform")

// TransformFunc is the user extension point: a named,
// statically compiled transform over a record's JSON object.
type TransformFunc func(surt, timestamp string, v map[string]any) (map[string]any, error)

var registry = map[string]TransformFunc{} //nolint:gochecknoglobals

// Register adds a named transform to the statically compiled registry.
// Intended to be called from package init() in callers that define
// transforms, mirroring a plugin registration pattern without runtime
// source loading.
func Register(name string, fn TransformFunc) {
	registry[name] = fn
}

// Lookup returns a registered transform by name.
func Lookup(name string) (TransformFunc, bool) {
	fn, ok := registry[name]

	return fn, ok
}

func init() {
	Register("strip-query", stripQuery)
}

// stripQuery drops the query string from the "url" field, if present.
func stripQuery(_, _ string, v map[string]any) (map[string]any, error) {
	u, ok := v["url"].(string)
	if !ok {
		return v, nil
	}

	for i := 0; i < len(u); i++ {
		if u[i] == '?' {
			v["url"] = u[:i]

			break
		}
	}

	return v, nil
}

// Config selects exactly one of Constants (a fixed key/value merge) or
// TransformName (a registered TransformFunc looked up by name).
type Config struct {
	Constants     map[string]string
	TransformName string
	Strict        bool
}

func (c Config) resolve() (TransformFunc, error) {
	hasConstants := len(c.Constants) > 0
	hasTransform := c.TransformName != ""

	if hasConstants == hasTransform {
		return nil, ErrConfig
	}

	if hasConstants {
		constants := c.Constants

		return func(_, _ string, v map[string]any) (map[string]any, error) {
			for k, val := range constants {
				v[k] = val
			}

			return v, nil
		}, nil
	}

	fn, ok := Lookup(c.TransformName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown transform %q", ErrConfig, c.TransformName)
	}

	return fn, nil
}

// Stats reports how many lines were transformed vs. skipped (lenient
// mode, unparseable JSON).
type Stats struct {
	Transformed int64
	Skipped     int64
}

// Apply streams lines from r to w, applying cfg's transform to each
// line's JSON payload and re-emitting it in compact form. cfg.Strict
// only decides whether a malformed line aborts the run or is counted
// in Stats.Skipped and passed through unchanged; the inner cdxj.Parse
// call below is always strict.
func Apply(ctx context.Context, r io.Reader, w io.Writer, cfg Config) (Stats, error) {
	fn, err := cfg.resolve()
	if err != nil {
		return Stats{}, err
	}

	br := bufio.NewReaderSize(r, 1<<20)
	bw := bufio.NewWriterSize(w, 1<<20)

	var stats Stats

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		raw, rerr := br.ReadBytes('\n')
		if len(raw) == 0 {
			if rerr == io.EOF {
				break
			}

			if rerr != nil {
				return stats, rerr
			}
		}

		if len(raw) > 0 {
			rec, perr := cdxj.Parse(raw, true)
			if perr != nil {
				if cfg.Strict {
					return stats, perr
				}

				stats.Skipped++

				if _, werr := bw.Write(raw); werr != nil {
					return stats, werr
				}
			} else {
				updated, terr := fn(rec.SURT, rec.Timestamp, rec.JSON)
				if terr != nil {
					return stats, terr
				}

				line, ferr := cdxj.Format(rec.SURT, rec.Timestamp, updated)
				if ferr != nil {
					return stats, ferr
				}

				if _, werr := fmt.Fprintln(bw, line); werr != nil {
					return stats, werr
				}

				stats.Transformed++
			}
		}

		if rerr == io.EOF {
			break
		}
	}

	if err := bw.Flush(); err != nil {
		return stats, err
	}

	zerolog.Ctx(ctx).Debug().
		Int64("transformed", stats.Transformed).
		Int64("skipped", stats.Skipped).
		Msg("addfield complete")

	return stats, nil
}
