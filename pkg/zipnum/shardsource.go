package zipnum

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/s3"
)

// ShardSource fetches a byte range of a shard at the given location,
// which may be a local path, an http(s):// URL, or an s3:// URL
// (remote shard resolution).
type ShardSource interface {
	Fetch(ctx context.Context, location string, offset, length int64) ([]byte, error)
}

// NewShardSource picks a ShardSource implementation by the location's
// scheme. baseDir resolves bare relative paths (the common case: shards
// live alongside the index with no scheme at all).
func NewShardSource(baseDir string) ShardSource {
	return &dispatchSource{
		local: localSource{baseDir: baseDir},
		http:  httpSource{client: http.DefaultClient},
		s3:    s3Source{},
	}
}

type dispatchSource struct {
	local localSource
	http  httpSource
	s3    s3Source
}

func (d *dispatchSource) Fetch(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return d.http.Fetch(ctx, location, offset, length)
	case strings.HasPrefix(location, "s3://"):
		return d.s3.Fetch(ctx, location, offset, length)
	default:
		return d.local.Fetch(ctx, location, offset, length)
	}
}

// localSource reads a byte range from a file on disk, resolving
// relative locations under baseDir.
type localSource struct {
	baseDir string
}

func (l localSource) Fetch(_ context.Context, location string, offset, length int64) ([]byte, error) {
	path := location
	if !isAbs(path) && l.baseDir != "" {
		path = l.baseDir + string(os.PathSeparator) + path
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read shard %s: %w", path, err)
	}

	return buf, nil
}

func isAbs(p string) bool {
	return strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':')
}

// httpSource fetches a byte range via an HTTP Range request.
type httpSource struct {
	client *http.Client
}

func (h httpSource) Fetch(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", location, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, length))
	if err != nil {
		return nil, err
	}

	return data, nil
}

// s3Source fetches a byte range from an s3://bucket/key location using
// environment-derived credentials. The endpoint is carried as a query
// parameter with an explicit scheme (s3://bucket/key?endpoint=https://host)
// and validated with pkg/s3.ValidateConfig, so a malformed endpoint
// fails before any network call is attempted.
type s3Source struct{}

func (s3Source) Fetch(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse s3 location %q: %w", location, err)
	}

	endpoint := u.Query().Get("endpoint")
	if endpoint == "" {
		endpoint = "https://s3.amazonaws.com"
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	// Actual credentials come from the environment via credentials.NewEnvAWS
	// below; the placeholders here only satisfy ValidateConfig's bucket and
	// endpoint checks.
	cfg := s3.Config{Bucket: bucket, Endpoint: endpoint, AccessKeyID: "env", SecretAccessKey: "env"}
	if err := s3.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("s3 shard source: %w", err)
	}

	client, err := minio.New(s3.GetEndpointWithoutScheme(endpoint), &minio.Options{
		Creds:  credentials.NewEnvAWS(),
		Secure: s3.IsHTTPS(endpoint),
	})
	if err != nil {
		return nil, err
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, length))
	if err != nil {
		return nil, err
	}

	return data, nil
}
