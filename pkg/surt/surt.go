// Package surt implements the Sort-friendly URI Reordering Transform and
// the match-type expansion rules used by binary search: mapping a
// URL/SURT and a match type to an effective (search key, prefix flag) pair.
//
// This package does not attempt bit-compatibility with any third-party SURT
// implementation; the truncation rules for host/domain match types are
// fixed deterministically here.
package surt

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a URL cannot be parsed into a SURT.
var ErrInvalidURL = errors.New("invalid url")

// MatchType selects how a query URL/SURT expands into a search key.
type MatchType string

const (
	// Exact matches the full canonicalized SURT, path included.
	Exact MatchType = "exact"
	// Prefix matches any SURT beginning with the given SURT (path retained).
	Prefix MatchType = "prefix"
	// Host matches the given host and any path under it.
	Host MatchType = "host"
	// Domain matches the registered domain (the host's last two labels)
	// and any path under it. Its key ends in ")", so subdomain SURTs such
	// as "com,example,www)/" do not prefix-match and are not returned.
	Domain MatchType = "domain"
)

// ToSURT canonicalizes a URL into its SURT form: scheme dropped, host
// reversed and comma-joined, lowercase, terminated with ")" before the
// path. "http://example.com/a/b?q=1" -> "com,example)/a/b?q=1".
func ToSURT(rawurl string) (string, error) {
	rawurl = strings.ToLower(strings.TrimSpace(rawurl))
	if !strings.Contains(rawurl, "://") {
		rawurl = "http://" + rawurl
	}

	u, err := url.Parse(rawurl)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidURL, rawurl, err)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: %s: empty host", ErrInvalidURL, rawurl)
	}

	labels := strings.Split(host, ".")
	reverse(labels)

	surt := strings.Join(labels, ",") + ")" + u.EscapedPath()
	if u.RawQuery != "" {
		surt += "?" + u.RawQuery
	}

	return surt, nil
}

// HostKey returns the SURT truncated right after the ")" that closes the
// reversed-host segment, e.g. "com,example)". Any path is discarded.
func HostKey(rawurl string) (string, error) {
	s, err := ToSURT(rawurl)
	if err != nil {
		return "", err
	}

	idx := strings.IndexByte(s, ')')
	if idx < 0 {
		return "", fmt.Errorf("%w: %s: no host terminator", ErrInvalidURL, rawurl)
	}

	return s[:idx+1], nil
}

// DomainKey returns the SURT host key truncated to the registered domain:
// the last two labels of the host (e.g. "www.blog.example.com" ->
// "com,example)"). Hosts with two or fewer labels are returned
// unchanged. This is a deliberate simplification: no public-suffix-list
// lookup is performed.
func DomainKey(rawurl string) (string, error) {
	rawurl = strings.ToLower(strings.TrimSpace(rawurl))
	if !strings.Contains(rawurl, "://") {
		rawurl = "http://" + rawurl
	}

	u, err := url.Parse(rawurl)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidURL, rawurl, err)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: %s: empty host", ErrInvalidURL, rawurl)
	}

	labels := strings.Split(host, ".")
	if len(labels) > 2 {
		labels = labels[len(labels)-2:]
	}

	reverse(labels)

	return strings.Join(labels, ",") + ")", nil
}

// Expand maps a URL and match type to the (searchKey, prefixMatch) pair
// binary search should use.
func Expand(rawurl string, mt MatchType) (searchKey string, prefixMatch bool, err error) {
	switch mt {
	case Exact:
		s, err := ToSURT(rawurl)

		return s, false, err
	case Prefix:
		s, err := ToSURT(rawurl)

		return s, true, err
	case Host:
		s, err := HostKey(rawurl)

		return s, true, err
	case Domain:
		s, err := DomainKey(rawurl)

		return s, true, err
	default:
		return "", false, fmt.Errorf("%w: unknown match type %q", ErrInvalidURL, mt)
	}
}

// UnSURT reverses ToSURT's host transform, returning a plain
// "host/path?query" string. It does not restore a scheme.
func UnSURT(s string) (string, error) {
	s = strings.TrimSpace(s)

	idx := strings.IndexByte(s, ')')
	if idx < 0 {
		return "", fmt.Errorf("%w: %s: missing )", ErrInvalidURL, s)
	}

	labels := strings.Split(s[:idx], ",")
	reverse(labels)

	host := strings.Join(labels, ".")

	return host + s[idx+1:], nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
