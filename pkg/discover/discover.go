// Package discover resolves an input set of CDXJ/ZipNum files from a
// mixture of file and directory paths, honoring glob exclusion patterns,
// and sniffs file types where the extension alone is ambiguous.
package discover

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrSymlinkCycle is returned when directory recursion detects a symlink
// cycle.
var ErrSymlinkCycle = errors.New("symlink cycle detected")

// FileType classifies a discovered path.
type FileType int

const (
	// TypeUnknown could not be classified.
	TypeUnknown FileType = iota
	// TypeCDXJ is a plain sorted CDXJ text file.
	TypeCDXJ
	// TypeZipNumIndex is a ZipNum ".idx" summary file.
	TypeZipNumIndex
	// TypeZipNumShard is a gzip-compressed ZipNum shard.
	TypeZipNumShard
)

// Options controls Files' resolution behavior.
type Options struct {
	// Exclude holds glob patterns (doublestar syntax, supporting "**")
	// matched against both the basename and the full path of each
	// candidate file.
	Exclude []string
}

// Files resolves paths (a mix of files and directories) into a sorted,
// deduplicated list, honoring Options.Exclude. Directories contribute
// the *.cdxj files found beneath them; file paths are kept as given,
// whatever their extension.
//
// A single "-" denotes standard input and cannot be combined with any
// other path (directories in particular cannot be recursed alongside a
// stream source).
func Files(paths []string, opts Options) ([]string, error) {
	if len(paths) == 1 && paths[0] == "-" {
		return []string{"-"}, nil
	}

	for _, p := range paths {
		if p == "-" {
			return nil, fmt.Errorf("stdin (-) cannot be combined with other inputs")
		}
	}

	seen := make(map[string]struct{})
	var out []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}

		if info.IsDir() {
			visited := make(map[string]struct{})

			found, err := walkDir(p, visited)
			if err != nil {
				return nil, err
			}

			for _, f := range found {
				addUnique(seen, &out, f)
			}

			continue
		}

		addUnique(seen, &out, p)
	}

	filtered := out[:0]

	for _, f := range out {
		if excluded(f, opts.Exclude) {
			continue
		}

		filtered = append(filtered, f)
	}

	sort.Strings(filtered)

	return filtered, nil
}

func addUnique(seen map[string]struct{}, out *[]string, p string) {
	clean := filepath.Clean(p)
	if _, ok := seen[clean]; ok {
		return
	}

	seen[clean] = struct{}{}
	*out = append(*out, clean)
}

func walkDir(root string, visited map[string]struct{}) ([]string, error) {
	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}

	if _, ok := visited[real]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSymlinkCycle, root)
	}

	visited[real] = struct{}{}

	var out []string

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		full := filepath.Join(root, e.Name())

		if e.IsDir() {
			sub, err := walkDir(full, visited)
			if err != nil {
				return nil, err
			}

			out = append(out, sub...)

			continue
		}

		if e.Type()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(full)
			if err != nil {
				continue
			}

			st, err := os.Stat(target)
			if err != nil {
				continue
			}

			if st.IsDir() {
				sub, err := walkDir(full, visited)
				if err != nil {
					return nil, err
				}

				out = append(out, sub...)

				continue
			}

			full = target
		}

		if strings.HasSuffix(e.Name(), ".cdxj") {
			out = append(out, full)
		}
	}

	return out, nil
}

func excluded(path string, patterns []string) bool {
	base := filepath.Base(path)

	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, base); ok {
			return true
		}

		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}

	return false
}

// Sniff classifies a file by extension, falling back to content
// sniffing of the first bytes when the extension is ambiguous.
func Sniff(path string) (FileType, error) {
	switch {
	case strings.HasSuffix(path, ".cdx.gz"), strings.HasSuffix(path, ".cdxj.gz"):
		return TypeZipNumShard, nil
	case strings.HasSuffix(path, ".idx"):
		return TypeZipNumIndex, nil
	case strings.HasSuffix(path, ".cdxj"):
		return TypeCDXJ, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	return sniffContent(f)
}

func sniffContent(r io.Reader) (FileType, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return TypeUnknown, err
	}

	if len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b {
		return TypeZipNumShard, nil
	}

	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return TypeUnknown, err
	}

	if strings.Count(line, "\t") == 4 {
		return TypeZipNumIndex, nil
	}

	if strings.Count(line, " ") >= 2 {
		return TypeCDXJ, nil
	}

	return TypeUnknown, nil
}
