// Package atomicfile provides the temp-and-rename write discipline used
// for merge output and for ZipNum shards, index and location files:
// write to a temporary file in the destination directory, then rename
// into place, so a reader never observes a partial artifact and a failed
// write leaves nothing behind. Addfield output does not go through this
// package; it is written directly to its destination.
package atomicfile

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Writer wraps an *os.File created in the destination directory under a
// random name; call Commit to rename it to its final path, or Abort (or
// let Commit fail) to discard it.
type Writer struct {
	f       *os.File
	dest    string
	mode    os.FileMode
	aborted bool
}

// New creates a temporary file alongside dest (same directory, so the
// final rename is same-filesystem) and returns a Writer for it.
func New(dest string, mode os.FileMode) (*Writer, error) {
	dir := filepath.Dir(dest)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	pattern := filepath.Base(dest) + ".tmp-" + uuid.NewString()

	f, err := os.OpenFile(filepath.Join(dir, pattern), os.O_RDWR|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return nil, err
	}

	return &Writer{f: f, dest: dest, mode: mode}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// File exposes the underlying temp file for callers needing direct
// access (e.g. Seek, or passing to a compressor that wants an
// io.WriteSeeker).
func (w *Writer) File() *os.File {
	return w.f
}

// SetDest changes the path Commit will rename the temp file to. Used
// when the final name is only known after the write completes (e.g.
// ZipNum shard naming depends on the total shard count). The new
// destination must live in the same directory the Writer was created
// in.
func (w *Writer) SetDest(dest string) {
	w.dest = dest
}

// Commit flushes, closes, and renames the temp file to its destination
// path, making the write visible atomically.
func (w *Writer) Commit() error {
	if err := w.f.Sync(); err != nil {
		w.Abort()

		return err
	}

	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())

		return err
	}

	if err := os.Chmod(w.f.Name(), w.mode); err != nil {
		os.Remove(w.f.Name())

		return err
	}

	if err := os.Rename(w.f.Name(), w.dest); err != nil {
		os.Remove(w.f.Name())

		return err
	}

	return nil
}

// Abort closes and removes the temp file without making it visible.
func (w *Writer) Abort() error {
	if w.aborted {
		return nil
	}

	w.aborted = true

	w.f.Close()

	return os.Remove(w.f.Name())
}

// WriteFile is a one-shot convenience: write all of r to dest atomically.
func WriteFile(dest string, mode os.FileMode, r io.Reader) (err error) {
	w, err := New(dest, mode)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			w.Abort()
		}
	}()

	if _, err = io.Copy(w, r); err != nil {
		return err
	}

	return w.Commit()
}
