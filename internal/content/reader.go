package content

import (
	"fmt"
	"io/fs"
	"os"
)

// RawEntry is the raw bytes and metadata of a source file before any transformation.
type RawEntry struct {
	Raw  []byte
	Info fs.FileInfo
}

// ReadError marks a file that could not be read at all. Entries failing with
// it are skipped rather than failing the pass.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ReadEntry loads a source file. A failed read returns *ReadError. A read
// that succeeds but cannot be stat'd afterwards returns a plain error, since
// entry metadata is required downstream.
func ReadEntry(path string) (*RawEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return &RawEntry{Raw: raw, Info: info}, nil
}
