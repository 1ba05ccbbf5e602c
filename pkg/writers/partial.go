package writers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PartialSuffix marks a table file that has not been committed yet.
const PartialSuffix = ".partial"

// partialFile is an output file that only appears under its final name once committed.
type partialFile struct {
	*os.File
	final string
	done  bool
}

func createPartial(path string) (*partialFile, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	// A committed table from an earlier run must not survive a failed rewrite.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove previous output: %w", err)
	}
	f, err := os.Create(path + PartialSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &partialFile{File: f, final: path}, nil
}

// writer hides Close from encoders that close their destination themselves.
func (p *partialFile) writer() io.Writer {
	return struct{ io.Writer }{p.File}
}

// commit closes the file and moves it to its final name.
func (p *partialFile) commit() error {
	if p.done {
		return nil
	}
	p.done = true
	if err := p.File.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		os.Remove(p.Name())
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(p.Name(), p.final); err != nil {
		os.Remove(p.Name())
		return fmt.Errorf("failed to commit output file: %w", err)
	}
	return nil
}

// discard closes and removes the file.
func (p *partialFile) discard() error {
	if p.done {
		return nil
	}
	p.done = true
	p.File.Close()
	if err := os.Remove(p.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial output: %w", err)
	}
	return nil
}
