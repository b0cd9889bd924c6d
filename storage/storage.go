// Package storage persists recorded track patterns to a single JSON block
// tagged with a magic marker.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ghost-looper/ghost"
)

// Magic marks a valid block
const Magic = "GHST"

var (
	ErrNotFound = errors.New("no saved tracks")
	ErrBadMagic = errors.New("saved tracks: bad magic")
	ErrCorrupt  = errors.New("saved tracks: corrupt pattern")
)

// Pattern is one track's recorded hits
type Pattern = [ghost.TotalSteps]bool

// Store is what the sequencer needs from persistence
type Store interface {
	Load() ([]Pattern, error)
	Store(patterns []Pattern) error
	Erase() error
}

// block is the on-disk layout. Patterns are strings of 'x' (hit) and '.'.
type block struct {
	Magic    string   `json:"magic"`
	Patterns []string `json:"patterns"`
}

// File stores the block at a fixed path
type File struct {
	path string
}

// DefaultPath returns ~/.config/ghost-looper/tracks.json
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ghost-looper", "tracks.json"), nil
}

// NewFile creates a store at path; an empty path means DefaultPath
func NewFile(path string) (*File, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &File{path: path}, nil
}

// Path returns the backing file
func (f *File) Path() string {
	return f.path
}

// Load reads the stored patterns
func (f *File) Load() ([]Pattern, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Decode(data)
}

// Store writes the patterns, replacing any previous block
func (f *File) Store(patterns []Pattern) error {
	data, err := Encode(patterns)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}

	// write then rename so a crash never leaves half a block
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Erase invalidates the stored block. Erasing nothing is not an error.
func (f *File) Erase() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Encode serializes patterns into a magic-tagged block
func Encode(patterns []Pattern) ([]byte, error) {
	b := block{Magic: Magic, Patterns: make([]string, len(patterns))}
	for i, p := range patterns {
		var sb strings.Builder
		for _, hit := range p {
			if hit {
				sb.WriteByte('x')
			} else {
				sb.WriteByte('.')
			}
		}
		b.Patterns[i] = sb.String()
	}
	return json.MarshalIndent(b, "", "  ")
}

// Decode parses a block written by Encode
func Decode(data []byte) ([]Pattern, error) {
	var b block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("saved tracks: %w", err)
	}
	if b.Magic != Magic {
		return nil, ErrBadMagic
	}

	patterns := make([]Pattern, len(b.Patterns))
	for i, s := range b.Patterns {
		if len(s) != ghost.TotalSteps {
			return nil, fmt.Errorf("%w: track %d has %d steps", ErrCorrupt, i, len(s))
		}
		for j := 0; j < len(s); j++ {
			switch s[j] {
			case 'x':
				patterns[i][j] = true
			case '.':
			default:
				return nil, fmt.Errorf("%w: track %d step %d is %q", ErrCorrupt, i, j, s[j])
			}
		}
	}
	return patterns, nil
}
