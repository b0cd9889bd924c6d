package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "sub", "tracks.json"))
	if err != nil {
		t.Fatal(err)
	}

	var kick, snare Pattern
	kick[0], kick[8], kick[16], kick[24] = true, true, true, true
	snare[4], snare[12] = true, true
	in := []Pattern{kick, snare, {}, {}}

	if err := f.Store(in); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	out, err := f.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Load() returned %d patterns, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("pattern %d differs after reload", i)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	f, _ := NewFile(filepath.Join(t.TempDir(), "tracks.json"))
	if _, err := f.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestEraseInvalidates(t *testing.T) {
	f, _ := NewFile(filepath.Join(t.TempDir(), "tracks.json"))
	if err := f.Store([]Pattern{{true}}); err != nil {
		t.Fatal(err)
	}
	if err := f.Erase(); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	if _, err := f.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Erase error = %v, want ErrNotFound", err)
	}
	if err := f.Erase(); err != nil {
		t.Errorf("second Erase() error = %v, want nil", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"bad magic", `{"magic":"NOPE","patterns":[]}`, ErrBadMagic},
		{"short pattern", `{"magic":"GHST","patterns":["x..."]}`, ErrCorrupt},
		{"bad char", `{"magic":"GHST","patterns":["x.......o......................."]}`, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("Decode(garbage) error = nil")
	}
}

func TestFileOnDiskIsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.json")
	f, _ := NewFile(path)
	var p Pattern
	p[0] = true
	if err := f.Store([]Pattern{p}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := `"x...............................`; !strings.Contains(string(data), want) {
		t.Errorf("file = %s, want it to contain %s", data, want)
	}
}
