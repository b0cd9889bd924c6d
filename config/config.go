package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ghost-looper/ghost"
	"ghost-looper/midi"
	"ghost-looper/scheduler"
	"ghost-looper/sequencer"
	"ghost-looper/tempo"
)

// TempoConfig holds the tempo used at startup and after a clear
type TempoConfig struct {
	DefaultBPM uint32 `json:"defaultBPM"`
}

// KitConfig picks the note map of the connected drum machine
type KitConfig struct {
	Name string `json:"name"`
}

// SynthConfig enables local audio output
type SynthConfig struct {
	Enabled   bool   `json:"enabled"`
	SoundFont string `json:"soundFont,omitempty"` // .sf2, built-in voices when empty
}

// OutputConfig selects where notes go. Every configured output receives
// every note.
type OutputConfig struct {
	PortName     string      `json:"portName,omitempty"`
	SerialDevice string      `json:"serialDevice,omitempty"`
	SerialBaud   int         `json:"serialBaud,omitempty"`
	Synth        SynthConfig `json:"synth"`
}

// LaunchpadConfig maps the looper button and status LED to one pad
type LaunchpadConfig struct {
	Enabled bool     `json:"enabled"`
	Row     int      `json:"row"`
	Col     int      `json:"col"`
	Color   [3]uint8 `json:"color"`
}

// InputConfig selects clock and button sources by port name fragment
type InputConfig struct {
	ClockPort  string          `json:"clockPort,omitempty"`
	ButtonPort string          `json:"buttonPort,omitempty"`
	ButtonNote int             `json:"buttonNote"` // -1 for any note
	Launchpad  LaunchpadConfig `json:"launchpad"`
}

type SchedulerConfig struct {
	Capacity int `json:"capacity"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type LogConfig struct {
	Enabled bool   `json:"enabled"`
	Level   string `json:"level"`
	Path    string `json:"path,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // GIMP .gpl file
}

// Config is the main configuration structure
type Config struct {
	Tempo       TempoConfig      `json:"tempo"`
	Kit         KitConfig        `json:"kit"`
	Ghost       ghost.Parameters `json:"ghost"`
	Output      OutputConfig     `json:"output"`
	Input       InputConfig      `json:"input"`
	Scheduler   SchedulerConfig  `json:"scheduler"`
	Seed        uint64           `json:"seed"`
	StoragePath string           `json:"storagePath,omitempty"`
	API         APIConfig        `json:"api"`
	Log         LogConfig        `json:"log"`
	UI          UIConfig         `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tempo: TempoConfig{DefaultBPM: tempo.DefaultBPM},
		Kit:   KitConfig{Name: sequencer.DefaultKit},
		Ghost: ghost.DefaultParameters(),
		Output: OutputConfig{
			SerialBaud: midi.DINBaud,
		},
		Input: InputConfig{
			ButtonNote: midi.AnyNote,
			Launchpad: LaunchpadConfig{
				Enabled: true,
				Row:     0,
				Col:     0,
				Color:   [3]uint8{255, 64, 0},
			},
		},
		Scheduler: SchedulerConfig{Capacity: scheduler.DefaultCapacity},
		Seed:      1,
		API:       APIConfig{Addr: "127.0.0.1:8080"},
		Log:       LogConfig{Level: "info"},
	}
}

// Sanitize clamps out-of-range values in place
func (c *Config) Sanitize() {
	c.Tempo.DefaultBPM = tempo.ClampBPM(c.Tempo.DefaultBPM)
	c.Ghost.Sanitize()
	if _, ok := sequencer.Kits[c.Kit.Name]; !ok {
		c.Kit.Name = sequencer.DefaultKit
	}
	if c.Output.SerialBaud <= 0 {
		c.Output.SerialBaud = midi.DINBaud
	}
	if c.Scheduler.Capacity <= 0 {
		c.Scheduler.Capacity = scheduler.DefaultCapacity
	}
	if c.Input.ButtonNote < midi.AnyNote || c.Input.ButtonNote > 127 {
		c.Input.ButtonNote = midi.AnyNote
	}
	lp := &c.Input.Launchpad
	lp.Row = min(max(lp.Row, 0), 8)
	lp.Col = min(max(lp.Col, 0), 8)
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8080"
	}
}

// MIDIOptions converts the input section for the device manager
func (c *Config) MIDIOptions() midi.Options {
	lp := c.Input.Launchpad
	return midi.Options{
		ClockPort:  c.Input.ClockPort,
		ButtonPort: c.Input.ButtonPort,
		ButtonNote: c.Input.ButtonNote,
		Launchpad:  lp.Enabled,
		Pad:        midi.Pad{Row: lp.Row, Col: lp.Col},
		PadRGB:     lp.Color,
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ghost-looper"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not
// found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Missing fields keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Sanitize()

	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
