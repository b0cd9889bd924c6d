package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"ghost-looper/button"
	"ghost-looper/config"
	"ghost-looper/sequencer"
	"ghost-looper/storage"
	"ghost-looper/timebase"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type sent struct{ ch, note, vel uint8 }

type fakeOutput struct {
	mu    sync.Mutex
	notes []sent
}

func (f *fakeOutput) Ready() bool { return true }

func (f *fakeOutput) SendNote(ch, note, vel uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, sent{ch, note, vel})
}

func (f *fakeOutput) count(ch, note uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.notes {
		if s.ch == ch && s.note == note {
			n++
		}
	}
	return n
}

func noPorts() ([]drivers.In, []drivers.Out) { return nil, nil }

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.StoragePath = filepath.Join(t.TempDir(), "tracks.json")
	return cfg
}

func TestStepDeliversClick(t *testing.T) {
	fake := timebase.NewFake(epoch)
	out := &fakeOutput{}
	e := New(testConfig(t), fake, out)
	e.Devices.SetPortLister(noPorts)

	e.Tempo.Start()
	defer e.Tempo.Stop()
	fake.Advance(e.Tempo.StepPeriod())
	e.Step()

	if st := e.Looper.Status().State; st != sequencer.Playing {
		t.Fatalf("State = %s, want playing", st)
	}
	if n := out.count(sequencer.ClickChannel, sequencer.NoteRimShot); n != 1 {
		t.Errorf("click notes = %d, want 1", n)
	}
}

func TestStepRoutesButtons(t *testing.T) {
	fake := timebase.NewFake(epoch)
	e := New(testConfig(t), fake, &fakeOutput{})
	e.Devices.SetPortLister(noPorts)

	e.Tempo.Start()
	defer e.Tempo.Stop()
	fake.Advance(e.Tempo.StepPeriod())

	e.Button.Inject(button.Down)
	e.Button.Inject(button.ShortPressRelease)
	e.Step()
	e.Step()

	if st := e.Looper.Status().State; st != sequencer.Recording {
		t.Errorf("State = %s, want recording", st)
	}
}

func TestNewRestoresStoredPatterns(t *testing.T) {
	cfg := testConfig(t)
	f, err := storage.NewFile(cfg.StoragePath)
	if err != nil {
		t.Fatal(err)
	}
	var p storage.Pattern
	p[5] = true
	if err := f.Store([]storage.Pattern{{}, p}); err != nil {
		t.Fatal(err)
	}

	e := New(cfg, timebase.NewFake(epoch))
	_, _, tracks := e.Looper.Snapshot()
	if !tracks[1].Pattern[5] {
		t.Error("stored snare pattern not restored")
	}
}

func TestNoOutputsStaysWaiting(t *testing.T) {
	fake := timebase.NewFake(epoch)
	e := New(testConfig(t), fake)
	e.Tempo.Start()
	defer e.Tempo.Stop()
	for i := 0; i < 4; i++ {
		fake.Advance(e.Tempo.StepPeriod())
		e.Step()
	}
	if st := e.Looper.Status().State; st != sequencer.Waiting {
		t.Errorf("State = %s, want waiting", st)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e := New(testConfig(t), timebase.Real{}, &fakeOutput{})
	e.Devices.SetPortLister(noPorts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if e.Scheduler.Schedule(time.Now(), 9, 36, 100) {
		t.Error("scheduler accepts notes after shutdown")
	}
}
