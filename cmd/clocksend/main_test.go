package main

import (
	"testing"
	"time"
)

func TestPulseInterval(t *testing.T) {
	tests := []struct {
		bpm  uint32
		want time.Duration
	}{
		{120, time.Minute / 2880},
		{60, time.Minute / 1440},
		{150, time.Minute / 3600},
	}
	for _, tt := range tests {
		if got := PulseInterval(tt.bpm); got != tt.want {
			t.Errorf("PulseInterval(%d) = %v, want %v", tt.bpm, got, tt.want)
		}
	}
}
