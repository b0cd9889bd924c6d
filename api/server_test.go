package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"ghost-looper/sequencer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: invalid JSON %q: %v", path, w.Body.String(), err)
	}
	return w, body
}

func TestHealth(t *testing.T) {
	s := NewServer()
	for _, path := range []string{"/health", "/api/v1/health"} {
		w, body := get(t, s, path)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
		if body["status"] != "healthy" || body["service"] != "ghost-looper" {
			t.Errorf("%s: body = %v", path, body)
		}
	}
}

func TestStatusBeforeFirstFrame(t *testing.T) {
	w, _ := get(t, NewServer(), "/api/v1/status")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestStatusAndTracks(t *testing.T) {
	s := NewServer()
	tracks := sequencer.DefaultTracks()
	tracks[1].Pattern[4] = true
	s.Render(true, sequencer.Status{State: sequencer.TapTempo, BPM: 132, CurrentTrack: 1}, tracks)

	w, body := get(t, s, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["label"] != "[TAP TEMPO]" || body["ready"] != true {
		t.Errorf("body = %v", body)
	}
	st, _ := body["status"].(map[string]any)
	if st["bpm"] != float64(132) {
		t.Errorf("bpm = %v, want 132", st["bpm"])
	}

	w, body = get(t, s, "/api/v1/tracks")
	if w.Code != http.StatusOK {
		t.Fatalf("tracks status = %d", w.Code)
	}
	list, _ := body["tracks"].([]any)
	if len(list) != 4 {
		t.Fatalf("got %d tracks", len(list))
	}
	snare := list[1].(map[string]any)
	if snare["name"] != "Snare" || snare["selected"] != true {
		t.Errorf("snare = %v", snare)
	}
	if steps, _ := snare["steps"].(string); len(steps) != 32 || steps[4] != '*' {
		t.Errorf("snare steps = %q", steps)
	}
}

func TestCORSPreflight(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	NewServer().Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
