package server

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/kaleido/internal/app"
	"github.com/ayusman/kaleido/internal/capture"
	"github.com/ayusman/kaleido/internal/config"
	"github.com/ayusman/kaleido/internal/controls"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/logging"
)

func jpegEncoder(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newPipeline returns an app that is never started; tests publish to its
// hubs directly.
func newPipeline(t *testing.T) *app.App {
	t.Helper()
	settings := config.Default()
	settings.Render.Viewport = controls.Viewport{Width: 640, Height: 480}

	a := app.New(app.Config{
		Settings: settings,
		Camera:   capture.NewMockCamera(nil, false),
		Face:     detector.NewMockDetector(),
		Hands:    detector.NewMockDetector(),
		Encoder:  jpegEncoder,
		Logger:   logging.Discard(),
	})
	t.Cleanup(a.Stop)
	return a
}

func newTestServer(t *testing.T, p Pipeline) *Server {
	t.Helper()
	return New(Config{Pipeline: p, Logger: logging.Discard()})
}

func do(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(Config{Logger: logging.Discard()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/health", "")

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			rec := do(t, s, method, "/api/health", "")

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := newTestServer(t, newPipeline(t))

	rec := do(t, s, http.MethodGet, "/api/nonexistent", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_NoPipeline(t *testing.T) {
	s := New(Config{Logger: logging.Discard()})

	for _, path := range []string{"/api/status", "/api/controls", "/api/stream"} {
		if rec := do(t, s, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir, Logger: logging.Discard()})

	t.Run("serves index.html at root path", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/", "")

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/style.css", "")

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/nonexistent.html", "")

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_EmbeddedUI(t *testing.T) {
	s := New(Config{Logger: logging.Discard()})

	tests := []struct {
		path string
		want string
	}{
		{path: "/", want: "<title>Kaleido</title>"},
		{path: "/app.js", want: "/api/ws"},
		{path: "/style.css", want: "#stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
}

func TestServer_Status(t *testing.T) {
	s := newTestServer(t, newPipeline(t))

	rec := do(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var status struct {
		Running   bool `json:"running"`
		Detectors []struct {
			Kind string `json:"kind"`
		} `json:"detectors"`
		Controls struct {
			Zoom  float64 `json:"zoom"`
			Speed float64 `json:"speed"`
		} `json:"controls"`
		Viewport struct {
			Width int `json:"width"`
		} `json:"viewport"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}

	if status.Running {
		t.Error("running = true for an unstarted app")
	}
	if len(status.Detectors) != 2 || status.Detectors[0].Kind != "face" || status.Detectors[1].Kind != "hands" {
		t.Errorf("detectors = %+v", status.Detectors)
	}
	if status.Controls.Zoom != 1 || status.Controls.Speed != 30 || status.Viewport.Width != 640 {
		t.Errorf("controls = %+v, viewport = %+v", status.Controls, status.Viewport)
	}
}

func TestServer_Controls(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantZoom  float64
		wantSpeed float64
	}{
		{name: "snaps zoom to its step", body: `{"zoom": 2.04}`, wantCode: http.StatusOK, wantZoom: 2, wantSpeed: 30},
		{name: "clamps speed", body: `{"speed": 100}`, wantCode: http.StatusOK, wantZoom: 1, wantSpeed: 60},
		{name: "clamps zero speed to the minimum", body: `{"speed": 0}`, wantCode: http.StatusOK, wantZoom: 1, wantSpeed: 1},
		{name: "both", body: `{"zoom": 0.1, "speed": 12}`, wantCode: http.StatusOK, wantZoom: 0.5, wantSpeed: 12},
		{name: "non-numeric", body: `{"speed": "fast"}`, wantCode: http.StatusBadRequest, wantZoom: 1, wantSpeed: 30},
		{name: "malformed", body: `{"zoom":`, wantCode: http.StatusBadRequest, wantZoom: 1, wantSpeed: 30},
		{name: "empty", body: `{}`, wantCode: http.StatusBadRequest, wantZoom: 1, wantSpeed: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t)
			s := newTestServer(t, p)

			rec := do(t, s, http.MethodPut, "/api/controls", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}

			got := p.Controls().Snapshot()
			if got.Zoom != tt.wantZoom || got.Speed != tt.wantSpeed {
				t.Errorf("controls = %+v, want zoom %v speed %v", got, tt.wantZoom, tt.wantSpeed)
			}
		})
	}

	t.Run("get returns values and ranges", func(t *testing.T) {
		s := newTestServer(t, newPipeline(t))
		rec := do(t, s, http.MethodGet, "/api/controls", "")

		var resp controlsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Ranges.Speed != controls.DefaultSpeed || resp.Ranges.Zoom != controls.DefaultZoom {
			t.Errorf("ranges = %+v", resp.Ranges)
		}
		if !resp.Overlays {
			t.Error("overlays = false by default")
		}
	})

	t.Run("toggles overlays", func(t *testing.T) {
		p := newPipeline(t)
		s := newTestServer(t, p)
		if rec := do(t, s, http.MethodPut, "/api/controls", `{"overlays": false}`); rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if p.Controls().OverlaysEnabled() {
			t.Error("overlays still enabled")
		}
	})
}

func TestServer_Viewport(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		want     controls.Viewport
	}{
		{name: "valid", body: `{"width": 800, "height": 600}`, wantCode: http.StatusOK, want: controls.Viewport{Width: 800, Height: 600}},
		{name: "zero width", body: `{"width": 0, "height": 600}`, wantCode: http.StatusBadRequest, want: controls.Viewport{Width: 640, Height: 480}},
		{name: "negative", body: `{"width": 800, "height": -1}`, wantCode: http.StatusBadRequest, want: controls.Viewport{Width: 640, Height: 480}},
		{name: "too large", body: `{"width": 9000, "height": 600}`, wantCode: http.StatusBadRequest, want: controls.Viewport{Width: 640, Height: 480}},
		{name: "not json", body: `width=800`, wantCode: http.StatusBadRequest, want: controls.Viewport{Width: 640, Height: 480}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t)
			s := newTestServer(t, p)

			rec := do(t, s, http.MethodPut, "/api/viewport", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if got := p.Controls().Viewport(); got != tt.want {
				t.Errorf("viewport = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}

		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
		if s.config.WSRate <= 0 || s.config.WSBurst <= 0 {
			t.Errorf("websocket limits not defaulted: %+v", s.config)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})

	t.Run("app implements Pipeline", func(t *testing.T) {
		var _ Pipeline = (*app.App)(nil)
	})
}
