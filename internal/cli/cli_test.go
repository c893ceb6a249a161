package cli

import (
	"bytes"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "release", version: "1.2.0", commit: "abc123", want: "Kaleido 1.2.0 (abc123)"},
		{name: "dev build", version: "dev", commit: "none", want: "Kaleido development (local-build)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := NewRootCommand(tt.version, tt.commit, "unknown")
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"version"})

			if err := cmd.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestUIURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{addr: ":8080", want: "http://localhost:8080/"},
		{addr: "127.0.0.1:8080", want: "http://127.0.0.1:8080/"},
		{addr: "0.0.0.0:9000", want: "http://localhost:9000/"},
	}
	for _, tt := range tests {
		if got := uiURL(tt.addr); got != tt.want {
			t.Errorf("uiURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestSnapshotCommand_Synthetic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV")
	}

	out := filepath.Join(t.TempDir(), "snap.jpg")
	var stdout bytes.Buffer
	cmd := NewRootCommand("dev", "none", "unknown")
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"snapshot", "--synthetic", "gradient", "--width", "320", "--height", "240", "--out", out})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("snapshot is not a JPEG: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("snapshot size = %dx%d, want 320x240", cfg.Width, cfg.Height)
	}
}

func TestSnapshotCommand_UnknownFrame(t *testing.T) {
	cmd := NewRootCommand("dev", "none", "unknown")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"snapshot", "--synthetic", "sunset", "--out", filepath.Join(t.TempDir(), "x.jpg")})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for an unknown synthetic frame")
	}
}
