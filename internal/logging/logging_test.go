package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithWriter_Level(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    logrus.Level
		wantErr bool
	}{
		{name: "empty defaults to info", level: "", want: logrus.InfoLevel},
		{name: "debug", level: "debug", want: logrus.DebugLevel},
		{name: "warn", level: "warn", want: logrus.WarnLevel},
		{name: "unknown", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewWithWriter(Options{Level: tt.level}, &bytes.Buffer{})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Options{Level: "info", NoColors: true}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	Component(logger, "render").WithField("viewport", "(640,480)").Info("canvas resized")

	out := buf.String()
	for _, want := range []string{"canvas resized", "component:render", "viewport:(640,480)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestFileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "kaleido.log")
	opts := DefaultOptions()
	opts.File = file
	opts.NoColors = true

	logger, err := NewWithWriter(opts, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("camera opened")

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "camera opened") {
		t.Errorf("log file = %q", data)
	}
}
