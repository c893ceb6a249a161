package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/kaleido/internal/capture"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// idleShutdown is how long an unused service process is kept alive.
const idleShutdown = 30 * time.Second

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
// One process serves one Kind.
type MediaPipeDetector struct {
	config     Config
	scriptPath string
	pythonPath string
	quality    int
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	lastUsed   time.Time
	idleTimer  *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe detector for config.Kind.
// The Python process is started lazily on first detection. It returns
// ErrDetectorUnavailable if the service script or interpreter is missing.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if config.Kind != KindFace && config.Kind != KindHands {
		return nil, fmt.Errorf("unknown detector kind %q", config.Kind)
	}

	scriptPath := findMediaPipeScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("%w: mediapipe_service.py not found", ErrDetectorUnavailable)
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		p, err := exec.LookPath("python3")
		if err != nil {
			return nil, fmt.Errorf("%w: python3 not found", ErrDetectorUnavailable)
		}
		pythonPath = p
	}

	return &MediaPipeDetector{
		config:     config,
		scriptPath: scriptPath,
		pythonPath: pythonPath,
		quality:    capture.DefaultJPEGQuality,
	}, nil
}

// Detect analyzes a frame and returns detected landmark sets.
// If ctx is cancelled mid-request the service process is killed and
// restarted on the next call.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame *capture.Frame) ([]LandmarkSet, error) {
	if frame == nil || frame.Image == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := capture.EncodeJPEG(frame.Image, d.quality)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	cmd := d.cmd
	stop := context.AfterFunc(ctx, func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})
	defer stop()

	line, err := d.roundTrip(data)
	if err != nil {
		d.shutdown()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var response jsonResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe %s: %s", d.config.Kind, response.Error)
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return response.landmarkSets(d.config.MaxSubjects), nil
}

// roundTrip writes one length-prefixed JPEG and reads one JSON line back.
func (d *MediaPipeDetector) roundTrip(data []byte) ([]byte, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// Args returns the command line passed to the service script.
func (d *MediaPipeDetector) Args() []string {
	return serviceArgs(d.config)
}

func serviceArgs(c Config) []string {
	args := []string{
		"--kind", string(c.Kind),
		"--max-subjects", strconv.Itoa(c.MaxSubjects),
		"--min-detection-confidence", strconv.FormatFloat(c.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(c.MinTrackingConf, 'f', -1, 64),
	}
	switch c.Kind {
	case KindFace:
		if c.RefineLandmarks {
			args = append(args, "--refine-landmarks")
		}
	case KindHands:
		args = append(args, "--model-complexity", strconv.Itoa(c.ModelComplexity))
	}
	return args
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.pythonPath, append([]string{d.scriptPath}, serviceArgs(d.config)...)...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("%w: start mediapipe service: %v", ErrDetectorUnavailable, err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findMediaPipeScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".kaleido/scripts/mediapipe_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
// It checks for venv/bin/python relative to the project directory.
func findVenvPython() string {
	// Get executable directory to find project root
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".kaleido/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonResponse is the JSON line written by the Python service.
type jsonResponse struct {
	Landmarks [][]jsonPoint `json:"landmarks"`
	Error     string        `json:"error,omitempty"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// landmarkSets converts the response, keeping at most max subjects.
func (r jsonResponse) landmarkSets(max int) []LandmarkSet {
	n := len(r.Landmarks)
	if max > 0 && n > max {
		n = max
	}

	sets := make([]LandmarkSet, n)
	for i := 0; i < n; i++ {
		set := make(LandmarkSet, len(r.Landmarks[i]))
		for j, p := range r.Landmarks[i] {
			set[j] = Landmark{X: p.X, Y: p.Y}
		}
		sets[i] = set
	}
	return sets
}
