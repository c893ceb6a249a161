package cli

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/kaleido/internal/app"
	"github.com/ayusman/kaleido/internal/capture"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/synth"
)

type snapshotOptions struct {
	out       string
	synthetic string
	zoom      float64
	width     int
	height    int
}

func newSnapshotCommand() *cobra.Command {
	var opts snapshotOptions

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render a single kaleidoscope frame to a JPEG file",
		Long: `Snapshot grabs one camera frame, runs the detectors on it once and writes
the rendered kaleidoscope to a JPEG file. With --synthetic a generated frame
and synthetic face and hand landmarks are used instead, so no camera or
detector is needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := snapshot(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "kaleido.jpg", "output file")
	cmd.Flags().StringVar(&opts.synthetic, "synthetic", "", fmt.Sprintf("use a generated frame instead of the camera (%v)", synth.Names()))
	cmd.Flags().Float64Var(&opts.zoom, "zoom", 0, "zoom (default from config)")
	cmd.Flags().IntVar(&opts.width, "width", 0, "output width (default from config)")
	cmd.Flags().IntVar(&opts.height, "height", 0, "output height (default from config)")

	return cmd
}

func snapshot(ctx context.Context, opts snapshotOptions) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, logger, err := loadSettings()
	if err != nil {
		return "", err
	}

	cfg := app.Config{Settings: settings, Logger: logger}
	if opts.synthetic != "" {
		frame, err := synth.LoadFrame(opts.synthetic, settings.Camera.Width, settings.Camera.Height)
		if err != nil {
			return "", err
		}
		cfg.Camera = capture.NewMockCamera([]*image.RGBA{frame}, true)

		face := detector.NewMockDetector()
		face.SetLandmarks([]detector.LandmarkSet{detector.SyntheticFace(0.5, 0.45, 0.12, 0.18)})
		hands := detector.NewMockDetector()
		hands.SetLandmarks([]detector.LandmarkSet{detector.OpenPalm(0.3, 0.85), detector.OpenPalm(0.7, 0.85)})
		cfg.Face, cfg.Hands = face, hands
	}

	a := app.New(cfg)
	defer a.Stop()

	ctl := a.Controls()
	if opts.zoom != 0 {
		if _, err := ctl.SetZoom(opts.zoom); err != nil {
			return "", err
		}
	}
	if opts.width > 0 || opts.height > 0 {
		v := ctl.Viewport()
		if opts.width > 0 {
			v.Width = opts.width
		}
		if opts.height > 0 {
			v.Height = opts.height
		}
		if err := ctl.SetViewport(v); err != nil {
			return "", err
		}
	}

	if err := a.CaptureOnce(); err != nil {
		return "", fmt.Errorf("capture frame: %w", err)
	}
	a.DetectOnce(ctx)

	data, err := a.Snapshot()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(opts.out, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return opts.out, nil
}
