package cli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/kaleido/internal/app"
	"github.com/ayusman/kaleido/internal/config"
	"github.com/ayusman/kaleido/internal/logging"
	"github.com/ayusman/kaleido/internal/server"
	"github.com/ayusman/kaleido/internal/tray"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	var (
		addr        string
		camera      int
		staticDir   string
		noDetectors bool
		withTray    bool
		open        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the kaleidoscope and serve it over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := loadSettings()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				settings.Server.Addr = addr
			}
			if flags.Changed("camera") {
				settings.Camera.Device = camera
			}
			if flags.Changed("static-dir") {
				settings.Server.StaticDir = staticDir
			}
			if noDetectors {
				settings.Detectors.Enabled = false
			}
			if withTray {
				settings.Tray = true
			}

			return serve(cmd.Context(), settings, logger, open)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().IntVar(&camera, "camera", 0, "camera device id")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "serve the UI from this directory instead of the embedded copy")
	cmd.Flags().BoolVar(&noDetectors, "no-detectors", false, "disable face and hand detection")
	cmd.Flags().BoolVar(&withTray, "tray", false, "show a system tray menu")
	cmd.Flags().BoolVar(&open, "open", false, "open the UI in the default browser")

	return cmd
}

func serve(parent context.Context, settings *config.Config, logger *logrus.Logger, open bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.Component(logger, "cli")

	a := app.New(app.Config{Settings: settings, Logger: logger})
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := server.New(server.Config{
		StaticDir: settings.Server.StaticDir,
		Pipeline:  a,
		WSRate:    settings.Server.WSRate,
		WSBurst:   settings.Server.WSBurst,
		Logger:    logger,
	})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(settings.Server.Addr)
	}()

	if cfgFile != "" {
		go func() {
			if err := config.Watch(ctx, cfgFile, logging.Component(logger, "config"), a.ApplySettings); err != nil {
				log.WithError(err).Warn("config hot reload unavailable")
			}
		}()
	}

	url := uiURL(settings.Server.Addr)
	log.WithField("url", url).Info("kaleidoscope ready")
	if open {
		openBrowser(url, log)
	}

	if settings.Tray {
		runTray(ctx, stop, a, url, log)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	a.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
		log.WithError(serr).Warn("server shutdown")
	}
	return err
}

// runTray blocks in the tray's event loop until Quit is chosen or ctx ends.
func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, url string, log *logrus.Entry) {
	t := tray.New()
	t.SetEnabled(a.Controls().OverlaysEnabled())
	t.OnToggle(a.Controls().SetOverlaysEnabled)
	t.OnOpen(func() { openBrowser(url, log) })
	t.OnQuit(stop)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case <-ticker.C:
				t.SetCameraStatus(a.Status().Camera.Error)
				t.SetEnabled(a.Controls().OverlaysEnabled())
			}
		}
	}()

	t.Run()
}

// uiURL turns a listen address into a browsable URL.
func uiURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	addr = strings.Replace(addr, "0.0.0.0", "localhost", 1)
	return "http://" + addr + "/"
}

func openBrowser(url string, log *logrus.Entry) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn(fmt.Sprintf("could not open browser, visit %s", url))
		return
	}
	go func() { _ = cmd.Wait() }()
}
