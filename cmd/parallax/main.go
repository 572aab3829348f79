package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/parallax/internal/capture"
	"github.com/ayusman/parallax/internal/config"
	"github.com/ayusman/parallax/internal/detector"
	"github.com/ayusman/parallax/internal/log"
	"github.com/ayusman/parallax/internal/server"
	"github.com/ayusman/parallax/internal/store"
	"github.com/ayusman/parallax/internal/tray"
	"github.com/ayusman/parallax/internal/viewer"
)

func main() {
	fmt.Println("Parallax - face-driven 3D viewer")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.Log())

	if err := run(cfg); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[main] exiting")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	det, err := detector.New(cfg.Detector())
	if err != nil {
		return fmt.Errorf("load face detector: %w", err)
	}

	smoothing, err := cfg.Smoothing()
	if err != nil {
		det.Close()
		return err
	}

	var v *viewer.Viewer
	hub := server.NewCameraHub(func() bool { return v != nil && v.Settled() })

	v, err = viewer.New(viewer.Config{
		Store:       st,
		Backend:     capture.NewBackend(capture.DefaultWidth, capture.DefaultHeight),
		Detector:    det,
		Renderer:    hub,
		Smoothing:   smoothing,
		Sampling:    cfg.Sampling(),
		RefreshRate: cfg.RefreshHz,
		Device:      cfg.Device,
		Preset:      cfg.Preset,
	})
	if err != nil {
		det.Close()
		return err
	}
	v.OnError(hub.BroadcastError)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var t *tray.Tray
	if cfg.Tray {
		t = newTray(v, cfg.Addr, stop)
		v.OnDeviceChange(t.SetDevice)
		v.OnFollowingChange(t.SetFollowing)
	}

	if err := v.Mount(ctx); err != nil {
		v.Unmount()
		return fmt.Errorf("mount viewer: %w", err)
	}
	if t != nil {
		t.SetFollowing(v.Following())
	}

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(cfg.DataDir)
	}
	if staticDir != "" {
		log.Info(log.Fields{"dir": staticDir}, "[main] serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Viewer:    v,
		Hub:       hub,
	})

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(cfg.Addr)
	}()

	if t != nil {
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// Blocks the main goroutine until the tray quits.
		t.Run()
		stop()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	log.Info(nil, "[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "[main] server shutdown")
	}
	if err := v.Unmount(); err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "[main] viewer unmount")
	}
	return serveErr
}

func newTray(v *viewer.Viewer, addr string, quit func()) *tray.Tray {
	t := tray.New()
	t.OnFollow(v.SetFollowing)
	t.OnNextCamera(func() {
		if err := v.NextDevice(); err != nil {
			log.Warn(log.Fields{"error": err.Error()}, "[main] next camera failed")
		}
	})
	t.OnOpen(func() {
		if err := openBrowser(viewerURL(addr)); err != nil {
			log.Warn(log.Fields{"error": err.Error()}, "[main] failed to open browser")
		}
	})
	t.OnQuit(quit)
	return t
}

func viewerURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks "web", "../web", "../../web" and <dataDir>/web, returning the
// first existing directory or "" if none is found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	dataWeb := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWeb); err == nil && info.IsDir() {
		return dataWeb
	}
	return ""
}
