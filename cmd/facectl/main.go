// Command facectl walks the capture flow from a terminal, reading frames
// from a directory camera.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/config"
	"github.com/example/faceflow/internal/faceclient"
	"github.com/example/faceflow/internal/flow"
	"github.com/example/faceflow/internal/logging"
	"github.com/example/faceflow/internal/store"
)

const usage = `commands:
  capture   capture the reference image (Reference screen)
  verify    verify your identity (Verify screen)
  retry     dismiss a failed verification
  switch    toggle front/back camera
  restart   start over (Success screen)
  diag      open camera diagnostics
  back      leave diagnostics
  help      show this text
  quit      exit`

func main() {
	if _, err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg, err := config.LoadLocal()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var (
		cameraDir = flag.String("camera-dir", cfg.CameraDir, "directory with one sub-directory per camera")
		apiURL    = flag.String("api", cfg.FaceAPIURL, "face service base URL")
		storePath = flag.String("store", cfg.StoreFilePath, "file holding the reference slot")
		debug     = flag.Bool("debug", false, "log at debug level")
	)
	flag.Parse()

	logger, err := logging.NewConsoleLogger(*debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	faces, err := faceclient.New(faceclient.Options{
		BaseURL:     *apiURL,
		DetectPath:  cfg.FaceDetectPath,
		ComparePath: cfg.FaceComparePath,
		Timeout:     cfg.FaceAPITimeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build face client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := flow.NewSession(flow.Deps{
		Camera: camera.NewEncoder(camera.NewDirectoryCamera(*cameraDir)),
		Faces:  faces,
		Store:  store.NewFileStore(*storePath),
		Logger: logger,
	}, printer{out: os.Stdout})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	if err := run(ctx, session, os.Stdin, os.Stdout); err != nil {
		logger.Fatal("facectl failed", zap.Error(err))
	}
}

// printer shows notices as they are raised.
type printer struct {
	out io.Writer
}

func (p printer) Observe(e flow.Event) {
	if e.Type != flow.EventNotice || e.Notice == nil {
		return
	}
	line := fmt.Sprintf("[%s] %s", e.Notice.Kind, e.Notice.Title)
	if e.Notice.Message != "" {
		line += ": " + e.Notice.Message
	}
	fmt.Fprintln(p.out, line)
}

func run(ctx context.Context, session *flow.Session, in io.Reader, out io.Writer) error {
	render(ctx, session, out)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if cmd == "" {
			continue
		}
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if cmd == "help" {
			fmt.Fprintln(out, usage)
			continue
		}
		if err := execute(ctx, session, cmd); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		render(ctx, session, out)
	}
}

func execute(ctx context.Context, session *flow.Session, cmd string) error {
	switch cmd {
	case "capture":
		ctrl, err := session.Reference()
		if err != nil {
			return err
		}
		return quiet(ctrl.CaptureReference(ctx))
	case "verify":
		ctrl, err := session.Verify()
		if err != nil {
			return err
		}
		return quiet(ctrl.VerifyIdentity(ctx))
	case "retry":
		ctrl, err := session.Verify()
		if err != nil {
			return err
		}
		ctrl.Retry()
		return nil
	case "switch":
		return session.SwitchCamera()
	case "restart":
		p, err := session.Result()
		if err != nil {
			return err
		}
		return p.Restart(ctx)
	case "diag":
		return session.Navigate(ctx, flow.ScreenDiagnostics, flow.Params{})
	case "back":
		return session.Navigate(ctx, flow.ScreenReference, flow.Params{})
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

// quiet drops outcomes the printer already reported as a notice.
func quiet(err error) error {
	switch {
	case errors.Is(err, flow.ErrNoFace), errors.Is(err, flow.ErrMismatch),
		errors.Is(err, flow.ErrNoReference), errors.Is(err, flow.ErrBackendRejected):
		return nil
	}
	return err
}

func render(ctx context.Context, session *flow.Session, out io.Writer) {
	snap := session.Snapshot(ctx)
	fmt.Fprintf(out, "== %s ==\n", snap.Screen)
	switch {
	case snap.Reference != nil:
		fmt.Fprintln(out, cameraLine(snap.Reference.Camera))
		fmt.Fprintln(out, "Take a clear photo of your face. Commands: capture, switch, diag")
	case snap.Verify != nil:
		fmt.Fprintln(out, cameraLine(snap.Verify.Camera))
		if !snap.Verify.HasReference {
			fmt.Fprintln(out, "No reference image yet.")
		}
		if snap.Verify.VerificationFailed {
			fmt.Fprintln(out, "Verification failed. Commands: retry, switch")
		} else {
			fmt.Fprintln(out, "Look at the camera. Commands: verify, switch, diag")
		}
	case snap.Result != nil:
		fmt.Fprintf(out, "%s\n%s\nCommands: restart\n", snap.Result.Title, snap.Result.Subtitle)
	case snap.Diagnostics != nil:
		d := snap.Diagnostics
		fmt.Fprintf(out, "permission granted: %v\ndevices: %d\n", d.PermissionGranted, d.DeviceCount)
		for _, dev := range d.Devices {
			fmt.Fprintf(out, "  %s (%s) %s\n", dev.ID, dev.Position, dev.Name)
		}
		if d.Warning != "" {
			fmt.Fprintln(out, d.Warning)
		}
		fmt.Fprintln(out, "Commands: back")
	}
}

func cameraLine(v flow.CameraView) string {
	if v.Permission != camera.PermissionGranted {
		return "camera: permission not granted"
	}
	if !v.Ready || v.Device == nil {
		return "camera: no device"
	}
	return fmt.Sprintf("camera: %s (%s)", v.Device.ID, v.Device.Position)
}
