package flow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/faceflow/internal/camera"
)

const unnamedDevice = "unnamed"

// DiagnosticsReport lists what the camera capability exposes.
type DiagnosticsReport struct {
	PermissionGranted bool            `json:"permission_granted"`
	DeviceCount       int             `json:"device_count"`
	Devices           []camera.Device `json:"devices"`
	Warning           string          `json:"warning,omitempty"`
}

// DiagnosticsProbe reports camera permission and devices for troubleshooting.
type DiagnosticsProbe struct {
	cam    Camera
	logger *zap.Logger

	mu         sync.Mutex
	asked      bool
	permission camera.Permission
}

// NewDiagnosticsProbe returns a probe over cam.
func NewDiagnosticsProbe(cam Camera, logger *zap.Logger) *DiagnosticsProbe {
	return &DiagnosticsProbe{cam: cam, logger: logger.Named("diagnostics")}
}

// Mount requests camera permission. Only the first call asks.
func (p *DiagnosticsProbe) Mount(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.asked {
		return nil
	}
	p.asked = true
	perm, err := p.cam.RequestPermission(ctx)
	if err != nil {
		p.logger.Warn("camera permission request failed", zap.Error(err))
		perm = camera.PermissionDenied
	}
	p.permission = perm
	p.logger.Info("camera permission", zap.String("status", string(perm)))
	return nil
}

// Report enumerates devices now. A failed listing reports zero devices.
func (p *DiagnosticsProbe) Report(ctx context.Context) DiagnosticsReport {
	p.mu.Lock()
	granted := p.permission == camera.PermissionGranted
	p.mu.Unlock()

	devices, err := p.cam.Devices(ctx)
	if err != nil {
		p.logger.Warn("camera device listing failed", zap.Error(err))
		devices = nil
	}

	report := DiagnosticsReport{
		PermissionGranted: granted,
		DeviceCount:       len(devices),
		Devices:           make([]camera.Device, 0, len(devices)),
	}
	for _, d := range devices {
		if d.Name == "" {
			d.Name = unnamedDevice
		}
		report.Devices = append(report.Devices, d)
	}
	if len(devices) == 0 {
		report.Warning = "No camera was detected"
	}
	return report
}
