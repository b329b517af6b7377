package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/faceservice"
	"github.com/example/faceflow/internal/store"
)

// Camera is the capture capability a screen drives. camera.Encoder satisfies it.
type Camera interface {
	RequestPermission(ctx context.Context) (camera.Permission, error)
	Devices(ctx context.Context) ([]camera.Device, error)
	CaptureFrame(ctx context.Context, deviceID string) (camera.Frame, error)
}

// Deps are the collaborators shared by every screen controller.
type Deps struct {
	Camera Camera
	Faces  faceservice.Client
	Store  store.KeyValueStore
	Logger *zap.Logger
}

// CameraView is the camera readiness shown by a capture screen.
type CameraView struct {
	Permission camera.Permission `json:"permission,omitempty"`
	Ready      bool              `json:"ready"`
	Device     *camera.Device    `json:"device,omitempty"`
}

// attempt is one user-triggered capture/submit run.
type attempt struct {
	id     string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// screenBase holds what both capture screens share: camera selection, the
// preview, the single in-flight guard and the cancellation bookkeeping.
//
// Every attempt records the generation it started in. SwitchCamera and exit
// bump the generation and cancel the pending attempt; a response that comes
// back for an older generation is dropped without touching state.
type screenBase struct {
	mu     sync.Mutex
	cam    Camera
	logger *zap.Logger

	guard    *semaphore.Weighted
	life     context.Context
	stop     context.CancelFunc
	gen      uint64
	pending  context.CancelFunc
	inFlight bool
	exited   bool

	permissionAsked bool
	permission      camera.Permission
	devices         []camera.Device
	position        camera.Position
	device          *camera.Device
	preview         string
}

func newScreenBase(cam Camera, logger *zap.Logger, position camera.Position) *screenBase {
	life, stop := context.WithCancel(context.Background())
	return &screenBase{
		cam:      cam,
		logger:   logger,
		guard:    semaphore.NewWeighted(1),
		life:     life,
		stop:     stop,
		position: position,
	}
}

// mountCamera asks for permission once per screen instance and selects a device.
// pick chooses among the listed devices; nil picks by the current position.
func (b *screenBase) mountCamera(ctx context.Context, pick func([]camera.Device) (camera.Device, bool)) error {
	b.mu.Lock()
	asked := b.permissionAsked
	b.permissionAsked = true
	b.mu.Unlock()

	if !asked {
		perm, err := b.cam.RequestPermission(ctx)
		if err != nil {
			perm = camera.PermissionDenied
			b.logger.Warn("camera permission request failed", zap.Error(err))
		}
		b.logger.Info("camera permission", zap.String("status", string(perm)))
		b.mu.Lock()
		b.permission = perm
		b.mu.Unlock()
	}

	devices, err := b.cam.Devices(ctx)
	if err != nil {
		b.logger.Warn("camera device listing failed", zap.Error(err))
		return fmt.Errorf("list devices: %w", err)
	}
	b.logger.Info("camera devices detected", zap.Int("count", len(devices)))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = devices
	var (
		chosen camera.Device
		ok     bool
	)
	if pick != nil {
		chosen, ok = pick(devices)
	} else {
		chosen, ok = camera.FindPosition(devices, b.position)
	}
	if ok {
		b.device = &chosen
		if chosen.Position == camera.PositionFront || chosen.Position == camera.PositionBack {
			b.position = chosen.Position
		}
	} else {
		b.logger.Warn("requested camera not found", zap.String("position", string(b.position)))
	}
	return nil
}

// readyDevice returns the selected device when capture is possible. Caller holds mu.
func (b *screenBase) readyDevice() (camera.Device, bool) {
	if b.permission != camera.PermissionGranted || b.device == nil || b.exited {
		return camera.Device{}, false
	}
	return *b.device, true
}

func (b *screenBase) cameraView() CameraView {
	view := CameraView{Permission: b.permission}
	if d, ok := b.readyDevice(); ok {
		view.Ready = true
		view.Device = &d
	}
	return view
}

// begin starts an attempt or fails with ErrBusy when one is already running.
func (b *screenBase) begin(ctx context.Context) (*attempt, error) {
	if !b.guard.TryAcquire(1) {
		return nil, ErrBusy
	}
	actx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(b.life, cancel)

	b.mu.Lock()
	a := &attempt{
		id:  uuid.NewString(),
		gen: b.gen,
		ctx: actx,
		cancel: func() {
			stopAfter()
			cancel()
		},
	}
	b.pending = a.cancel
	b.inFlight = true
	b.mu.Unlock()
	return a, nil
}

func (b *screenBase) end(a *attempt) {
	b.mu.Lock()
	if b.gen == a.gen {
		b.pending = nil
	}
	b.inFlight = false
	b.mu.Unlock()
	a.cancel()
	b.guard.Release(1)
}

// staleLocked reports whether a was superseded. Caller holds mu.
func (b *screenBase) staleLocked(a *attempt) bool {
	return b.exited || b.gen != a.gen
}

// supersedeLocked invalidates the pending attempt. Caller holds mu.
func (b *screenBase) supersedeLocked() {
	b.gen++
	if b.pending != nil {
		b.pending()
		b.pending = nil
	}
}

// togglePositionLocked flips front/back and selects the matching device if present.
// Caller holds mu.
func (b *screenBase) togglePositionLocked() {
	b.position = b.position.Opposite()
	if d, ok := camera.FindPosition(b.devices, b.position); ok {
		b.device = &d
		b.logger.Info("camera selected", zap.String("position", string(b.position)), zap.String("device_id", d.ID))
		return
	}
	b.logger.Warn("requested camera not found", zap.String("position", string(b.position)))
}

func (b *screenBase) exit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exited {
		return
	}
	b.exited = true
	b.supersedeLocked()
	b.stop()
}

// superseded reports whether a switch or exit happened since a began.
func (b *screenBase) superseded(a *attempt) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.staleLocked(a)
}
