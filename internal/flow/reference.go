package flow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/logging"
	"github.com/example/faceflow/internal/store"
)

// ReferenceState is what the reference screen renders.
type ReferenceState struct {
	Camera   CameraView `json:"camera"`
	Preview  string     `json:"preview,omitempty"`
	InFlight bool       `json:"in_flight"`
}

// ReferenceController captures the enrollment photo. On a detected face it
// stores the photo in the durable slot and moves on to Verify.
type ReferenceController struct {
	*screenBase
	deps   Deps
	nav    Navigator
	notify Notifier
}

// NewReferenceController builds the controller for one visit of the reference screen.
func NewReferenceController(deps Deps, nav Navigator, notify Notifier) *ReferenceController {
	logger := deps.Logger.Named("reference_controller")
	return &ReferenceController{
		screenBase: newScreenBase(deps.Camera, logger, camera.PositionFront),
		deps:       deps,
		nav:        nav,
		notify:     notify,
	}
}

// Mount requests camera permission and selects the first listed device.
func (c *ReferenceController) Mount(ctx context.Context) error {
	return c.mountCamera(ctx, func(devices []camera.Device) (camera.Device, bool) {
		if len(devices) == 0 {
			return camera.Device{}, false
		}
		return devices[0], true
	})
}

// State returns a snapshot of the screen.
func (c *ReferenceController) State() ReferenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ReferenceState{
		Camera:   c.cameraView(),
		Preview:  c.preview,
		InFlight: c.inFlight,
	}
}

// SwitchCamera toggles front/back. It clears the preview and drops any
// pending capture; it never submits anything.
func (c *ReferenceController) SwitchCamera() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.togglePositionLocked()
	c.preview = ""
}

// CaptureReference takes a photo, asks the face service whether it holds a
// face and, if so, persists it and navigates to Verify with it as parameter.
func (c *ReferenceController) CaptureReference(ctx context.Context) error {
	c.mu.Lock()
	device, ready := c.readyDevice()
	c.mu.Unlock()
	if !ready {
		return ErrCameraNotReady
	}

	a, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer c.end(a)

	opLogger := logging.WithOperation(c.logger, "flow.capture_reference", a.id)
	opLogger.Info("capture requested", zap.String("device_id", device.ID))

	frame, err := c.deps.Camera.CaptureFrame(a.ctx, device.ID)
	if c.superseded(a) {
		return ErrStale
	}
	if err != nil {
		opLogger.Warn("capture failed", zap.Error(err))
		c.notify.Notify(errorNotice(err.Error()))
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	opLogger.Info("frame encoded", logging.Image("image", frame.Encoded))

	c.mu.Lock()
	if c.staleLocked(a) {
		c.mu.Unlock()
		return ErrStale
	}
	c.preview = frame.Preview()
	c.mu.Unlock()

	result, err := c.deps.Faces.Detect(a.ctx, a.id, frame.Encoded)
	if c.superseded(a) {
		opLogger.Info("detection response discarded")
		return ErrStale
	}
	if err != nil {
		c.notify.Notify(errorNotice(logging.Cause(err)))
		return err
	}

	if !result.Accepted() {
		opLogger.Info("no face detected", zap.String("status", result.Status))
		c.mu.Lock()
		c.preview = ""
		c.mu.Unlock()
		c.notify.Notify(noticeNoFaceReference)
		return ErrNoFace
	}

	err = c.deps.Store.Set(a.ctx, store.ReferenceKey, frame.Encoded)
	if c.superseded(a) {
		opLogger.Info("capture superseded while persisting, not navigating", zap.Bool("stored", err == nil))
		return ErrStale
	}
	if err != nil {
		wrapped := logging.NewOperationError("flow.persist_reference", a.id, err)
		opLogger.Error("failed to persist reference", zap.Error(wrapped))
		c.notify.Notify(errorNotice(logging.Cause(err)))
		return wrapped
	}
	opLogger.Info("reference stored, navigating to verify")

	return c.nav.Navigate(a.ctx, ScreenVerify, Params{Reference: frame.Encoded})
}
