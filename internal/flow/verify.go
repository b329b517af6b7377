package flow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/logging"
	"github.com/example/faceflow/internal/store"
)

// VerifyState is what the verify screen renders.
type VerifyState struct {
	Camera             CameraView `json:"camera"`
	HasReference       bool       `json:"has_reference"`
	Preview            string     `json:"preview,omitempty"`
	VerificationFailed bool       `json:"verification_failed"`
	InFlight           bool       `json:"in_flight"`
}

// VerifyController compares a live photo against the reference image.
type VerifyController struct {
	*screenBase
	deps   Deps
	nav    Navigator
	notify Notifier

	reference string
	failed    bool
}

// NewVerifyController builds the controller for one visit of the verify
// screen. params.Reference, when set, takes precedence over the durable slot.
func NewVerifyController(deps Deps, nav Navigator, notify Notifier, params Params) *VerifyController {
	logger := deps.Logger.Named("verify_controller")
	return &VerifyController{
		screenBase: newScreenBase(deps.Camera, logger, camera.PositionFront),
		deps:       deps,
		nav:        nav,
		notify:     notify,
		reference:  params.Reference,
	}
}

// Mount requests camera permission, selects the front camera and resolves
// the reference: transition parameter first, then the durable slot. The
// reference is resolved even when the camera cannot be set up; the camera
// error is returned after.
func (c *VerifyController) Mount(ctx context.Context) error {
	camErr := c.mountCamera(ctx, nil)
	c.resolveReference(ctx)
	return camErr
}

func (c *VerifyController) resolveReference(ctx context.Context) {

	c.mu.Lock()
	reference := c.reference
	c.mu.Unlock()
	if reference != "" {
		c.logger.Info("reference received as parameter", logging.Image("reference", reference))
		return
	}

	stored, err := c.deps.Store.Get(ctx, store.ReferenceKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.logger.Info("no stored reference")
		return
	case err != nil:
		c.logger.Warn("failed to load stored reference", zap.Error(err))
		return
	}
	c.logger.Info("reference loaded from storage", logging.Image("reference", stored))

	c.mu.Lock()
	if c.reference == "" {
		c.reference = stored
	}
	c.mu.Unlock()
}

// State returns a snapshot of the screen.
func (c *VerifyController) State() VerifyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return VerifyState{
		Camera:             c.cameraView(),
		HasReference:       c.reference != "",
		Preview:            c.preview,
		VerificationFailed: c.failed,
		InFlight:           c.inFlight,
	}
}

// Retry dismisses a mismatch: the failed flag and preview are cleared.
func (c *VerifyController) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = false
	c.preview = ""
}

// SwitchCamera toggles front/back, clears preview and failed flag and drops
// any pending verification without resubmitting.
func (c *VerifyController) SwitchCamera() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.togglePositionLocked()
	c.preview = ""
	c.failed = false
}

// VerifyIdentity captures a live photo and has the face service compare it
// with the reference. A match navigates to Success.
func (c *VerifyController) VerifyIdentity(ctx context.Context) error {
	c.mu.Lock()
	device, ready := c.readyDevice()
	reference := c.reference
	c.mu.Unlock()
	if !ready {
		return ErrCameraNotReady
	}
	if reference == "" {
		c.notify.Notify(noticeNoReference)
		return ErrNoReference
	}

	a, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer c.end(a)

	opLogger := logging.WithOperation(c.logger, "flow.verify_identity", a.id)
	opLogger.Info("verification requested", zap.String("device_id", device.ID))

	frame, err := c.deps.Camera.CaptureFrame(a.ctx, device.ID)
	if c.superseded(a) {
		return ErrStale
	}
	if err != nil {
		opLogger.Warn("capture failed", zap.Error(err))
		c.notify.Notify(errorNotice(err.Error()))
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	c.mu.Lock()
	if c.staleLocked(a) {
		c.mu.Unlock()
		return ErrStale
	}
	c.preview = frame.Preview()
	c.mu.Unlock()
	opLogger.Info("live frame ready", logging.Image("live", frame.Encoded))

	result, err := c.deps.Faces.Compare(a.ctx, a.id, reference, frame.Encoded)
	if c.superseded(a) {
		opLogger.Info("comparison response discarded")
		return ErrStale
	}
	if err != nil {
		c.notify.Notify(errorNotice(logging.Cause(err)))
		return err
	}
	opLogger.Info("comparison result",
		zap.String("status", result.Status),
		zap.Bool("face_detected", result.FaceDetected),
		zap.Bool("match", result.Match),
	)

	c.mu.Lock()
	if c.staleLocked(a) {
		c.mu.Unlock()
		opLogger.Info("comparison response discarded")
		return ErrStale
	}
	switch {
	case !result.Succeeded():
		c.mu.Unlock()
		c.notify.Notify(backendNotice(result.Message))
		return ErrBackendRejected
	case !result.FaceDetected:
		c.preview = ""
		c.mu.Unlock()
		c.notify.Notify(noticeNoFaceLive)
		return ErrNoFace
	case !result.Match:
		c.failed = true
		c.mu.Unlock()
		c.notify.Notify(noticeMismatch)
		return ErrMismatch
	}
	c.mu.Unlock()

	c.notify.Notify(noticeMatch)
	return c.nav.Navigate(a.ctx, ScreenSuccess, Params{})
}
