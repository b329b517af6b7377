package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/schema"
	"go.uber.org/zap"

	"github.com/example/faceflow/internal/auth"
	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/faceservice"
	"github.com/example/faceflow/internal/flow"
	"github.com/example/faceflow/internal/health"
)

// MaxUploadSize is the default per-image upload limit.
const MaxUploadSize = 5 << 20

// Stager receives uploaded frames for the camera. camera.Inbox satisfies it.
type Stager interface {
	Stage(deviceID string, data []byte) error
}

// HealthReporter exposes the last face service probe.
type HealthReporter interface {
	Status() health.Status
}

// Handler serves the kiosk API over one flow session.
type Handler struct {
	Session *flow.Session
	// Inbox is set in upload camera mode; uploaded images are staged on it.
	Inbox          Stager
	Events         http.HandlerFunc
	Health         HealthReporter
	MaxUploadBytes int64
	Logger         *zap.Logger

	decoder *schema.Decoder
}

type switchForm struct {
	Position string `schema:"position"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. limit guards the
// routes that reach the face service; nil disables it.
func RegisterRoutes(router *gin.Engine, h *Handler, authMiddleware, limit gin.HandlerFunc) {
	if h.MaxUploadBytes <= 0 {
		h.MaxUploadBytes = MaxUploadSize
	}
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	h.decoder = schema.NewDecoder()
	h.decoder.IgnoreUnknownKeys(true)
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	router.GET("/health", h.health)
	if h.Events != nil {
		router.GET("/events", gin.WrapF(h.Events))
	}

	api := router.Group("/", authMiddleware)
	api.GET("/screen", h.screen)
	api.POST("/screens/:name", h.enterScreen)
	api.POST("/reference/capture", limit, h.captureReference)
	api.POST("/verify", limit, h.verify)
	api.POST("/verify/retry", h.retry)
	api.POST("/camera/switch", h.switchCamera)
	api.POST("/success/restart", h.restart)
	api.GET("/diagnostics", h.diagnostics)
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.Health != nil {
		body["face_service"] = h.Health.Status()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) screen(c *gin.Context) {
	c.JSON(http.StatusOK, h.Session.Snapshot(c.Request.Context()))
}

func (h *Handler) enterScreen(c *gin.Context) {
	screen, err := flow.ParseScreen(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if screen != flow.ScreenReference && screen != flow.ScreenDiagnostics {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only Reference and Diagnostics can be entered directly"})
		return
	}
	if h.Session.Route().Screen == screen {
		h.respond(c, nil)
		return
	}
	h.respond(c, h.Session.Navigate(c.Request.Context(), screen, flow.Params{}))
}

func (h *Handler) captureReference(c *gin.Context) {
	ctrl, err := h.Session.Reference()
	if err != nil {
		h.respond(c, err)
		return
	}
	if !h.stageUpload(c, ctrl.State().Camera) {
		return
	}
	h.respond(c, ctrl.CaptureReference(c.Request.Context()))
}

func (h *Handler) verify(c *gin.Context) {
	ctrl, err := h.Session.Verify()
	if err != nil {
		h.respond(c, err)
		return
	}
	if !h.stageUpload(c, ctrl.State().Camera) {
		return
	}
	h.respond(c, ctrl.VerifyIdentity(c.Request.Context()))
}

func (h *Handler) retry(c *gin.Context) {
	ctrl, err := h.Session.Verify()
	if err == nil {
		ctrl.Retry()
	}
	h.respond(c, err)
}

func (h *Handler) switchCamera(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	var form switchForm
	if err := h.decoder.Decode(&form, c.Request.PostForm); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	want := camera.Position(form.Position)
	switch want {
	case "", camera.PositionFront, camera.PositionBack:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "position must be front or back"})
		return
	}
	if want != "" && currentPosition(h.Session.Snapshot(c.Request.Context())) == want {
		h.respond(c, nil)
		return
	}
	h.respond(c, h.Session.SwitchCamera())
}

func (h *Handler) restart(c *gin.Context) {
	p, err := h.Session.Result()
	if err != nil {
		h.respond(c, err)
		return
	}
	h.respond(c, p.Restart(c.Request.Context()))
}

func (h *Handler) diagnostics(c *gin.Context) {
	probe, err := h.Session.Diagnostics()
	if err != nil {
		h.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, probe.Report(c.Request.Context()))
}

// stageUpload validates the multipart image and hands it to the inbox for the
// selected device. It writes the error response and returns false on failure.
func (h *Handler) stageUpload(c *gin.Context, view flow.CameraView) bool {
	if h.Inbox == nil {
		return true
	}
	// Multipart framing needs some room above the image itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return false
	}
	if file.Size > h.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return false
	}
	if _, err := camera.SniffImage(data); err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return false
	}

	if !view.Ready || view.Device == nil {
		h.respond(c, flow.ErrCameraNotReady)
		return false
	}
	if err := h.Inbox.Stage(view.Device.ID, data); err != nil {
		h.respond(c, err)
		return false
	}
	return true
}

// respond writes the snapshot, with the error and its status when err is set.
func (h *Handler) respond(c *gin.Context, err error) {
	snap := h.Session.Snapshot(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, snap)
		return
	}
	status := statusFor(err)
	fields := []zap.Field{zap.Error(err), zap.Int("status", status), zap.String("path", c.FullPath())}
	if operator, ok := auth.Operator(c.Request.Context()); ok {
		fields = append(fields, zap.String("operator", operator))
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", fields...)
	} else {
		h.Logger.Info("request rejected", fields...)
	}
	c.JSON(status, gin.H{"error": err.Error(), "screen": snap})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrBusy), errors.Is(err, flow.ErrStale),
		errors.Is(err, flow.ErrWrongScreen), errors.Is(err, flow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, flow.ErrCameraNotReady), errors.Is(err, flow.ErrNoReference):
		return http.StatusPreconditionFailed
	case errors.Is(err, flow.ErrNoFace), errors.Is(err, flow.ErrMismatch), errors.Is(err, flow.ErrCaptureFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, faceservice.ErrTransport), errors.Is(err, faceservice.ErrMalformedResponse),
		errors.Is(err, flow.ErrBackendRejected):
		return http.StatusBadGateway
	case errors.Is(err, camera.ErrUnknownDevice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func currentPosition(snap flow.Snapshot) camera.Position {
	var view *flow.CameraView
	switch {
	case snap.Reference != nil:
		view = &snap.Reference.Camera
	case snap.Verify != nil:
		view = &snap.Verify.Camera
	}
	if view == nil || view.Device == nil {
		return ""
	}
	return view.Device.Position
}
