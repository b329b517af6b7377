package flow

import "errors"

// Flow outcomes. Transport failures are not listed here: they surface as the
// face client's OperationError wrapping faceservice.ErrTransport or
// faceservice.ErrMalformedResponse.
var (
	ErrCameraNotReady    = errors.New("camera not ready")
	ErrCaptureFailed     = errors.New("capture failed")
	ErrNoFace            = errors.New("no face detected")
	ErrMismatch          = errors.New("face does not match the reference")
	ErrNoReference       = errors.New("no reference image available")
	ErrBackendRejected   = errors.New("face service rejected the request")
	ErrBusy              = errors.New("an attempt is already in flight")
	ErrStale             = errors.New("attempt superseded before its response arrived")
	ErrInvalidTransition = errors.New("invalid screen transition")
	ErrWrongScreen       = errors.New("screen is not active")
)
