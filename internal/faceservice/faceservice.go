package faceservice

import (
	"context"
	"errors"
)

// StatusSuccess is the only status value the service uses for a handled request.
const StatusSuccess = "success"

var (
	// ErrTransport covers network failures and non-2xx responses.
	ErrTransport = errors.New("face service request failed")
	// ErrMalformedResponse is returned when the body is not the expected JSON shape.
	ErrMalformedResponse = errors.New("malformed face service response")
)

// DetectResult is the outcome of a detection call.
type DetectResult struct {
	Status       string
	FaceDetected bool
	Message      string
}

// Accepted reports whether the image can serve as a reference.
func (r *DetectResult) Accepted() bool {
	return r != nil && r.Status == StatusSuccess && r.FaceDetected
}

// CompareResult is the outcome of a comparison call.
type CompareResult struct {
	Status       string
	FaceDetected bool
	Match        bool
	Message      string
}

// Succeeded reports whether the service handled the request.
func (r *CompareResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Client exposes the subset of the remote face service used by the capture flow.
// Images are passed as base64 text.
type Client interface {
	Detect(ctx context.Context, attemptID, image string) (*DetectResult, error)
	Compare(ctx context.Context, attemptID, reference, live string) (*CompareResult, error)
}
