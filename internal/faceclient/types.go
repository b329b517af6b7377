package faceclient

import (
	"fmt"

	"github.com/example/faceflow/internal/faceservice"
)

type detectRequest struct {
	Image string `json:"image"`
}

type compareRequest struct {
	Reference string `json:"reference"`
	Live      string `json:"live"`
}

// Pointer fields let absent keys be told apart from false.
type detectResponse struct {
	Status       *string `json:"status"`
	FaceDetected *bool   `json:"face_detected"`
	Message      string  `json:"message"`
}

type compareResponse struct {
	Status       *string `json:"status"`
	FaceDetected *bool   `json:"face_detected"`
	Match        *bool   `json:"match"`
	Message      string  `json:"message"`
}

func (r *detectResponse) toResult() (*faceservice.DetectResult, error) {
	if r.Status == nil {
		return nil, fmt.Errorf("%w: missing status", faceservice.ErrMalformedResponse)
	}
	result := &faceservice.DetectResult{Status: *r.Status, Message: r.Message}
	if *r.Status != faceservice.StatusSuccess {
		return result, nil
	}
	if r.FaceDetected == nil {
		return nil, fmt.Errorf("%w: missing face_detected", faceservice.ErrMalformedResponse)
	}
	result.FaceDetected = *r.FaceDetected
	return result, nil
}

func (r *compareResponse) toResult() (*faceservice.CompareResult, error) {
	if r.Status == nil {
		return nil, fmt.Errorf("%w: missing status", faceservice.ErrMalformedResponse)
	}
	result := &faceservice.CompareResult{Status: *r.Status, Message: r.Message}
	if *r.Status != faceservice.StatusSuccess {
		return result, nil
	}
	if r.FaceDetected == nil {
		return nil, fmt.Errorf("%w: missing face_detected", faceservice.ErrMalformedResponse)
	}
	result.FaceDetected = *r.FaceDetected
	if !result.FaceDetected {
		return result, nil
	}
	if r.Match == nil {
		return nil, fmt.Errorf("%w: missing match", faceservice.ErrMalformedResponse)
	}
	result.Match = *r.Match
	return result, nil
}
