package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Frame is a captured still encoded for transport.
type Frame struct {
	Encoded string
	MIME    string
	TakenAt time.Time
}

// Preview renders the frame as a data URI a client can display directly.
func (f Frame) Preview() string {
	if f.Encoded == "" {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", f.MIME, f.Encoded)
}

// Encoder turns a capability's raw photos into transport-ready frames.
type Encoder struct {
	Capability
}

// NewEncoder wraps a capability.
func NewEncoder(capability Capability) *Encoder {
	return &Encoder{Capability: capability}
}

// CaptureFrame takes one photo on the device and encodes it. Encoding only
// starts once the photo is fully read.
func (e *Encoder) CaptureFrame(ctx context.Context, deviceID string) (Frame, error) {
	photo, err := e.TakePhoto(ctx, deviceID)
	if err != nil {
		return Frame{}, err
	}
	if photo == nil || len(photo.Data) == 0 {
		return Frame{}, ErrNoFrame
	}
	return Encode(photo)
}

// Encode validates the photo as a JPEG or PNG and base64 encodes it.
func Encode(photo *Photo) (Frame, error) {
	if photo == nil || len(photo.Data) == 0 {
		return Frame{}, ErrNoFrame
	}
	mime, err := SniffImage(photo.Data)
	if err != nil {
		return Frame{}, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(photo.Data)); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecodeFrame, err)
	}
	takenAt := photo.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}
	return Frame{
		Encoded: base64.StdEncoding.EncodeToString(photo.Data),
		MIME:    mime,
		TakenAt: takenAt,
	}, nil
}

// SniffImage returns the MIME type of data when it is a supported still image.
func SniffImage(data []byte) (string, error) {
	detected := mimetype.Detect(data)
	switch {
	case detected.Is("image/jpeg"), detected.Is("image/png"):
		return detected.String(), nil
	default:
		return "", fmt.Errorf("%w: unsupported content type %s", ErrDecodeFrame, detected.String())
	}
}
