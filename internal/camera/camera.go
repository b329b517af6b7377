package camera

import (
	"context"
	"errors"
	"time"
)

// Position is the physical facing of a capture device.
type Position string

const (
	PositionFront    Position = "front"
	PositionBack     Position = "back"
	PositionExternal Position = "external"
)

// Opposite returns the facing a front/back toggle switches to.
func (p Position) Opposite() Position {
	if p == PositionFront {
		return PositionBack
	}
	return PositionFront
}

// Permission is the camera authorization state.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var (
	// ErrNoFrame means the device produced no photo.
	ErrNoFrame = errors.New("could not capture a photo")
	// ErrUnknownDevice is returned for a device id the capability does not expose.
	ErrUnknownDevice = errors.New("unknown camera device")
	// ErrDecodeFrame means the captured bytes are not a readable image.
	ErrDecodeFrame = errors.New("could not read the captured image")
)

// Device describes one capture device.
type Device struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Name     string   `json:"name,omitempty"`
}

// Photo is the raw output of a capture.
type Photo struct {
	Data    []byte
	Source  string
	TakenAt time.Time
}

// Capability is the device camera as the flow sees it.
type Capability interface {
	RequestPermission(ctx context.Context) (Permission, error)
	Devices(ctx context.Context) ([]Device, error)
	TakePhoto(ctx context.Context, deviceID string) (*Photo, error)
}

// FindPosition returns the first device with the given facing.
func FindPosition(devices []Device, position Position) (Device, bool) {
	for _, d := range devices {
		if d.Position == position {
			return d, true
		}
	}
	return Device{}, false
}
