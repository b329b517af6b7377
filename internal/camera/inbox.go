package camera

import (
	"context"
	"sync"
	"time"
)

// Inbox is a camera fed from outside: a client uploads a frame with Stage and
// the next TakePhoto on that device consumes it.
type Inbox struct {
	mu      sync.Mutex
	devices []Device
	staged  map[string]*Photo
}

// NewInbox returns an inbox exposing a front and a back device.
func NewInbox() *Inbox {
	return &Inbox{
		devices: []Device{
			{ID: string(PositionFront), Position: PositionFront, Name: "Upload (front)"},
			{ID: string(PositionBack), Position: PositionBack, Name: "Upload (back)"},
		},
		staged: make(map[string]*Photo),
	}
}

// Stage queues data as the next photo of deviceID, replacing any unconsumed one.
func (in *Inbox) Stage(deviceID string, data []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.hasDevice(deviceID) {
		return ErrUnknownDevice
	}
	in.staged[deviceID] = &Photo{Data: data, Source: "upload:" + deviceID, TakenAt: time.Now().UTC()}
	return nil
}

// RequestPermission always grants: the uploading client owns the real camera.
func (in *Inbox) RequestPermission(ctx context.Context) (Permission, error) {
	return PermissionGranted, ctx.Err()
}

// Devices returns the virtual devices.
func (in *Inbox) Devices(ctx context.Context) ([]Device, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Device, len(in.devices))
	copy(out, in.devices)
	return out, ctx.Err()
}

// TakePhoto consumes the staged photo of deviceID.
func (in *Inbox) TakePhoto(ctx context.Context, deviceID string) (*Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.hasDevice(deviceID) {
		return nil, ErrUnknownDevice
	}
	photo, ok := in.staged[deviceID]
	if !ok {
		return nil, ErrNoFrame
	}
	delete(in.staged, deviceID)
	return photo, nil
}

func (in *Inbox) hasDevice(id string) bool {
	for _, d := range in.devices {
		if d.ID == id {
			return true
		}
	}
	return false
}
