package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirectoryCamera exposes one device per sub-directory of Root. Sub-directories
// named "front" and "back" take that facing, anything else is external.
// A capture returns the most recently modified image in the device directory.
type DirectoryCamera struct {
	Root string
}

// NewDirectoryCamera returns a camera rooted at dir.
func NewDirectoryCamera(dir string) *DirectoryCamera {
	return &DirectoryCamera{Root: dir}
}

// RequestPermission grants access when the root directory is readable.
func (c *DirectoryCamera) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return PermissionDenied, err
	}
	if _, err := os.ReadDir(c.Root); err != nil {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

// Devices lists the device directories in name order.
func (c *DirectoryCamera) Devices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		return nil, fmt.Errorf("list camera devices: %w", err)
	}
	var devices []Device
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		d := Device{ID: entry.Name()}
		switch Position(strings.ToLower(entry.Name())) {
		case PositionFront:
			d.Position = PositionFront
		case PositionBack:
			d.Position = PositionBack
		default:
			d.Position = PositionExternal
			d.Name = entry.Name()
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// TakePhoto reads the newest image file of the device directory.
func (c *DirectoryCamera) TakePhoto(ctx context.Context, deviceID string) (*Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deviceID == "" || strings.ContainsAny(deviceID, `/\`) {
		return nil, ErrUnknownDevice
	}
	dir := filepath.Join(c.Root, deviceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnknownDevice
		}
		return nil, fmt.Errorf("read device %s: %w", deviceID, err)
	}

	type candidate struct {
		path string
		info os.FileInfo
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !isImageName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, entry.Name()), info: info})
	}
	if len(candidates) == 0 {
		return nil, ErrNoFrame
	}
	sort.Slice(candidates, func(i, j int) bool {
		mi, mj := candidates[i].info.ModTime(), candidates[j].info.ModTime()
		if mi.Equal(mj) {
			return candidates[i].path > candidates[j].path
		}
		return mi.After(mj)
	})

	newest := candidates[0]
	data, err := os.ReadFile(newest.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	return &Photo{Data: data, Source: newest.path, TakenAt: newest.info.ModTime().UTC()}, nil
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
