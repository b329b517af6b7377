package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/faceservice"
	"github.com/example/faceflow/internal/store"
)

var (
	frontCam = camera.Device{ID: "cam-front", Position: camera.PositionFront, Name: "Front"}
	backCam  = camera.Device{ID: "cam-back", Position: camera.PositionBack, Name: "Back"}
)

type stubCamera struct {
	mu              sync.Mutex
	permission      camera.Permission
	permissionErr   error
	devices         []camera.Device
	devicesErr      error
	frames          []camera.Frame
	captureErr      error
	permissionCalls int
	captureDevices  []string
}

func newStubCamera(frames ...string) *stubCamera {
	cam := &stubCamera{
		permission: camera.PermissionGranted,
		devices:    []camera.Device{frontCam, backCam},
	}
	for _, f := range frames {
		cam.frames = append(cam.frames, camera.Frame{Encoded: f, MIME: "image/jpeg"})
	}
	return cam
}

func (s *stubCamera) RequestPermission(ctx context.Context) (camera.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissionCalls++
	return s.permission, s.permissionErr
}

func (s *stubCamera) Devices(ctx context.Context) ([]camera.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.devicesErr != nil {
		return nil, s.devicesErr
	}
	return append([]camera.Device(nil), s.devices...), nil
}

func (s *stubCamera) CaptureFrame(ctx context.Context, deviceID string) (camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureDevices = append(s.captureDevices, deviceID)
	if s.captureErr != nil {
		return camera.Frame{}, s.captureErr
	}
	if len(s.frames) == 0 {
		return camera.Frame{}, camera.ErrNoFrame
	}
	frame := s.frames[0]
	if len(s.frames) > 1 {
		s.frames = s.frames[1:]
	}
	return frame, nil
}

func (s *stubCamera) captures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.captureDevices...)
}

type compareCall struct {
	reference string
	live      string
}

type stubFaces struct {
	mu           sync.Mutex
	detect       *faceservice.DetectResult
	detectErr    error
	compare      *faceservice.CompareResult
	compareErr   error
	detectCalls  []string
	compareCalls []compareCall

	// entered receives once per call when set; release gates the response.
	entered chan struct{}
	release chan struct{}
	// respond runs after the response is ready, before it is returned.
	respond func()
}

func (s *stubFaces) wait(ctx context.Context) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release == nil {
		return nil
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubFaces) Detect(ctx context.Context, attemptID, image string) (*faceservice.DetectResult, error) {
	s.mu.Lock()
	s.detectCalls = append(s.detectCalls, image)
	result, err := s.detect, s.detectErr
	s.mu.Unlock()
	if werr := s.wait(ctx); werr != nil {
		return nil, werr
	}
	return result, err
}

func (s *stubFaces) Compare(ctx context.Context, attemptID, reference, live string) (*faceservice.CompareResult, error) {
	s.mu.Lock()
	s.compareCalls = append(s.compareCalls, compareCall{reference: reference, live: live})
	result, err := s.compare, s.compareErr
	s.mu.Unlock()
	if werr := s.wait(ctx); werr != nil {
		return nil, werr
	}
	if s.respond != nil {
		s.respond()
	}
	return result, err
}

func (s *stubFaces) detects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detectCalls)
}

func (s *stubFaces) compares() []compareCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]compareCall(nil), s.compareCalls...)
}

type stubStore struct {
	*store.MemoryStore
	getErr error
	setErr error

	// setEntered receives once per Set when set; setRelease gates the write.
	setEntered chan struct{}
	setRelease chan struct{}
}

func newStubStore() *stubStore {
	return &stubStore{MemoryStore: store.NewMemoryStore()}
}

func (s *stubStore) Get(ctx context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *stubStore) Set(ctx context.Context, key, value string) error {
	if s.setEntered != nil {
		s.setEntered <- struct{}{}
	}
	if s.setRelease != nil {
		<-s.setRelease
	}
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(ctx, key, value)
}

type stubNavigator struct {
	mu     sync.Mutex
	routes []Route
	err    error
}

func (s *stubNavigator) Navigate(ctx context.Context, to Screen, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, Route{Screen: to, Params: params})
	return s.err
}

func (s *stubNavigator) visited() []Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Route(nil), s.routes...)
}

type stubNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (s *stubNotifier) Notify(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *stubNotifier) last() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return Notice{}, false
	}
	return s.notices[len(s.notices)-1], true
}

func testDeps(cam *stubCamera, faces *stubFaces, kv store.KeyValueStore) Deps {
	return Deps{Camera: cam, Faces: faces, Store: kv, Logger: zap.NewNop()}
}

func waitEntered(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("stub was never called")
	}
}

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("attempt did not finish")
		return nil
	}
}
