package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/config"
	"github.com/example/faceflow/internal/events"
	"github.com/example/faceflow/internal/faceservice"
	"github.com/example/faceflow/internal/flow"
	"github.com/example/faceflow/internal/health"
	"github.com/example/faceflow/internal/store"
)

// blockingFaces holds detection open until released.
type blockingFaces struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingFaces) Detect(ctx context.Context, attemptID, image string) (*faceservice.DetectResult, error) {
	close(b.started)
	<-b.release
	return &faceservice.DetectResult{Status: faceservice.StatusSuccess, FaceDetected: true}, nil
}

func (b *blockingFaces) Compare(ctx context.Context, attemptID, reference, live string) (*faceservice.CompareResult, error) {
	return &faceservice.CompareResult{Status: faceservice.StatusSuccess, FaceDetected: true, Match: true}, nil
}

type staticHealth struct{}

func (staticHealth) Status() health.Status { return health.Status{Serving: true} }

func TestServerGracefulShutdown(t *testing.T) {
	logger := zap.NewNop()

	faces := &blockingFaces{started: make(chan struct{}), release: make(chan struct{})}
	releaseOnce := func() {
		select {
		case <-faces.release:
		default:
			close(faces.release)
		}
	}
	defer releaseOnce()

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		RateLimitPerHour: 0,
		RateLimitBurst:   1,
		MaxUploadBytes:   1 << 20,
	}
	inbox := camera.NewInbox()
	kv := store.NewMemoryStore()
	hub := events.NewHub(logger, nil)
	defer hub.Close()
	session := flow.NewSession(flow.Deps{
		Camera: camera.NewEncoder(inbox),
		Faces:  faces,
		Store:  kv,
		Logger: logger,
	}, hub)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start session: %v", err)
	}
	defer session.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: newHTTPHandler(cfg, session, inbox, hub, staticHealth{}, logger)}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	req := newCaptureRequest(t, "http://"+addr+"/reference/capture", cfg.JWTSecret)
	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-faces.started:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not reach the face service in time")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	releaseOnce()

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}

	if v, err := kv.Get(context.Background(), store.ReferenceKey); err != nil || v == "" {
		t.Fatalf("expected the in-flight capture to be stored, got %q (%v)", v, err)
	}
	if session.Route().Screen != flow.ScreenVerify {
		t.Fatalf("expected Verify after capture, got %s", session.Route().Screen)
	}
}

func newCaptureRequest(t *testing.T, url, secret string) *http.Request {
	t.Helper()

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "frame.png")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(img.Bytes()); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
