package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/example/faceflow/internal/faceservice"
	"github.com/example/faceflow/internal/logging"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Options configures the HTTP face service client.
type Options struct {
	BaseURL     string        `default:"http://192.168.100.41:5000"`
	DetectPath  string        `default:"/validate-face"`
	ComparePath string        `default:"/verify"`
	Timeout     time.Duration `default:"30s"`
}

// Client talks JSON over HTTP to the remote detection and comparison endpoints.
type Client struct {
	opts   Options
	http   *http.Client
	logger *zap.Logger
}

var _ faceservice.Client = (*Client)(nil)

// New returns a ready-to-use client. Zero option fields take their defaults.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("apply client defaults: %w", err)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger.Named("faceclient"),
	}, nil
}

// BaseURL returns the service root the client posts to.
func (c *Client) BaseURL() string {
	return c.opts.BaseURL
}

// Detect submits one image to the detection endpoint.
func (c *Client) Detect(ctx context.Context, attemptID, image string) (*faceservice.DetectResult, error) {
	const op = "faceclient.detect"
	var resp detectResponse
	if err := c.post(ctx, op, attemptID, c.opts.DetectPath, detectRequest{Image: image}, &resp); err != nil {
		return nil, err
	}
	result, err := resp.toResult()
	if err != nil {
		return nil, c.fail(op, attemptID, err)
	}
	return result, nil
}

// Compare submits the reference and live images to the comparison endpoint.
func (c *Client) Compare(ctx context.Context, attemptID, reference, live string) (*faceservice.CompareResult, error) {
	const op = "faceclient.compare"
	var resp compareResponse
	body := compareRequest{Reference: reference, Live: live}
	if err := c.post(ctx, op, attemptID, c.opts.ComparePath, body, &resp); err != nil {
		return nil, err
	}
	result, err := resp.toResult()
	if err != nil {
		return nil, c.fail(op, attemptID, err)
	}
	return result, nil
}

// Ping checks that the service answers HTTP at all. Any status below 500 counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/", nil)
	if err != nil {
		return logging.NewOperationError("faceclient.ping", "", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return logging.NewOperationError("faceclient.ping", "", fmt.Errorf("%w: %v", faceservice.ErrTransport, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= http.StatusInternalServerError {
		return logging.NewOperationError("faceclient.ping", "", fmt.Errorf("%w: status %d", faceservice.ErrTransport, resp.StatusCode))
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, attemptID, path string, payload, out any) error {
	opLogger := logging.WithOperation(c.logger, op, attemptID)

	body, err := json.Marshal(payload)
	if err != nil {
		return c.fail(op, attemptID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return c.fail(op, attemptID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(op, attemptID, fmt.Errorf("%w: %v", faceservice.ErrTransport, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.fail(op, attemptID, fmt.Errorf("%w: read body: %v", faceservice.ErrTransport, err))
	}
	opLogger.Debug("face service responded",
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(op, attemptID, fmt.Errorf("%w: Request failed with status code %d", faceservice.ErrTransport, resp.StatusCode))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.fail(op, attemptID, fmt.Errorf("%w: %v", faceservice.ErrMalformedResponse, err))
	}
	return nil
}

func (c *Client) fail(op, attemptID string, err error) error {
	wrapped := logging.NewOperationError(op, attemptID, err)
	logging.WithOperation(c.logger, op, attemptID).Error("face service call failed", zap.Error(wrapped))
	return wrapped
}
