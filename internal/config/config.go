package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Camera modes.
const (
	CameraUpload    = "upload"
	CameraDirectory = "directory"
)

// Config is the kiosk service configuration, read from the environment.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	FaceAPIURL      string        `envconfig:"FACE_API_URL" default:"http://192.168.100.41:5000"`
	FaceDetectPath  string        `envconfig:"FACE_DETECT_PATH" default:"/validate-face"`
	FaceComparePath string        `envconfig:"FACE_COMPARE_PATH" default:"/verify"`
	FaceAPITimeout  time.Duration `envconfig:"FACE_API_TIMEOUT" default:"30s"`

	StoreBackend  string `envconfig:"STORE_BACKEND" default:"memory"`
	StoreFilePath string `envconfig:"STORE_FILE_PATH" default:"faceflow-store.json"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	DatabaseDSN   string `envconfig:"DATABASE_DSN" default:"host=postgres user=postgres password=postgres dbname=faceflow port=5432 sslmode=disable"`

	CameraMode string `envconfig:"CAMERA_MODE" default:"upload"`
	CameraDir  string `envconfig:"CAMERA_DIR" default:"camera"`

	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWTAudience string `envconfig:"JWT_AUDIENCE"`

	RateLimitPerHour int `envconfig:"RATE_LIMIT_PER_HOUR" default:"600"`
	RateLimitBurst   int `envconfig:"RATE_LIMIT_BURST" default:"10"`

	GRPCHealthAddr      string        `envconfig:"GRPC_HEALTH_ADDR" default:":9090"`
	HealthProbeInterval time.Duration `envconfig:"HEALTH_PROBE_INTERVAL" default:"30s"`

	MaxUploadBytes int64    `envconfig:"MAX_UPLOAD_BYTES" default:"5242880"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

// LoadDotEnv reads the given .env files into the environment. A missing
// file is reported as false, not as an error.
func LoadDotEnv(files ...string) (bool, error) {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load env file: %w", err)
	}
	return true, nil
}

// Load processes the environment into a Config validated for the HTTP API.
func Load() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal is Load for the terminal client, which serves no API and so
// needs no JWT_SECRET.
func LoadLocal() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateModes(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func process() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return cfg, nil
}

// Validate rejects a missing JWT secret, unknown modes and unusable limits.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	return c.validateModes()
}

func (c *Config) validateModes() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreMemory, StoreFile, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	c.CameraMode = strings.ToLower(strings.TrimSpace(c.CameraMode))
	switch c.CameraMode {
	case CameraUpload, CameraDirectory:
	default:
		return fmt.Errorf("unknown CAMERA_MODE %q", c.CameraMode)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.FaceAPITimeout <= 0 {
		return errors.New("FACE_API_TIMEOUT must be positive")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// OriginAllowed reports whether a browser origin may call the API.
// An empty allow-list accepts every origin.
func (c *Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(strings.TrimSpace(o), origin) {
			return true
		}
	}
	return false
}
