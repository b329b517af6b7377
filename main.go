package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/cors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/faceflow/internal/auth"
	"github.com/example/faceflow/internal/camera"
	"github.com/example/faceflow/internal/config"
	"github.com/example/faceflow/internal/events"
	"github.com/example/faceflow/internal/faceclient"
	"github.com/example/faceflow/internal/flow"
	"github.com/example/faceflow/internal/handlers"
	"github.com/example/faceflow/internal/health"
	"github.com/example/faceflow/internal/logging"
	"github.com/example/faceflow/internal/ratelimit"
	"github.com/example/faceflow/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if loaded, err := config.LoadDotEnv(); err != nil {
		logger.Warn("failed to read .env", zap.Error(err))
	} else if !loaded {
		logger.Info("no .env file, using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	kv, closeStore := openStore(ctx, cfg, logger)

	faces, err := faceclient.New(faceclient.Options{
		BaseURL:     cfg.FaceAPIURL,
		DetectPath:  cfg.FaceDetectPath,
		ComparePath: cfg.FaceComparePath,
		Timeout:     cfg.FaceAPITimeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build face client", zap.Error(err))
	}
	logger.Info("face service configured", zap.String("base_url", faces.BaseURL()))

	var (
		capability camera.Capability
		inbox      *camera.Inbox
	)
	switch cfg.CameraMode {
	case config.CameraDirectory:
		capability = camera.NewDirectoryCamera(cfg.CameraDir)
		logger.Info("directory camera", zap.String("dir", cfg.CameraDir))
	default:
		inbox = camera.NewInbox()
		capability = inbox
	}

	hub := events.NewHub(logger, cfg.OriginAllowed)
	session := flow.NewSession(flow.Deps{
		Camera: camera.NewEncoder(capability),
		Faces:  faces,
		Store:  kv,
		Logger: logger,
	}, hub)
	if err := session.Start(ctx); err != nil {
		logger.Fatal("failed to start session", zap.Error(err))
	}

	monitor := health.NewMonitor(faces, cfg.HealthProbeInterval, logger)
	handler := newHTTPHandler(cfg, session, inbox, hub, monitor, logger)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handler,
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return monitor.Run(gctx) })
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Fatal("failed to listen for gRPC health", zap.Error(err))
		}
		g.Go(func() error { return monitor.Serve(gctx, lis) })
	}
	g.Go(func() error {
		defer stop()
		logger.Info("kiosk API listening", zap.String("addr", server.Addr))
		return serveHTTPServer(server, shutdownTimeout, logger)
	})
	g.Go(func() error {
		// A failed sibling stops the HTTP server too.
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	runErr := g.Wait()
	session.Close()
	hub.Close()
	if err := multierr.Combine(runErr, closeStore()); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newHTTPHandler builds the gin engine behind CORS. inbox is nil outside
// upload camera mode.
func newHTTPHandler(cfg *config.Config, session *flow.Session, inbox *camera.Inbox, hub *events.Hub, monitor handlers.HealthReporter, logger *zap.Logger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	limiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	limit := limiter.Middleware(func(c *gin.Context) string {
		operator, _ := auth.Operator(c.Request.Context())
		return operator
	}, logger)

	h := &handlers.Handler{
		Session:        session,
		Events:         hub.ServeWS,
		Health:         monitor,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger.Named("http"),
	}
	if inbox != nil {
		h.Inbox = inbox
	}
	handlers.RegisterRoutes(r, h, auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience), limit)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

// openStore connects the configured durable slot backend and returns a close
// function for shutdown.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.KeyValueStore, func() error) {
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case config.StoreFile:
		logger.Info("file store", zap.String("path", cfg.StoreFilePath))
		return store.NewFileStore(cfg.StoreFilePath), noop
	case config.StoreRedis:
		redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client := initRedis(redisCtx, cfg.RedisAddr, logger)
		return store.NewRedisStore(client, "faceflow:", logger), client.Close
	case config.StorePostgres:
		db := initDatabase(ctx, cfg.DatabaseDSN, logger)
		pg := store.NewPostgresStore(db, logger)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			logger.Fatal("failed to access db handle", zap.Error(err))
		}
		return pg, sqlDB.Close
	default:
		logger.Warn("memory store: the reference image is lost on restart")
		return store.NewMemoryStore(), noop
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	// Statements carry reference images; only warnings are logged.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
