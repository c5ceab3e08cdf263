package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/api"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/attendance"
	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/enroll"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
	"github.com/your-org/faceid/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting faceid API service", "port", cfg.Server.Port)

	// Connect to Postgres and run migrations
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.Migrate(cfg.Database); err != nil {
		slog.Warn("run migrations", "error", err)
	}

	// MinIO is optional; image endpoints answer storage_not_configured
	// without it.
	var minioStore *storage.MinIOStore
	if cfg.MinIO.Configured() {
		minioStore, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
	} else {
		slog.Warn("blob storage not configured; image persistence disabled")
	}

	// NATS carries accepted logins to the attendance writer. Optional.
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStream(context.Background()); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
	} else {
		slog.Warn("nats not configured; attendance logging disabled")
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Attendance consumer: writes log rows (cooldown re-checked at write
	// time) and broadcasts the accepted entry over WebSocket.
	if producer != nil {
		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create attendance consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		recorder := attendance.NewRecorder(db, cfg.Recognition.AttendanceCooldown)

		err = consumer.ConsumeAttendance(ctx, "api-attendance", func(ctx context.Context, msg jetstream.Msg) error {
			var event models.AttendanceEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				return err
			}

			logged, err := recorder.Record(ctx, &models.AttendanceEntry{
				UserID:   event.UserID,
				Method:   event.Method,
				Distance: event.Distance,
				LoggedAt: event.LoggedAt,
			})
			if err != nil {
				return err
			}
			if !logged {
				return nil
			}

			hub.BroadcastEvent(&dto.WSEvent{
				Type:        "attendance_logged",
				UserID:      event.UserID,
				DisplayName: event.DisplayName,
				Distance:    event.Distance,
				LoggedAt:    event.LoggedAt.Format(time.RFC3339),
			})
			return nil
		})
		if err != nil {
			slog.Warn("start attendance consumer", "error", err)
		}
	}

	// Initialize ONNX Runtime for the enroll/login/detect endpoints
	var extractFn func([]byte) ([]float32, error)
	var detectFn func([]byte) ([]vision.Region, error)

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed; face endpoints will be unavailable", "error", err)
	} else {
		extractor, err := vision.NewExtractor(cfg.Vision)
		if err != nil {
			slog.Warn("vision model init failed; face endpoints will be unavailable", "error", err)
		} else {
			extractFn = extractor.Extract
			detectFn = extractor.DetectFaces
			defer extractor.Close()
			defer ort.DestroyEnvironment()
			slog.Info("vision models ready")
		}
	}

	coordinator := enroll.NewCoordinator(db, blobStore(minioStore), extractOrErr(extractFn))
	throttle := attendance.NewThrottle(db, cfg.Recognition.AttendanceCooldown)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		Recognition: cfg.Recognition,
		DB:          db,
		MinIO:       minioStore,
		Producer:    producer,
		Hub:         hub,
		Coordinator: coordinator,
		Throttle:    throttle,
		ExtractFn:   extractFn,
		DetectFn:    detectFn,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// blobStore adapts the optional MinIO store to the coordinator interface.
// A typed nil pointer must become a true nil interface.
func blobStore(s *storage.MinIOStore) enroll.BlobStore {
	if s == nil {
		return nil
	}
	return s
}

// extractOrErr guards the coordinator against unloaded vision models.
func extractOrErr(fn func([]byte) ([]float32, error)) enroll.ExtractFunc {
	if fn != nil {
		return fn
	}
	return func([]byte) ([]float32, error) {
		return nil, fmt.Errorf("vision models not loaded")
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
