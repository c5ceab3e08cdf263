package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceid/internal/api/handlers"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/attendance"
	"github.com/your-org/faceid/internal/auth"
	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/enroll"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

type RouterConfig struct {
	APIKey      string
	Recognition config.RecognitionConfig
	DB          *storage.PostgresStore
	MinIO       *storage.MinIOStore // nil when blob storage isn't configured
	Producer    *queue.Producer     // nil when NATS is not configured
	Hub         *ws.Hub
	Coordinator *enroll.Coordinator
	Throttle    *attendance.Throttle
	// ExtractFn computes a face encoding from image bytes; DetectFn lists
	// face regions. Both stay nil until the vision models are loaded.
	ExtractFn func(imageData []byte) ([]float32, error)
	DetectFn  func(imageData []byte) ([]vision.Region, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket attendance feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Enrollment
	enrollH := handlers.NewEnrollHandler(cfg.DB, cfg.MinIO, cfg.Coordinator)
	v1.POST("/enroll", enrollH.Enroll)
	v1.POST("/captures", enrollH.Capture)
	v1.POST("/uploads", enrollH.Upload)

	// Recognition
	loginH := handlers.NewLoginHandler(cfg.DB, cfg.Producer, cfg.Throttle, cfg.Recognition)
	loginH.ExtractFn = cfg.ExtractFn
	loginH.DetectFn = cfg.DetectFn
	v1.POST("/login", loginH.Login)
	v1.POST("/detect", loginH.Detect)

	// Identities (owner-only past the API key gate)
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.MinIO)
	owned := v1.Group("/identities/:id")
	owned.Use(auth.RequireOwner())
	owned.GET("", identityH.Get)
	owned.PUT("", identityH.Update)
	owned.DELETE("", identityH.Delete)
	owned.POST("/images", enrollH.AttachImage)
	owned.GET("/images", identityH.ListImages)
	owned.GET("/embeddings", identityH.ListEmbeddings)

	// Image delete checks ownership in the handler; the path carries the
	// image id, not the user id.
	v1.DELETE("/images/:id", identityH.DeleteImage)

	return r
}
