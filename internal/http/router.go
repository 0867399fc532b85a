// Package httpapi builds the rewards HTTP surface: the middleware chain,
// health, metrics and swagger endpoints, and the versioned company, coupon
// and ingestion routes.
//
// The chain runs in this order: tracing, request id, access log, recovery,
// body limits, metrics, gzip, idempotency, rate limiting, CORS and security
// headers. Idempotency comes before the limiter so replays are not charged.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-rewards-backend/docs"
	"github.com/tbourn/go-rewards-backend/internal/config"
	"github.com/tbourn/go-rewards-backend/internal/http/handlers"
	"github.com/tbourn/go-rewards-backend/internal/http/middleware"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/services"
)

const (
	defaultBodyLimit int64 = 1 << 20
	// uploadCost is what one file upload takes from the caller's bucket.
	uploadCost     = 5
	ingestionsPath = "/ingestions"
)

var (
	corsMethods    = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsHeaders    = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposedHeaders = []string{"X-Request-ID", "Content-Length", "Content-Disposition", "ETag", "Idempotency-Replayed"}
)

// RegisterRoutes installs the middleware chain and every endpoint on r.
// Services are built here from db and cfg.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	uploadRoute := strings.TrimRight(cfg.APIBasePath, "/") + ingestionsPath

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(middleware.AccessLogOptions{
			MaskHeaders: []string{"X-API-Key"},
			SkipPaths:   []string{"/health", "/metrics"},
		}),
		middleware.Recovery(),
		limitBodyFor(defaultBodyLimit, cfg.UploadMaxBytes, uploadRoute),
		middleware.Metrics(),
	)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// the upload route streams SSE, which the gzip writer would buffer
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", uploadRoute})))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(db)))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		WithCost(uploadCostFor(uploadRoute)).
		Handler())

	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		EnablePolicy:  true,
		ExposeHeaders: []string{"Content-Disposition", "ETag", "Idempotency-Replayed"},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(
		services.NewCompanyService(db),
		services.NewCouponService(db),
		services.NewIngestionService(db, services.IngestionConfig{
			DefaultMode:      ingest.Mode(cfg.Ingest.DefaultMode),
			MaxAttempts:      cfg.Ingest.MaxAttempts,
			InitialDelay:     cfg.Ingest.InitialBackoff,
			MaxDelay:         cfg.Ingest.MaxBackoff,
			SuggestThreshold: cfg.Ingest.SuggestThreshold,
			IdempotencyTTL:   cfg.IdempotencyTTL,
		}),
	)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.POST("/companies", h.CreateCompany)
	api.GET("/companies", h.ListCompanies)
	api.GET("/companies/:id", h.GetCompany)
	api.PUT("/companies/:id/conversion-factor", h.UpdateConversionFactor)

	api.POST("/coupons", h.CreateCoupon)
	api.GET("/coupons", h.ListCoupons)
	api.GET("/coupons/:code", h.GetCoupon)

	api.POST(ingestionsPath, h.CreateIngestion)
	api.GET(ingestionsPath, h.ListIngestions)
	api.GET(ingestionsPath+"/:id", h.GetIngestion)
	api.GET(ingestionsPath+"/:id/report", h.DownloadReport)
}

func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return rec != nil, err
	}
}

func uploadCostFor(uploadRoute string) func(*gin.Context) int {
	return func(c *gin.Context) int {
		if c.Request.Method == http.MethodPost && c.FullPath() == uploadRoute {
			return uploadCost
		}
		return 1
	}
}

// corsHandlers answers every origin with "*" when origins is empty, and
// otherwise echoes allowlisted origins. The explicit header write covers
// requests without an Origin header, which gin-contrib/cors leaves alone.
func corsHandlers(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsHeaders,
		ExposeHeaders: exposedHeaders,
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		star := func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{star, cors.New(base)}
	}

	base.AllowOrigins = origins
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	echo := func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); allowed[origin] {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		c.Next()
	}
	return []gin.HandlerFunc{echo, cors.New(base)}
}

// limitBodyFor wraps every body in http.MaxBytesReader: maxBytes by default,
// uploadBytes for POSTs to uploadPath.
func limitBodyFor(maxBytes, uploadBytes int64, uploadPath string) gin.HandlerFunc {
	if uploadBytes <= 0 {
		uploadBytes = maxBytes
	}
	return func(c *gin.Context) {
		limit := maxBytes
		if c.Request.Method == http.MethodPost && c.Request.URL.Path == uploadPath {
			limit = uploadBytes
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix treats "" and "/" as the root group.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
