package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"annotation-xref/internal/models"
	"annotation-xref/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Runner runs one cross-reference
type Runner interface {
	Run(ctx context.Context, req service.Request) (*service.Result, error)
}

// Profiles lists the configured vaults
type Profiles interface {
	ProfileNames() []string
	Resolve(override string) (models.Profile, bool)
}

// Handler handles HTTP requests
type Handler struct {
	runner   Runner
	profiles Profiles
	logger   *zap.Logger

	// runs share one library connection and write tags
	mu sync.Mutex
}

// NewHandler creates a new API handler
func NewHandler(runner Runner, profiles Profiles, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runner:   runner,
		profiles: profiles,
		logger:   logger,
	}
}

// NewRouter builds the gin engine with middleware and routes. Browsers may
// only call the API from allowedOrigins.
func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger), CORS(allowedOrigins))
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/crossref", h.CrossReference)
		api.GET("/profiles", h.ListProfiles)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

// CrossReference runs the selection against one vault and returns the report
func (h *Handler) CrossReference(c *gin.Context) {
	if c.ContentType() != gin.MIMEJSON {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be " + gin.MIMEJSON})
		return
	}

	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.runner.Run(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Cross-reference failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListProfiles returns the configured vault names and the default
func (h *Handler) ListProfiles(c *gin.Context) {
	def, _ := h.profiles.Resolve("")
	c.JSON(http.StatusOK, gin.H{
		"profiles": h.profiles.ProfileNames(),
		"default":  def.Name,
	})
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "annotation-xref",
	})
}

// CORS lets browsers on the allowed origins call the API and rejects
// requests from any other origin. Requests without an Origin header, such
// as curl or scripts, pass through.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if _, ok := allowed[origin]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Add("Vary", "Origin")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
