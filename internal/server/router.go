package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nytm/delulu-fortune/internal/auth"
	"github.com/nytm/delulu-fortune/internal/fortune"
	"github.com/nytm/delulu-fortune/internal/metrics"
	"github.com/nytm/delulu-fortune/internal/session"
)

// degradedMessage hides provider and storage detail from visitors unless
// diagnostics are enabled.
const degradedMessage = "Something went wrong. The universe is recalibrating..."

const fortuneCacheControl = "private, max-age=300"

var (
	errMissingFortuneService = errors.New("fortune service dependency required")
	errMissingAdmin          = errors.New("admin authenticator dependency required")
)

// FortuneService exposes the per-request fortune flows.
type FortuneService interface {
	GetFortune(ctx context.Context, visitor fortune.Visitor) (fortune.View, error)
	TrackShare(ctx context.Context, visitor fortune.Visitor) error
	Stats(ctx context.Context, days int) (fortune.StatsView, error)
}

// AdminAuthenticator gates the stats surface.
type AdminAuthenticator interface {
	CheckKey(key string) error
	IssueToken(key string) (string, int64, error)
	ValidateToken(token string) error
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Fortunes FortuneService
	Admin    AdminAuthenticator
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Location *time.Location
	Clock    func() time.Time
	Debug    bool
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin router serving the fortune API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Fortunes == nil {
		return nil, errMissingFortuneService
	}
	if deps.Admin == nil {
		return nil, errMissingAdmin
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	location := deps.Location
	if location == nil {
		location = time.Local
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}

	handler := &httpHandler{
		fortunes: deps.Fortunes,
		admin:    deps.Admin,
		location: location,
		clock:    clock,
		debug:    deps.Debug,
		logger:   logger,
	}

	router.GET("/api", handler.handleAPI)
	router.POST("/admin/token", handler.handleAdminToken)
	router.GET("/healthz", handler.handleHealth)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return router, nil
}

type httpHandler struct {
	fortunes FortuneService
	admin    AdminAuthenticator
	location *time.Location
	clock    func() time.Time
	debug    bool
	logger   *zap.Logger
}

func (h *httpHandler) handleAPI(c *gin.Context) {
	switch c.DefaultQuery("action", "get") {
	case "get":
		h.handleGetFortune(c)
	case "share":
		h.handleTrackShare(c)
	case "stats":
		h.handleStats(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
	}
}

func (h *httpHandler) visitor(c *gin.Context) fortune.Visitor {
	today := h.clock().In(h.location).Format(fortune.DayFormat)
	userAgent := c.Request.UserAgent()
	return fortune.Visitor{
		Hash:      session.VisitorHash(c.ClientIP(), userAgent, today),
		UserAgent: userAgent,
		Referrer:  c.Request.Referer(),
	}
}

func (h *httpHandler) handleGetFortune(c *gin.Context) {
	view, err := h.fortunes.GetFortune(c.Request.Context(), h.visitor(c))
	if err != nil {
		h.logger.Error("get fortune failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.errorMessage(err)})
		return
	}

	c.Header("Cache-Control", fortuneCacheControl)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"fortune": view.Text,
		"date":    view.Date,
		"slot":    view.Slot,
		"cached":  view.Cached,
		"message": "Your fortune awaits",
	})
}

func (h *httpHandler) handleTrackShare(c *gin.Context) {
	err := h.fortunes.TrackShare(c.Request.Context(), h.visitor(c))
	if errors.Is(err, fortune.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No fortune to track"})
		return
	}
	if err != nil {
		h.logger.Error("track share failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.errorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Share tracked"})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	if !h.statsAuthorized(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := h.fortunes.Stats(c.Request.Context(), 30)
	if err != nil {
		h.logger.Error("stats query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.errorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"totals":  stats.Totals,
		"daily":   stats.Daily,
	})
}

// statsAuthorized accepts debug mode, the shared admin key, or a previously
// issued admin bearer token.
func (h *httpHandler) statsAuthorized(c *gin.Context) bool {
	if h.debug {
		return true
	}
	if key := c.Query("key"); key != "" && h.admin.CheckKey(key) == nil {
		return true
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" && h.admin.ValidateToken(token) == nil {
			return true
		}
	}
	return false
}

type adminTokenRequest struct {
	Key string `json:"key"`
}

func (h *httpHandler) handleAdminToken(c *gin.Context) {
	var request adminTokenRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Key) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.admin.IssueToken(request.Key)
	if errors.Is(err, auth.ErrUnauthorized) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("admin token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.errorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) errorMessage(err error) string {
	if h.debug && err != nil {
		return err.Error()
	}
	return degradedMessage
}
