package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"market-engine/src/helpers"
	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// defaultHistoryWindow is used when a history request carries no start.
const defaultHistoryWindow = 30 * 24 * time.Hour

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

// APIServer is a thin JSON wrapper over the gateway's public contract.
type APIServer struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	Gateway  interfaces.IMarketDataGateway
	Calendar interfaces.ITradingCalendar
	engine   *gin.Engine
	http     *http.Server
	now      func() time.Time
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, gw interfaces.IMarketDataGateway, cal interfaces.ITradingCalendar, logger *logger.Logger) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:   cfg,
		Logger:   logger,
		Gateway:  gw,
		Calendar: cal,
		engine:   gin.New(),
		now:      time.Now,
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	// Add CORS Middleware
	s.engine.Use(cors.New(cors.Config{
		AllowOriginFunc: isLocalOrigin,
		AllowMethods:    []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders:   []string{"Retry-After"},
		MaxAge:          12 * time.Hour,
	}))

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/price/:ticker", s.getPrice)
	api.GET("/history/:ticker", s.getHistory)
	api.GET("/quota", s.getQuota)
	api.GET("/quota/:scope", s.getQuota)
	api.GET("/health", s.getHealth)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start blocks serving until Stop is called.
func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Logger.Info("Starting server on %s", addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getPrice(c *gin.Context) {
	quote, err := s.Gateway.GetCurrentPrice(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHistory(c *gin.Context) {
	end := s.now().UTC()
	if v := c.Query("end"); v != "" {
		t, err := parseWhen(v)
		if err != nil {
			s.writeError(c, helpers.NewValidation("invalid end: %v", err))
			return
		}
		end = t
	}

	start := end.Add(-defaultHistoryWindow)
	if v := c.Query("start"); v != "" {
		t, err := parseWhen(v)
		if err != nil {
			s.writeError(c, helpers.NewValidation("invalid start: %v", err))
			return
		}
		start = t
	}

	interval := models.IntervalDaily
	if v := c.Query("interval"); v != "" {
		iv, err := models.ParseInterval(v)
		if err != nil {
			s.writeError(c, helpers.NewValidation("%v", err))
			return
		}
		interval = iv
	}

	series, err := s.Gateway.GetPriceHistory(c.Request.Context(), c.Param("ticker"), start, end, interval)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getQuota(c *gin.Context) {
	quota, err := s.Gateway.GetRemainingQuota(c.Request.Context(), c.Param("scope"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quota)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	now := s.now()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"name":        s.Config.Name,
		"provider":    s.Config.Provider.Name,
		"market_open": s.Calendar.IsOpenOnMinute(now),
		"time":        now.UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// writeError maps the error taxonomy onto HTTP status codes.
func (s *APIServer) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var (
		validation  *helpers.ValidationError
		unavailable *helpers.UnavailableError
	)
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, helpers.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, helpers.ErrInvalidData):
		status = http.StatusBadGateway
	case errors.As(err, &unavailable):
		status = http.StatusServiceUnavailable
		body["reason"] = unavailable.Reason
		if unavailable.RetryAfter > 0 {
			secs := int(math.Ceil(unavailable.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			body["retry_after_seconds"] = secs
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		s.Logger.Error("Request %s failed: %v", c.Request.URL.Path, err)
	}

	c.AbortWithStatusJSON(status, body)
}

// -----------------------------------------------------------------------------

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status(), time.Since(start))
	}
}

// isLocalOrigin admits browser dashboards served from this machine.
func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:")
}

// parseWhen accepts RFC 3339 instants or bare YYYY-MM-DD dates (UTC).
func parseWhen(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", v)
	}
	return t, nil
}
