// Package httpapi exposes the booking engine to the dialogue layer over
// HTTP.
package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bobuk/gcalbook/internal/booking"
)

// ReferenceHeader carries the reference instant when the body has none.
const ReferenceHeader = "X-Reference-Time"

type Options struct {
	// RatePerMinute of zero disables rate limiting.
	RatePerMinute int
	RateBurst     int
	Logger        *zap.Logger
	// Clock is the fallback reference instant source.
	Clock func() time.Time
}

type Server struct {
	engine   *booking.Engine
	logger   *zap.Logger
	clock    func() time.Time
	limiters *limiterStore
}

func New(engine *booking.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{
		engine: engine,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
	if opts.RatePerMinute > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiters = &limiterStore{
			limit:    rate.Every(time.Minute / time.Duration(opts.RatePerMinute)),
			burst:    burst,
			limiters: make(map[string]*rate.Limiter),
		}
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.logRequests())
	if s.limiters != nil {
		r.Use(s.rateLimit())
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/v1")
	{
		api.POST("/appointments", s.createAppointment)
		api.POST("/appointments/move", s.moveAppointment)
		api.POST("/appointments/cancel", s.cancelAppointment)
		api.POST("/tickets/:id/decision", s.decideTicket)
		api.GET("/slots", s.listSlots)
		api.GET("/parse", s.parseExpression)
	}
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", clientIP(c)))
	}
}

type limiterStore struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

// rateLimit keys on the session header when present, so several
// conversations behind one proxy do not starve each other.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-Session-ID"))
		if key == "" {
			key = "ip:" + clientIP(c)
		}
		if !s.limiters.get(key).Allow() {
			s.logger.Warn("rate limit exceeded", zap.String("key", key))
			abortError(c, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later")
			return
		}
		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if ips[0] != "" {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}
	return c.Request.RemoteAddr
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: responseError{Code: code, Message: message}})
}
