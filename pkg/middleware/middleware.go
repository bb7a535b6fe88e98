package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/logger"
	"github.com/Rohianon/ptracker/pkg/response"
)

func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := utils.CopyString(c.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)

		return c.Next()
	}
}

func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok {
		return id
	}
	return ""
}

func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Cache-Control", "no-store")
		return c.Next()
	}
}

// Logger writes one line per request. The user id is included once Identity has run.
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if appErr, ok := apperrors.As(err); ok {
			status = appErr.HTTPStatus
		}

		evt := logger.Info()
		if status >= fiber.StatusInternalServerError {
			evt = logger.Warn()
		}
		evt.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("request_id", GetRequestID(c)).
			Str("user_id", GetUserID(c)).
			Msg("request")

		return err
	}
}

type RateLimitConfig struct {
	Max      int
	Duration time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(c *fiber.Ctx) string
}

type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   RateLimitConfig
}

type visitor struct {
	count    int
	lastSeen time.Time
}

// RateLimiter is a fixed-window limiter kept in process memory.
func RateLimiter(config RateLimitConfig) fiber.Handler {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		config:   config,
	}

	go rl.cleanup()

	return func(c *fiber.Ctx) error {
		if !rl.allow(config.KeyFunc(c), time.Now()) {
			return response.Error(c, apperrors.ErrRateLimited.HTTPStatus, apperrors.ErrRateLimited.Code, apperrors.ErrRateLimited.Message)
		}
		return c.Next()
	}
}

func (rl *rateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists || now.Sub(v.lastSeen) > rl.config.Duration {
		rl.visitors[key] = &visitor{count: 1, lastSeen: now}
		return true
	}
	if v.count >= rl.config.Max {
		return false
	}
	v.count++
	v.lastSeen = now
	return true
}

func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.config.Duration*2 {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           int
}

func CORS(config CORSConfig) fiber.Handler {
	allowOrigins := strings.Join(config.AllowOrigins, ",")
	if len(config.AllowOrigins) == 0 {
		allowOrigins = "*"
	}

	allowMethods := strings.Join(config.AllowMethods, ",")
	if len(config.AllowMethods) == 0 {
		allowMethods = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
	}

	allowHeaders := strings.Join(config.AllowHeaders, ",")
	if len(config.AllowHeaders) == 0 {
		allowHeaders = "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-User-ID"
	}

	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", allowOrigins)
		c.Set("Access-Control-Allow-Methods", allowMethods)
		c.Set("Access-Control-Allow-Headers", allowHeaders)

		if config.AllowCredentials {
			c.Set("Access-Control-Allow-Credentials", "true")
		}

		if config.MaxAge > 0 {
			c.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
