package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/response"
)

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// IdentityConfig selects how the caller's user id is established.
// A non-empty JWTSecret requires a bearer token; otherwise the id is
// taken from TrustedHeader, which an upstream gateway is expected to set.
type IdentityConfig struct {
	JWTSecret     string
	TrustedHeader string
}

func Identity(cfg IdentityConfig) fiber.Handler {
	if cfg.JWTSecret != "" {
		return Auth(cfg.JWTSecret)
	}
	header := cfg.TrustedHeader
	if header == "" {
		header = "X-User-ID"
	}
	return func(c *fiber.Ctx) error {
		// header values alias the request buffer, which fiber reuses
		userID := utils.CopyString(strings.TrimSpace(c.Get(header)))
		if userID == "" {
			return unauthorized(c, "missing "+header+" header")
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func Auth(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "missing authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return unauthorized(c, "invalid authorization header format")
		}

		claims, err := ParseToken(jwtSecret, parts[1])
		if err != nil {
			return unauthorized(c, "invalid token")
		}
		if claims.UserID == "" {
			return unauthorized(c, "token carries no user id")
		}

		c.Locals("user_id", claims.UserID)

		return c.Next()
	}
}

// NewToken signs an HS256 token for userID valid for ttl.
func NewToken(jwtSecret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

func ParseToken(jwtSecret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func GetUserID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return id
	}
	return ""
}

func unauthorized(c *fiber.Ctx, detail string) error {
	return response.Error(c, apperrors.ErrUnauthorized.HTTPStatus, apperrors.ErrUnauthorized.Code, apperrors.ErrUnauthorized.Message, detail)
}
