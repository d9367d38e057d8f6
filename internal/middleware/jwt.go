package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	contextUserID = "user_id"
	contextHandle = "handle"
)

type JWTConfig struct {
	Secret string
}

type Claims struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for the account that expires after ttl.
func GenerateToken(userID, handle, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates the signature and expiry of tokenStr.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, errors.New("token carries no valid user id")
	}
	return claims, nil
}

// NewJWTAuth rejects requests without a valid "Bearer" token and stores the
// caller's id in the gin context.
func NewJWTAuth(cfg *JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}

		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), cfg.Secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(contextUserID, claims.UserID)
		c.Set(contextHandle, claims.Handle)
		c.Next()
	}
}

// GetUserID returns the authenticated caller, or uuid.Nil outside NewJWTAuth.
func GetUserID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetString(contextUserID))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func GetHandle(c *gin.Context) string {
	return c.GetString(contextHandle)
}

// NewOptionalJWTAuth identifies the caller when a valid token is present and
// lets anonymous requests through.
func NewOptionalJWTAuth(cfg *JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			if claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), cfg.Secret); err == nil {
				c.Set(contextUserID, claims.UserID)
				c.Set(contextHandle, claims.Handle)
			}
		}
		c.Next()
	}
}
