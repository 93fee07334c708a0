package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// ContextUserID is the gin context key holding the authenticated subject
const ContextUserID = "userID"

// ServiceKeyHeader carries the shared key of service-to-service calls
const ServiceKeyHeader = "X-Service-Key"

// JWTAuth creates middleware that accepts HMAC signed access tokens
func JWTAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || headerParts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			return
		}

		subject, err := ValidateToken(headerParts[1], secret)
		if err != nil {
			logger.Debug("Token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, subject)
		c.Next()
	}
}

// ValidateToken checks an access token and returns its subject
func ValidateToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	if tokenType, ok := claims["type"].(string); ok && tokenType != "access" {
		return "", errors.New("invalid token type")
	}

	switch sub := claims["sub"].(type) {
	case string:
		if sub != "" {
			return sub, nil
		}
	case float64:
		return strconv.FormatFloat(sub, 'f', -1, 64), nil
	}
	return "", errors.New("invalid subject in token")
}

// ServiceAuth creates middleware to authenticate service-to-service calls
func ServiceAuth(serviceKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		headerKey := c.GetHeader(ServiceKeyHeader)
		if headerKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Service key required"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(headerKey), []byte(serviceKey)) != 1 {
			logger.Warn("Invalid service key", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid service key"})
			return
		}

		c.Set(ContextUserID, "service")
		c.Next()
	}
}
