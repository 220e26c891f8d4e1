package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectIDKey contextKey = "authSubjectID"

// APIKeyHeader carries the caller's API key for service-to-service requests.
const APIKeyHeader = "X-API-Key"

// GetSubjectID retrieves the authenticated subject from context. API-key
// callers carry no subject; they name one per request instead.
func GetSubjectID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(subjectIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// HashAPIKey returns the hex SHA-256 digest of a raw key. Only digests are
// ever configured or stored; the raw key exists just in the request header.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Middleware authenticates requests either by API key digest or by bearer
// JWT. An API key identifies a calling service; a JWT identifies an end
// subject and injects it into the request context.
func Middleware(secret, audience string, apiKeyDigests []string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	audience = strings.TrimSpace(audience)

	return func(c *gin.Context) {
		if key := strings.TrimSpace(c.GetHeader(APIKeyHeader)); key != "" {
			if !digestMatches(HashAPIKey(key), apiKeyDigests) {
				unauthorized(c, "invalid api key")
				return
			}
			c.Next()
			return
		}

		tokenString, err := extractBearerToken(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		if secret == "" {
			secret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
		}
		if secret == "" {
			unauthorized(c, "missing JWT secret")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "invalid token")
			return
		}

		if audience == "" {
			audience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
		}
		if audience != "" && !containsAudience(claims.Audience, audience) {
			unauthorized(c, "invalid audience")
			return
		}

		if claims.Subject == "" {
			unauthorized(c, "missing subject")
			return
		}

		ctx := context.WithValue(c.Request.Context(), subjectIDKey, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(subjectIDKey), claims.Subject)

		c.Next()
	}
}

// digestMatches compares the presented digest against every configured one
// so timing does not reveal which entry matched.
func digestMatches(presented string, digests []string) bool {
	matched := false
	for _, digest := range digests {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(digest)) == 1 {
			matched = true
		}
	}
	return matched
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
