package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/adrianco/the-goodies/pkg/model"
)

// Claims is the JWT payload minted for a device/user pair and checked
// on every authenticated request.
type Claims struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// IssueToken mints a bearer token for userID/deviceID, signed with
// secret and valid for expiry.
func IssueToken(secret []byte, userID, deviceID string, expiry time.Duration) (string, error) {
	claims := Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// authMiddleware requires a valid Bearer token on every request except
// /health, /metrics and /api/v1/auth/token, and stashes the decoded
// claims in the gin context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/metrics", "/api/v1/auth/token":
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(c, http.StatusUnauthorized, model.ErrorUnauthorized, "missing or malformed Authorization header")
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, model.ErrorUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("device_id", claims.DeviceID)
		c.Next()
	}
}

func writeError(c *gin.Context, status int, kind model.ErrorKind, detail string) {
	c.JSON(status, model.ErrorBody{ErrorKind: kind, Detail: detail})
}

// HashProvisioningSecret bcrypt-hashes the shared secret an operator
// configures for device enrollment, for storage in APIConfig.
func HashProvisioningSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

// tokenRequest is the body of POST /api/v1/auth/token: a device proves
// it holds the deployment's provisioning secret and gets back a JWT
// scoped to the user/device pair it claims.
type tokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

// handleIssueToken checks the caller's secret against the configured
// bcrypt hash and, on success, mints a bearer token. It never requires
// an existing token, since it is how a device gets its first one.
func (s *Server) handleIssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, model.ErrorInternal, "malformed request body: "+err.Error())
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.provisioningHash), []byte(req.Secret)); err != nil {
		writeError(c, http.StatusUnauthorized, model.ErrorUnauthorized, "invalid provisioning secret")
		return
	}

	token, err := IssueToken(s.jwtSecret, req.UserID, req.DeviceID, s.tokenExpiry)
	if err != nil {
		writeError(c, http.StatusInternalServerError, model.ErrorInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(s.tokenExpiry.Seconds())})
}
