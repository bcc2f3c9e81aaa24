// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/VA7DBI/authAPI/auth"
	"github.com/VA7DBI/authAPI/metrics"
	"github.com/VA7DBI/authAPI/token"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const principalKey = "authapi.principal"

// Verifier checks a signed token and returns its claims.
type Verifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
	Raw       string
}

// PrincipalFrom returns the principal set by JWTMiddleware, if any.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// JWTMiddleware handles bearer token authentication
type JWTMiddleware struct {
	verifier Verifier
	store    auth.RevocationStore
	log      zerolog.Logger
}

func NewJWTMiddleware(verifier Verifier, store auth.RevocationStore, logger zerolog.Logger) *JWTMiddleware {
	return &JWTMiddleware{
		verifier: verifier,
		store:    store,
		log:      logger.With().Str("component", "jwt_middleware").Logger(),
	}
}

// Handler returns the gin middleware handler function. Every failure after
// the header check produces the same response body.
func (m *JWTMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			metrics.TokenValidations.WithLabelValues("missing").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}

		claims, err := m.verifier.Verify(raw)
		if err != nil {
			m.reject(c, reason(err), err)
			return
		}

		if claims.ID != "" {
			revoked, err := m.store.Exists(c.Request.Context(), claims.ID)
			if err != nil {
				m.reject(c, "store_error", err)
				return
			}
			if revoked {
				m.reject(c, "revoked", nil)
				return
			}
		}

		p := Principal{
			Subject: claims.Subject,
			TokenID: claims.ID,
			Raw:     raw,
		}
		if claims.ExpiresAt != nil {
			p.ExpiresAt = claims.ExpiresAt.Time
		}
		c.Set(principalKey, p)

		metrics.TokenValidations.WithLabelValues("accepted").Inc()
		c.Next()
	}
}

func (m *JWTMiddleware) reject(c *gin.Context, why string, err error) {
	metrics.TokenValidations.WithLabelValues(why).Inc()
	m.log.Debug().Err(err).Str("reason", why).Str("path", c.Request.URL.Path).Msg("token rejected")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
}

func reason(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "expired"
	case errors.Is(err, token.ErrInvalidSignature), errors.Is(err, token.ErrAlgorithmMismatch):
		return "bad_signature"
	case errors.Is(err, token.ErrIssuerMismatch), errors.Is(err, token.ErrAudienceMismatch):
		return "wrong_recipient"
	case errors.Is(err, token.ErrTokenNotYetValid):
		return "not_yet_valid"
	default:
		return "malformed"
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return parts[1]
}
