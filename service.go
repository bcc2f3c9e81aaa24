// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/VA7DBI/authAPI/auth"
	"github.com/VA7DBI/authAPI/metrics"
	"github.com/VA7DBI/authAPI/middleware"
	"github.com/VA7DBI/authAPI/token"
	"github.com/VA7DBI/authAPI/users"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type AuthService struct {
	signer        *token.Signer
	store         auth.RevocationStore
	users         users.Directory
	ttl           time.Duration
	now           func() time.Time
	checkPassword func(password, hash string) bool
	log           zerolog.Logger
}

type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type LogoutResponse struct {
	Detail string `json:"detail"`
}

// UserInfo is the public view of a user; the password hash never leaves the
// service.
type UserInfo struct {
	ID               string  `json:"id"`
	Username         string  `json:"username"`
	Avatar           string  `json:"avatar"`
	IsAdmin          bool    `json:"isAdmin"`
	IsVerified       bool    `json:"isVerified"`
	VerificationType *string `json:"verificationType"`
}

type UserResponse struct {
	User UserInfo `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewAuthService(signer *token.Signer, store auth.RevocationStore, dir users.Directory, ttl time.Duration, logger zerolog.Logger) *AuthService {
	return &AuthService{
		signer: signer,
		store:  store,
		users:  dir,
		ttl:           ttl,
		now:           time.Now,
		checkPassword: users.CheckPassword,
		log:           logger.With().Str("component", "auth_service").Logger(),
	}
}

// @Summary     Log in
// @Description Exchange a username and password for a short-lived bearer token
// @Tags        auth
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       username formData string true "Username"
// @Param       password formData string true "Password"
// @Success     200 {object} TokenResponse
// @Failure     400 {object} ErrorResponse
// @Failure     401 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /auth/login [post]
func (s *AuthService) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		metrics.LoginRequests.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username and password are required"})
		return
	}
	if len(req.Password) > users.MaxPasswordBytes {
		metrics.LoginRequests.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: users.ErrPasswordTooLong.Error()})
		return
	}

	user, err := s.users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		s.handleError(c, "login", "user lookup failed", err)
		return
	}

	// a miss still costs one bcrypt comparison
	hash := users.DummyHash()
	if user != nil && user.PasswordHash != "" {
		hash = user.PasswordHash
	}
	matched := s.checkPassword(req.Password, hash)
	if user == nil || user.PasswordHash == "" || !matched {
		metrics.LoginRequests.WithLabelValues("invalid_credentials").Inc()
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials"})
		return
	}

	resp, err := s.issue(user.ID)
	if err != nil {
		s.handleError(c, "login", "token signing failed", err)
		return
	}

	metrics.LoginRequests.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, resp)
}

// @Summary     Register
// @Description Create an account and return a bearer token for it
// @Tags        auth
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       username formData string true "Username"
// @Param       password formData string true "Password, at most 72 bytes"
// @Success     201 {object} TokenResponse
// @Failure     400 {object} ErrorResponse
// @Failure     409 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /auth/register [post]
func (s *AuthService) RegisterHandler(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		metrics.Registrations.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username and password are required"})
		return
	}

	hash, err := users.HashPassword(req.Password)
	if errors.Is(err, users.ErrPasswordTooLong) {
		metrics.Registrations.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.handleError(c, "register", "password hashing failed", err)
		return
	}

	user, err := s.users.Create(c.Request.Context(), &users.User{
		Username:     req.Username,
		PasswordHash: hash,
	})
	if errors.Is(err, users.ErrUsernameTaken) {
		metrics.Registrations.WithLabelValues("conflict").Inc()
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Username exists"})
		return
	}
	if err != nil {
		s.handleError(c, "register", "user insert failed", err)
		return
	}

	resp, err := s.issue(user.ID)
	if err != nil {
		s.handleError(c, "register", "token signing failed", err)
		return
	}

	metrics.Registrations.WithLabelValues("success").Inc()
	s.log.Info().Str("sub", user.ID).Str("username", user.Username).Msg("user registered")
	c.JSON(http.StatusCreated, resp)
}

func (s *AuthService) issue(subject string) (TokenResponse, error) {
	signed, claims, err := s.signer.Sign(subject, s.ttl)
	if err != nil {
		return TokenResponse{}, err
	}
	s.log.Info().Str("sub", subject).Str("jti", claims.ID).Msg("token issued")
	return TokenResponse{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.ttl / time.Second),
	}, nil
}

// @Summary     Log out
// @Description Revoke the presented token for the rest of its lifetime
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} LogoutResponse
// @Failure     400 {object} ErrorResponse
// @Failure     401 {object} ErrorResponse
// @Router      /auth/logout [post]
func (s *AuthService) LogoutHandler(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok || p.TokenID == "" || p.ExpiresAt.IsZero() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Malformed token"})
		return
	}

	// an already-lapsed token leaves nothing to record
	ttl := p.ExpiresAt.Sub(s.now())
	if ttl > 0 {
		if err := s.store.Add(c.Request.Context(), p.TokenID, ttl); err != nil {
			s.handleError(c, "logout", "revocation failed", err)
			return
		}
	}

	s.log.Info().Str("sub", p.Subject).Str("jti", p.TokenID).Dur("ttl", ttl).Msg("token revoked")
	c.JSON(http.StatusOK, LogoutResponse{Detail: "logged out"})
}

// @Summary     Current user
// @Description Return the user the presented token was issued to
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} UserResponse
// @Failure     400 {object} ErrorResponse
// @Failure     401 {object} ErrorResponse
// @Failure     404 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /auth/user [get]
func (s *AuthService) UserHandler(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok || p.Subject == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing JWT subject"})
		return
	}

	user, err := s.users.GetByID(c.Request.Context(), p.Subject)
	if err != nil {
		s.handleError(c, "user", "user lookup failed", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found"})
		return
	}

	c.JSON(http.StatusOK, UserResponse{User: UserInfo{
		ID:               user.ID,
		Username:         user.Username,
		Avatar:           user.Avatar,
		IsAdmin:          user.IsAdmin,
		IsVerified:       user.IsVerified,
		VerificationType: user.VerificationType,
	}})
}

func (s *AuthService) handleError(c *gin.Context, op, msg string, err error) {
	switch op {
	case "login":
		metrics.LoginRequests.WithLabelValues("error").Inc()
	case "register":
		metrics.Registrations.WithLabelValues("error").Inc()
	}
	s.log.Error().Err(err).Str("op", op).Msg(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
