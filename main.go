// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/VA7DBI/authAPI/auth"
	"github.com/VA7DBI/authAPI/config"
	_ "github.com/VA7DBI/authAPI/docs"
	"github.com/VA7DBI/authAPI/logging"
	"github.com/VA7DBI/authAPI/middleware"
	"github.com/VA7DBI/authAPI/token"
	"github.com/VA7DBI/authAPI/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
)

// app holds the wired components and everything that must be released on
// shutdown.
type app struct {
	service    *AuthService
	middleware *middleware.JWTMiddleware
	memory     *auth.MemoryStore
	closers    []io.Closer
	cancel     context.CancelFunc
}

// @title                      DevOnboarder Auth API
// @version                    1.0
// @description                Issues, validates and revokes short-lived JWT bearer tokens.
// @BasePath                   /api
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	gin.SetMode(gin.ReleaseMode)

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize auth service")
	}
	defer a.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           setupRouter(cfg, a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server.ListenAndServe")
		}
	}()

	waitForStopSignal()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server.Shutdown")
	}
	logger.Info().Msg("Server stopped")
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}
	if !signer.CanSign() {
		logger.Warn().Str("alg", signer.Algorithm()).Msg("no private key configured, login will fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.memory = auth.NewMemoryStore()
	go a.memory.Run(ctx, time.Duration(cfg.Auth.Memory.SweepInterval)*time.Second)

	var store auth.RevocationStore = a.memory
	if cfg.Auth.Redis.Enabled {
		if cfg.Auth.Redis.Mock {
			mr, err := miniredis.Run()
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to start in-process redis: %w", err)
			}
			a.closers = append(a.closers, closerFunc(func() error { mr.Close(); return nil }))
			cfg.Auth.Redis.URL = "redis://" + mr.Addr()
			logger.Info().Str("addr", mr.Addr()).Msg("serving revocations from in-process redis")
		}

		rs, err := auth.NewRedisTokenStore(cfg, a.memory, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
		}
		// closed before miniredis so the monitor stops first
		a.closers = append([]io.Closer{rs}, a.closers...)
		store = rs
	}

	var dir users.Directory
	if cfg.Auth.Postgres.Enabled {
		pg, err := users.NewPostgresDirectory(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Postgres directory: %w", err)
		}
		a.closers = append(a.closers, pg)
		dir = pg
	} else {
		demo, err := users.NewDemoDirectory()
		if err != nil {
			a.Close()
			return nil, err
		}
		dir = demo
	}

	ttl := time.Duration(cfg.Auth.JWT.TokenTTL) * time.Second
	a.service = NewAuthService(signer, store, dir, ttl, logger)
	a.middleware = middleware.NewJWTMiddleware(signer, store, logger)
	return a, nil
}

// newSigner picks RS256 when a public key is configured, HS256 otherwise.
func newSigner(cfg *config.Config) (*token.Signer, error) {
	opts := []token.Option{
		token.WithIssuer(cfg.Auth.JWT.Issuer),
		token.WithAudience(cfg.Auth.JWT.Audience),
	}
	if strings.TrimSpace(cfg.Auth.JWT.PublicKey) != "" {
		return token.NewRSASigner([]byte(cfg.Auth.JWT.PublicKey), []byte(cfg.Auth.JWT.PrivateKey), opts...)
	}
	return token.NewHMACSigner([]byte(cfg.Auth.JWT.Secret), opts...)
}

func (a *app) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func setupRouter(cfg *config.Config, a *app, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger(logger), logging.GinRecovery(logger))

	// These endpoints remain public
	r.GET("/healthz", healthCheck)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group(cfg.API.BasePath)
	api.POST("/auth/register", a.service.RegisterHandler)
	api.POST("/auth/login", a.service.LoginHandler)
	api.POST("/auth/logout", a.middleware.Handler(), a.service.LogoutHandler)
	api.GET("/auth/user", a.middleware.Handler(), a.service.UserHandler)

	// Add Prometheus metrics endpoint if enabled
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	return r
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// @Summary     Health check endpoint
// @Description Get API health status
// @Tags        health
// @Produce     json
// @Success     200 {object} HealthResponse
// @Router      /healthz [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
