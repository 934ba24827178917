package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/auth"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/engine"
	"adaptive-trading-bot/internal/risk"
)

// EngineAPI is what the server needs from the trading engine. Everything is
// a read-only snapshot; the API never steers the engine.
type EngineAPI interface {
	Status() map[string]interface{}
	SnapshotPositions() []engine.Position
	SnapshotTrades() []engine.TradeRecord
	LastReport() *engine.Report
}

// StreamStats exposes market stream health, nil when no stream runs.
type StreamStats interface {
	Stats() map[string]interface{}
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	JWTSecret      string
	AdminUser      string
	AdminHash      string // bcrypt
	TokenDuration  time.Duration
}

// Server is the read-only status API for a running session.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        Config
	engine     EngineAPI
	risk       *risk.Manager
	repo       *database.Repository
	stream     StreamStats
	jwt        *auth.JWTManager
	logger     zerolog.Logger
}

// NewServer creates the API server. repo and stream may be nil.
func NewServer(cfg Config, eng EngineAPI, riskMgr *risk.Manager, repo *database.Repository, stream StreamStats, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		cfg:    cfg,
		engine: eng,
		risk:   riskMgr,
		repo:   repo,
		stream: stream,
		jwt:    auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration),
		logger: logger.With().Str("component", "api_server").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/auth/login", s.handleLogin)

	protected := s.router.Group("/api")
	protected.Use(auth.Middleware(s.jwt))
	{
		protected.GET("/status", s.handleStatus)
		protected.GET("/positions", s.handlePositions)
		protected.GET("/trades", s.handleTrades)
		protected.GET("/report", s.handleReport)
		protected.GET("/risk", s.handleRisk)
	}
}

// Start runs the HTTP server until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}
