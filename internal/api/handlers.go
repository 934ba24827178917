package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"adaptive-trading-bot/internal/auth"
)

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{"status": "ok"}
	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			health["status"] = "degraded"
			health["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "ok"
	}
	c.JSON(http.StatusOK, health)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	if req.Username != s.cfg.AdminUser || !auth.VerifyPassword(s.cfg.AdminHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.jwt.GenerateToken(req.Username)
	if err != nil {
		s.logger.Error().Err(err).Msg("Token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(s.cfg.TokenDuration.Seconds()),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.engine.Status()
	status["risk"] = s.risk.Snapshot()
	if s.stream != nil {
		status["stream"] = s.stream.Stats()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.engine.SnapshotPositions()})
}

// handleTrades serves the session ledger, or the persistent ledger when a
// database is attached.
func (s *Server) handleTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	if s.repo != nil {
		trades, err := s.repo.RecentTrades(c.Request.Context(), limit)
		if err != nil {
			s.logger.Error().Err(err).Msg("Trade query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trade query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades, "source": "database"})
		return
	}

	trades := s.engine.SnapshotTrades()
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "source": "session"})
}

func (s *Server) handleReport(c *gin.Context) {
	report := s.engine.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet, session still running"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.risk.Snapshot())
}
