package handlers

import (
	"errors"
	"net/http"

	"github.com/DeafHustle/vrs-live-final/internal/api/middleware"
	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/DeafHustle/vrs-live-final/internal/repository"
	"github.com/DeafHustle/vrs-live-final/internal/service"
	"github.com/DeafHustle/vrs-live-final/pkg/logger"
	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	repo    repository.SessionRepository
	matcher *service.MatchingService
}

func NewStatsHandler(repo repository.SessionRepository, matcher *service.MatchingService) *StatsHandler {
	return &StatsHandler{repo: repo, matcher: matcher}
}

// GetStats 누적 세션 통계와 실시간 현황
func (h *StatsHandler) GetStats(c *gin.Context) {
	stats, err := h.repo.Stats(c.Request.Context())
	if err != nil {
		logger.Error("Failed to get session stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats",
		})
		return
	}

	live := h.matcher.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"totalSessions":  stats.TotalSessions,
		"totalMinutes":   stats.TotalMinutes,
		"totalBilled":    stats.TotalBilled,
		"activeSessions": live.ActiveSessions,
		"waiting":        live.Waiting,
		"waitingTotal":   live.WaitingTotal,
	})
}

// GetInterpreterEarnings 통역사 누적 수익. 인증된 경우 본인 것만 조회할 수 있다.
func (h *StatsHandler) GetInterpreterEarnings(c *gin.Context) {
	identity := models.NormalizeIdentity(c.Param("identity"))
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "identity is required",
		})
		return
	}

	if authed, exists := c.Get(middleware.ContextIdentity); exists {
		role, _ := models.ParseRole(c.GetString(middleware.ContextRole))
		if role != models.RoleProvider || !c.GetBool(middleware.ContextVerified) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Verified interpreter token required",
			})
			return
		}
		if authed != identity {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Cannot view another interpreter's earnings",
			})
			return
		}
	}

	earnings, err := h.repo.InterpreterEarnings(c.Request.Context(), identity)
	if err != nil {
		logger.Error("Failed to get interpreter earnings", "identity", identity, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get earnings",
		})
		return
	}

	c.JSON(http.StatusOK, earnings)
}

// GetSession 종료된 세션 기록 조회
func (h *StatsHandler) GetSession(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.repo.Get(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Session not found",
		})
		return
	}
	if err != nil {
		logger.Error("Failed to get session", "session", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get session",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}
