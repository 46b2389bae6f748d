package handlers

import (
	"net/http"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/DeafHustle/vrs-live-final/internal/service"
	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	matcher *service.MatchingService
}

func NewRoomHandler(matcher *service.MatchingService) *RoomHandler {
	return &RoomHandler{matcher: matcher}
}

// ListRooms 방 목록과 역할별 대기 인원
func (h *RoomHandler) ListRooms(c *gin.Context) {
	snapshot := h.matcher.Snapshot()

	rooms := make([]models.RoomStatus, 0)
	for _, room := range h.matcher.Rooms().List() {
		counts := snapshot.Waiting[room.ID]
		rooms = append(rooms, models.RoomStatus{
			Room:              room,
			WaitingRequesters: counts.Requesters,
			WaitingProviders:  counts.Providers,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
		"total": len(rooms),
	})
}

// GetPricing 분당 요금과 정산 비율
func (h *RoomHandler) GetPricing(c *gin.Context) {
	billing := h.matcher.Billing()
	split := billing.Split()

	c.JSON(http.StatusOK, gin.H{
		"rooms": h.matcher.Rooms().List(),
		"split": gin.H{
			"interpreterPct": split.InterpreterPct,
			"platformPct":    split.PlatformPct,
			"requesterPct":   split.RequesterPct(),
		},
		"minMinutes": billing.MinMinutes(),
	})
}
