package handlers

import (
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type LeaderboardHandler struct {
	leaderboard *services.LeaderboardService
	digest      *services.LeaderboardDigestService
}

func NewLeaderboardHandler(leaderboard *services.LeaderboardService, digest *services.LeaderboardDigestService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard, digest: digest}
}

// GET /api/leaderboard?commitment_id=&sort=streak|reps
func (h *LeaderboardHandler) Get(c *gin.Context) {
	commitmentID, ok := queryID(c, "commitment_id")
	if !ok {
		return
	}
	entries, err := h.leaderboard.Leaderboard(c.Request.Context(), actor(c), services.LeaderboardQuery{
		CommitmentID: commitmentID,
		Sort:         services.ParseLeaderboardSort(c.Query("sort")),
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, entries)
}

type shareRequest struct {
	CommitmentID uint   `json:"commitment_id" binding:"required"`
	SortBy       string `json:"sort_by"`
}

// Share posts the leaderboard to the notification channels
// POST /api/leaderboard/share
func (h *LeaderboardHandler) Share(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	digest, err := h.digest.Share(c.Request.Context(), actor(c), req.CommitmentID, services.ParseLeaderboardSort(req.SortBy))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"text": digest.Render(), "entries": len(digest.Entries)})
}
