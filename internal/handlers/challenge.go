package handlers

import (
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
}

func NewChallengeHandler(challengeService *services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challengeService: challengeService}
}

// GET /api/challenges?realm_id=
func (h *ChallengeHandler) List(c *gin.Context) {
	realmID, ok := queryID(c, "realm_id")
	if !ok {
		return
	}
	items, err := h.challengeService.List(c.Request.Context(), actor(c), realmID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, items)
}

// POST /api/challenges
func (h *ChallengeHandler) Create(c *gin.Context) {
	var req services.CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	challenge, err := h.challengeService.Create(c.Request.Context(), actor(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, challenge)
}

// POST /api/challenges/:id/join
func (h *ChallengeHandler) Join(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	member, err := h.challengeService.Join(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, member)
}

// POST /api/challenges/:id/votes
func (h *ChallengeHandler) Vote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	vote, err := h.challengeService.Vote(c.Request.Context(), actor(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, vote)
}

// GET /api/challenges/:id/leaderboard
func (h *ChallengeHandler) Leaderboard(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	board, err := h.challengeService.Leaderboard(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, board)
}

// POST /api/challenges/:id/archive
func (h *ChallengeHandler) Archive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	challenge, err := h.challengeService.Archive(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, challenge)
}
