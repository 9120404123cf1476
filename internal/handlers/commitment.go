package handlers

import (
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type CommitmentHandler struct {
	commitmentService *services.CommitmentService
}

func NewCommitmentHandler(commitmentService *services.CommitmentService) *CommitmentHandler {
	return &CommitmentHandler{commitmentService: commitmentService}
}

// GET /api/commitments?realm_id=
func (h *CommitmentHandler) List(c *gin.Context) {
	realmID, ok := queryID(c, "realm_id")
	if !ok {
		return
	}
	items, err := h.commitmentService.List(c.Request.Context(), actor(c), realmID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, items)
}

// POST /api/commitments
func (h *CommitmentHandler) Create(c *gin.Context) {
	var req services.CreateCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	commitment, err := h.commitmentService.Create(c.Request.Context(), actor(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, commitment)
}

// PUT /api/commitments/:id
func (h *CommitmentHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	commitment, err := h.commitmentService.Update(c.Request.Context(), actor(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, commitment)
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// PATCH /api/commitments/:id/active
func (h *CommitmentHandler) SetActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	commitment, err := h.commitmentService.SetActive(c.Request.Context(), actor(c), id, *req.IsActive)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, commitment)
}

type assignRequest struct {
	CommitmentIDs []uint `json:"commitment_ids"`
}

// Assign replaces the set of commitments assigned to a user
// PUT /api/users/:id/commitments
func (h *CommitmentHandler) Assign(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	assignments, err := h.commitmentService.Assign(c.Request.Context(), actor(c), userID, req.CommitmentIDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, assignments)
}

// DELETE /api/commitments/:id
func (h *CommitmentHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.commitmentService.Delete(c.Request.Context(), actor(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "commitment deleted"})
}
