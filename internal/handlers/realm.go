package handlers

import (
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type RealmHandler struct {
	realmService *services.RealmService
}

func NewRealmHandler(realmService *services.RealmService) *RealmHandler {
	return &RealmHandler{realmService: realmService}
}

// GET /api/realms
func (h *RealmHandler) List(c *gin.Context) {
	realms, err := h.realmService.List(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, realms)
}

// POST /api/realms
func (h *RealmHandler) Create(c *gin.Context) {
	var req services.CreateRealmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	realm, err := h.realmService.Create(c.Request.Context(), actor(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, realm)
}

// PUT /api/realms/:id
func (h *RealmHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateRealmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	realm, err := h.realmService.Update(c.Request.Context(), actor(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, realm)
}

// GET /api/realms/:id/members
func (h *RealmHandler) Members(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	members, err := h.realmService.Members(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, members)
}

type addMemberRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// POST /api/realms/:id/members
func (h *RealmHandler) AddMember(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	member, err := h.realmService.AddMember(c.Request.Context(), actor(c), id, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, member)
}

// DELETE /api/realms/:id
func (h *RealmHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.realmService.Delete(c.Request.Context(), actor(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "realm deleted"})
}
