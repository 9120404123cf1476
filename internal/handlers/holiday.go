package handlers

import (
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type HolidayHandler struct {
	holidayService *services.HolidayService
	national       *services.NationalCalendar
}

func NewHolidayHandler(holidayService *services.HolidayService, national *services.NationalCalendar) *HolidayHandler {
	return &HolidayHandler{holidayService: holidayService, national: national}
}

// GET /api/holidays?realm_id=&from=&to=
func (h *HolidayHandler) List(c *gin.Context) {
	realmID, ok := queryID(c, "realm_id")
	if !ok {
		return
	}
	if realmID == 0 {
		response.BadRequest(c, "realm_id is required")
		return
	}
	items, err := h.holidayService.List(actor(c), realmID, c.Query("from"), c.Query("to"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, items)
}

// POST /api/holidays
func (h *HolidayHandler) Create(c *gin.Context) {
	var req services.CreateHolidayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	holiday, err := h.holidayService.Create(actor(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, holiday)
}

// DELETE /api/holidays/:id
func (h *HolidayHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.holidayService.Delete(actor(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "holiday deleted"})
}

// Countries lists the national calendars a realm can follow
// GET /api/holidays/countries
func (h *HolidayHandler) Countries(c *gin.Context) {
	response.Success(c, h.national.SupportedCountries())
}

// National lists a country's public holidays in a date range
// GET /api/holidays/national?country=&from=&to=
func (h *HolidayHandler) National(c *gin.Context) {
	items, err := h.holidayService.PublicHolidays(actor(c), c.Query("country"), c.Query("from"), c.Query("to"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, items)
}
