package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/service"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// OfficeHourHandler exposes schedule management endpoints.
type OfficeHourHandler struct {
	service *service.OfficeHourService
}

// NewOfficeHourHandler creates a new handler.
func NewOfficeHourHandler(svc *service.OfficeHourService) *OfficeHourHandler {
	return &OfficeHourHandler{service: svc}
}

// Create godoc
// @Summary Create office hour
// @Description Create a single-shot or recurring office hour
// @Tags OfficeHours
// @Accept json
// @Produce json
// @Param payload body service.CreateOfficeHourRequest true "Office hour payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /office-hours [post]
func (h *OfficeHourHandler) Create(c *gin.Context) {
	var req service.CreateOfficeHourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid office hour payload"))
		return
	}

	oh, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, oh)
}

// Get godoc
// @Summary Get office hour
// @Tags OfficeHours
// @Produce json
// @Param id path string true "Office hour ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /office-hours/{id} [get]
func (h *OfficeHourHandler) Get(c *gin.Context) {
	oh, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, oh, nil)
}

// Instances godoc
// @Summary List office hour instances
// @Description Lists upcoming occurrences within the scheduling horizon
// @Tags OfficeHours
// @Produce json
// @Param id path string true "Office hour ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /office-hours/{id}/instances [get]
func (h *OfficeHourHandler) Instances(c *gin.Context) {
	instances, err := h.service.Instances(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instances, nil)
}

// UpdateLocation godoc
// @Summary Update office hour location
// @Tags OfficeHours
// @Accept json
// @Produce json
// @Param id path string true "Office hour ID"
// @Param payload body map[string]string true "Location payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /office-hours/{id}/location [patch]
func (h *OfficeHourHandler) UpdateLocation(c *gin.Context) {
	var payload struct {
		Location string `json:"location" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "location required"))
		return
	}

	oh, err := h.service.UpdateLocation(c.Request.Context(), c.Param("id"), payload.Location)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, oh, nil)
}

// CancelDate godoc
// @Summary Cancel one scheduled date
// @Description Removes a calendar date from the schedule and notifies registrants
// @Tags OfficeHours
// @Accept json
// @Produce json
// @Param id path string true "Office hour ID"
// @Param payload body map[string]string true "Date payload (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /office-hours/{id}/cancellations [post]
func (h *OfficeHourHandler) CancelDate(c *gin.Context) {
	var payload struct {
		Date string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "date required"))
		return
	}
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}

	oh, err := h.service.CancelDate(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, oh, nil)
}

// AddHost godoc
// @Summary Add host
// @Tags OfficeHours
// @Accept json
// @Produce json
// @Param id path string true "Office hour ID"
// @Param payload body map[string]string true "Host payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /office-hours/{id}/hosts [post]
func (h *OfficeHourHandler) AddHost(c *gin.Context) {
	var payload struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "user_id required"))
		return
	}

	oh, err := h.service.AddHost(c.Request.Context(), c.Param("id"), payload.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, oh, nil)
}

// RemoveHost godoc
// @Summary Remove host
// @Description Removes a host; removing the last host deletes the office hour
// @Tags OfficeHours
// @Produce json
// @Param id path string true "Office hour ID"
// @Param userId path string true "Host user ID"
// @Success 200 {object} response.Envelope
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /office-hours/{id}/hosts/{userId} [delete]
func (h *OfficeHourHandler) RemoveHost(c *gin.Context) {
	oh, err := h.service.RemoveHost(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if oh == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, oh, nil)
}

// ListTimeOptions godoc
// @Summary List time options
// @Tags OfficeHours
// @Produce json
// @Param id path string true "Office hour ID"
// @Success 200 {object} response.Envelope
// @Router /office-hours/{id}/time-options [get]
func (h *OfficeHourHandler) ListTimeOptions(c *gin.Context) {
	options, err := h.service.ListTimeOptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}

// AddTimeOption godoc
// @Summary Add time option
// @Tags OfficeHours
// @Accept json
// @Produce json
// @Param id path string true "Office hour ID"
// @Param payload body service.CreateTimeOptionRequest true "Time option payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /office-hours/{id}/time-options [post]
func (h *OfficeHourHandler) AddTimeOption(c *gin.Context) {
	var req service.CreateTimeOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid time option payload"))
		return
	}

	option, err := h.service.AddTimeOption(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, option)
}

// ListByCourse godoc
// @Summary List course office hours
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/office-hours [get]
func (h *OfficeHourHandler) ListByCourse(c *gin.Context) {
	hours, err := h.service.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hours, nil)
}

// ListMine godoc
// @Summary List hosted office hours
// @Description Lists the office hours the authenticated user hosts
// @Tags OfficeHours
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/office-hours [get]
func (h *OfficeHourHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	hours, err := h.service.ListByHost(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hours, nil)
}

// CourseInstances godoc
// @Summary List course instances
// @Description Lists upcoming occurrences across all of a course's office hours
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/instances [get]
func (h *OfficeHourHandler) CourseInstances(c *gin.Context) {
	instances, err := h.service.CourseInstances(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instances, nil)
}
