package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/service"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// RegistrationHandler exposes booking endpoints.
type RegistrationHandler struct {
	service *service.RegistrationService
	feeds   *service.FeedService
}

// NewRegistrationHandler creates a new handler.
func NewRegistrationHandler(svc *service.RegistrationService, feeds *service.FeedService) *RegistrationHandler {
	return &RegistrationHandler{service: svc, feeds: feeds}
}

// Create godoc
// @Summary Register for an instance
// @Description Books one office hour instance for the authenticated student
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.CreateRegistrationRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	req.AccountID = claims.UserID

	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.invalidateFeed(c, claims.UserID)

	var meta map[string]interface{}
	if result.PausedAdvisory {
		meta = map[string]interface{}{"paused_advisory": true}
	}
	response.JSON(c, http.StatusCreated, result.Registration, nil, meta)
}

// Get godoc
// @Summary Get registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if reg.AccountID != claims.UserID && !claims.Role.IsStaffLike() {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// List godoc
// @Summary List registrations
// @Description Staff see all registrations; students see their own
// @Tags Registrations
// @Produce json
// @Param office_hour_id query string false "Filter by office hour"
// @Param course_id query string false "Filter by course"
// @Param active query bool false "Active registrations only"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.RegistrationFilter{
		OfficeHourID: c.Query("office_hour_id"),
		CourseID:     c.Query("course_id"),
	}
	filter.ActiveOnly, _ = strconv.ParseBool(c.Query("active"))
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if !claims.Role.IsStaffLike() {
		filter.AccountID = claims.UserID
	} else if accountID := c.Query("account_id"); accountID != "" {
		filter.AccountID = accountID
	}

	regs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regs, pagination)
}

// Cancel godoc
// @Summary Cancel registration
// @Description Cancels a booking and refunds any consumed token
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reg, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.invalidateFeed(c, reg.AccountID)
	response.JSON(c, http.StatusOK, reg, nil)
}

// MarkNoShow godoc
// @Summary Record a no-show
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /registrations/{id}/no-show [post]
func (h *RegistrationHandler) MarkNoShow(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reg, err := h.service.MarkNoShow(c.Request.Context(), c.Param("id"), claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

func (h *RegistrationHandler) invalidateFeed(c *gin.Context, accountID string) {
	if h.feeds == nil {
		return
	}
	h.feeds.InvalidateAccount(c.Request.Context(), accountID)
}
