package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/service"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// TokenHandler exposes the course token ledger endpoints.
type TokenHandler struct {
	service *service.TokenService
}

// NewTokenHandler creates a new handler.
func NewTokenHandler(svc *service.TokenService) *TokenHandler {
	return &TokenHandler{service: svc}
}

// MyTokens godoc
// @Summary List own token ledgers
// @Tags Tokens
// @Produce json
// @Param course_id query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /me/tokens [get]
func (h *TokenHandler) MyTokens(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.listFor(c, claims.UserID)
}

// StudentTokens godoc
// @Summary List a student's token ledgers
// @Tags Tokens
// @Produce json
// @Param id path string true "Student ID"
// @Param course_id query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/tokens [get]
func (h *TokenHandler) StudentTokens(c *gin.Context) {
	h.listFor(c, c.Param("id"))
}

func (h *TokenHandler) listFor(c *gin.Context, accountID string) {
	courseID := c.Query("course_id")
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course_id is required"))
		return
	}
	details, err := h.service.ListForAccount(c.Request.Context(), accountID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Issue godoc
// @Summary Issue course tokens to a student
// @Description Creates empty ledgers for every token in the course; idempotent
// @Tags Tokens
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body map[string]string true "Course payload"
// @Success 204 {object} response.Envelope
// @Router /students/{id}/tokens [post]
func (h *TokenHandler) Issue(c *gin.Context) {
	var payload struct {
		CourseID string `json:"course_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "course_id required"))
		return
	}
	if err := h.service.IssueAll(c.Request.Context(), c.Param("id"), payload.CourseID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Consume godoc
// @Summary Consume one token use
// @Tags Tokens
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param tokenId path string true "Course token ID"
// @Param payload body map[string]string true "Date payload (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/tokens/{tokenId}/uses [post]
func (h *TokenHandler) Consume(c *gin.Context) {
	date, ok := h.bindDate(c)
	if !ok {
		return
	}
	detail, err := h.service.Consume(c.Request.Context(), c.Param("id"), c.Param("tokenId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// UndoConsume godoc
// @Summary Undo the newest token use on a date
// @Tags Tokens
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param tokenId path string true "Course token ID"
// @Param payload body map[string]string true "Date payload (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/tokens/{tokenId}/uses [delete]
func (h *TokenHandler) UndoConsume(c *gin.Context) {
	date, ok := h.bindDate(c)
	if !ok {
		return
	}
	detail, err := h.service.UndoConsume(c.Request.Context(), c.Param("id"), c.Param("tokenId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// SetOverride godoc
// @Summary Raise a student's token limit
// @Tags Tokens
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param tokenId path string true "Course token ID"
// @Param payload body map[string]int true "Override payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/tokens/{tokenId}/override [put]
func (h *TokenHandler) SetOverride(c *gin.Context) {
	var payload struct {
		Amount int `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "amount required"))
		return
	}
	detail, err := h.service.SetOverride(c.Request.Context(), c.Param("id"), c.Param("tokenId"), payload.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ClearOverride godoc
// @Summary Remove a student's token limit override
// @Tags Tokens
// @Produce json
// @Param id path string true "Student ID"
// @Param tokenId path string true "Course token ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/tokens/{tokenId}/override [delete]
func (h *TokenHandler) ClearOverride(c *gin.Context) {
	detail, err := h.service.ClearOverride(c.Request.Context(), c.Param("id"), c.Param("tokenId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

func (h *TokenHandler) bindDate(c *gin.Context) (time.Time, bool) {
	var payload struct {
		Date string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "date required"))
		return time.Time{}, false
	}
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return time.Time{}, false
	}
	return date, true
}
