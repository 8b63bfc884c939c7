package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/middleware"
	"github.com/noah-isme/office-hours-api/internal/service"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// FeedHandler serves the personal schedule feed.
type FeedHandler struct {
	service *service.FeedService
}

// NewFeedHandler creates a new handler.
func NewFeedHandler(svc *service.FeedService) *FeedHandler {
	return &FeedHandler{service: svc}
}

// Feed godoc
// @Summary Personal schedule feed
// @Description Returns upcoming bookings as JSON, ICS, CSV or PDF
// @Tags Feed
// @Produce json
// @Produce text/calendar
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "Feed format" Enums(json, ics, csv, pdf)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /me/feed [get]
func (h *FeedHandler) Feed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format, err := service.ParseFeedFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	start := time.Now()
	if format == service.FeedFormatJSON {
		entries, err := h.service.Upcoming(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		middleware.SetCacheHit(c, false)
		meta := middleware.ExtractMeta(c)
		if meta == nil {
			meta = map[string]interface{}{}
		}
		meta["processing_time_ms"] = time.Since(start).Milliseconds()
		response.JSON(c, http.StatusOK, entries, nil, meta)
		return
	}

	doc, cacheHit, err := h.service.Render(c.Request.Context(), claims.UserID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}
