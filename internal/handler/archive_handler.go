package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/week"
	"github.com/xdmy1/colete/pkg/response"
)

type archiveSweeper interface {
	Run(ctx context.Context) (int64, time.Time, error)
}

type archivedWeekLister interface {
	ArchivedWeeks(ctx context.Context) ([]string, error)
}

// ArchiveHandler exposes the archive sweep and week endpoints.
type ArchiveHandler struct {
	sweeper archiveSweeper
	parcels archivedWeekLister
}

// NewArchiveHandler creates a new handler.
func NewArchiveHandler(sweeper archiveSweeper, parcels archivedWeekLister) *ArchiveHandler {
	return &ArchiveHandler{sweeper: sweeper, parcels: parcels}
}

// Reset godoc
// @Summary Run the archive sweep now
// @Description Archives every delivered, unarchived parcel. Idempotent.
// @Tags Archive
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/archive/reset [post]
func (h *ArchiveHandler) Reset(c *gin.Context) {
	archived, executedAt, err := h.sweeper.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.ArchiveResetResponse{
		Archived:   archived,
		ExecutedAt: executedAt.Format(time.RFC3339),
	}, nil)
}

// CurrentWeek godoc
// @Summary Get the active week bucket
// @Tags Weeks
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /weeks/current [get]
func (h *ArchiveHandler) CurrentWeek(c *gin.Context) {
	now := time.Now().UTC()
	id := week.CurrentID(now)
	monday, sunday, err := week.DateRange(id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.CurrentWeekResponse{
		WeekID:     id,
		RangeLabel: week.RangeLabel(id),
		Monday:     monday.Format("2006-01-02"),
		Sunday:     sunday.Format("2006-01-02"),
	}, nil)
}

// ArchivedWeeks godoc
// @Summary List archived week buckets
// @Tags Weeks
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /weeks/archived [get]
func (h *ArchiveHandler) ArchivedWeeks(c *gin.Context) {
	weeks, err := h.parcels.ArchivedWeeks(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	type weekView struct {
		WeekID     string `json:"week_id"`
		RangeLabel string `json:"range_label"`
	}
	views := make([]weekView, 0, len(weeks))
	for _, id := range weeks {
		views = append(views, weekView{WeekID: id, RangeLabel: week.RangeLabel(id)})
	}

	response.JSON(c, http.StatusOK, views, nil)
}
