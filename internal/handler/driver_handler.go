package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/models"
	"github.com/xdmy1/colete/internal/service"
	appErrors "github.com/xdmy1/colete/pkg/errors"
	"github.com/xdmy1/colete/pkg/response"
)

// DriverHandler wires HTTP endpoints to the driver service.
type DriverHandler struct {
	service *service.DriverService
}

// NewDriverHandler creates a new handler.
func NewDriverHandler(svc *service.DriverService) *DriverHandler {
	return &DriverHandler{service: svc}
}

type driverView struct {
	models.Profile
	LastSeen string `json:"last_seen,omitempty"`
}

// List godoc
// @Summary List drivers (admin)
// @Tags Drivers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /drivers [get]
func (h *DriverHandler) List(c *gin.Context) {
	drivers, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now().UTC()
	views := make([]driverView, 0, len(drivers))
	for _, d := range drivers {
		views = append(views, driverView{
			Profile:  d,
			LastSeen: service.LastLoginLabel(d.LastLogin, now),
		})
	}

	response.JSON(c, http.StatusOK, views, nil)
}

// Get godoc
// @Summary Get one driver
// @Tags Drivers
// @Produce json
// @Param id path string true "Driver ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /drivers/{id} [get]
func (h *DriverHandler) Get(c *gin.Context) {
	driver, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, driver, nil)
}

// Create godoc
// @Summary Create a driver account
// @Tags Drivers
// @Accept json
// @Produce json
// @Param payload body dto.CreateDriverRequest true "New driver"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /drivers [post]
func (h *DriverHandler) Create(c *gin.Context) {
	var req dto.CreateDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid driver payload"))
		return
	}

	driver, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, driver)
}
