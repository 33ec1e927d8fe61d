package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/models"
	appErrors "github.com/xdmy1/colete/pkg/errors"
	"github.com/xdmy1/colete/pkg/response"
)

type parcelManager interface {
	Intake(ctx context.Context, actor *models.JWTClaims, req dto.CreateParcelRequest, photo io.Reader) (*models.Parcel, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.ListParcelsQuery) ([]models.Parcel, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Parcel, error)
	MarkDelivered(ctx context.Context, actor *models.JWTClaims, id string, req dto.DeliverParcelRequest) (*models.Parcel, error)
	Reassign(ctx context.Context, req dto.ReassignParcelsRequest) (*dto.ReassignParcelsResponse, error)
	Correct(ctx context.Context, id string, req dto.UpdateParcelRequest) (*models.Parcel, error)
	Reorder(ctx context.Context, req dto.ReorderRequest) error
	Delete(ctx context.Context, id string) error
	Contacts(ctx context.Context, actor *models.JWTClaims) (*dto.ContactsResponse, error)
	PhotoToken(ctx context.Context, actor *models.JWTClaims, id string) (string, time.Time, error)
	OpenPhoto(token string) (*os.File, error)
}

// ParcelHandler wires HTTP endpoints to the parcel service.
type ParcelHandler struct {
	service parcelManager
}

// NewParcelHandler creates a new handler.
func NewParcelHandler(svc parcelManager) *ParcelHandler {
	return &ParcelHandler{service: svc}
}

// Create godoc
// @Summary Log a parcel
// @Description Log a new parcel on the caller's route; admins may target another driver
// @Tags Parcels
// @Accept mpfd
// @Produce json
// @Param origin_code formData string true "Origin country code"
// @Param delivery_destination formData string true "Delivery country code"
// @Param weight formData number true "Weight in kg"
// @Param photo formData file false "Parcel photo"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /parcels [post]
func (h *ParcelHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateParcelRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid parcel payload"))
		return
	}

	var photo io.Reader
	if file, _, err := c.Request.FormFile("photo"); err == nil {
		defer file.Close() //nolint:errcheck
		photo = file
	}

	parcel, err := h.service.Intake(c.Request.Context(), claims, req, photo)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, parcel)
}

// List godoc
// @Summary List parcels
// @Description List parcels; drivers only see their own
// @Tags Parcels
// @Produce json
// @Param driver_id query string false "Driver filter (admin only)"
// @Param week_id query string false "Week filter"
// @Param status query string false "Status filter"
// @Param archived query bool false "Archived board"
// @Success 200 {object} response.Envelope
// @Router /parcels [get]
func (h *ParcelHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var query dto.ListParcelsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid list query"))
		return
	}

	parcels, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, parcels, nil)
}

// Get godoc
// @Summary Get one parcel
// @Tags Parcels
// @Produce json
// @Param id path string true "Parcel ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /parcels/{id} [get]
func (h *ParcelHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	parcel, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, parcel, nil)
}

// Deliver godoc
// @Summary Mark a parcel delivered
// @Description Record delivery with client feedback; delivered is terminal
// @Tags Parcels
// @Accept json
// @Produce json
// @Param id path string true "Parcel ID"
// @Param payload body dto.DeliverParcelRequest true "Delivery feedback"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /parcels/{id}/deliver [post]
func (h *ParcelHandler) Deliver(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.DeliverParcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid delivery payload"))
		return
	}

	parcel, err := h.service.MarkDelivered(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, parcel, nil)
}

// Reassign godoc
// @Summary Reassign parcels to another driver
// @Description Move a batch of parcels; each moved parcel gets the transfer label
// @Tags Parcels
// @Accept json
// @Produce json
// @Param payload body dto.ReassignParcelsRequest true "Reassignment"
// @Success 200 {object} response.Envelope
// @Router /parcels/reassign [post]
func (h *ParcelHandler) Reassign(c *gin.Context) {
	var req dto.ReassignParcelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reassign payload"))
		return
	}

	result, err := h.service.Reassign(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Correct parcel details
// @Description Admin correction; a weight change recomputes the price
// @Tags Parcels
// @Accept json
// @Produce json
// @Param id path string true "Parcel ID"
// @Param payload body dto.UpdateParcelRequest true "Correction"
// @Success 200 {object} response.Envelope
// @Router /parcels/{id} [patch]
func (h *ParcelHandler) Update(c *gin.Context) {
	var req dto.UpdateParcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid correction payload"))
		return
	}

	parcel, err := h.service.Correct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, parcel, nil)
}

// Reorder godoc
// @Summary Reorder a driver's route
// @Description Store the manual route order for a driver's active parcels
// @Tags Parcels
// @Accept json
// @Produce json
// @Param payload body dto.ReorderRequest true "Desired order"
// @Success 204 {object} response.Envelope
// @Router /parcels/reorder [post]
func (h *ParcelHandler) Reorder(c *gin.Context) {
	var req dto.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reorder payload"))
		return
	}

	if err := h.service.Reorder(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a parcel
// @Tags Parcels
// @Produce json
// @Param id path string true "Parcel ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /parcels/{id} [delete]
func (h *ParcelHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Contacts godoc
// @Summary Known contacts for autocomplete
// @Description Sender and receiver contacts from past parcels, deduplicated by phone
// @Tags Parcels
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /contacts [get]
func (h *ParcelHandler) Contacts(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	contacts, err := h.service.Contacts(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, contacts, nil)
}

// PhotoURL godoc
// @Summary Get a signed photo download URL
// @Tags Parcels
// @Produce json
// @Param id path string true "Parcel ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /parcels/{id}/photo-url [get]
func (h *ParcelHandler) PhotoURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token, expiresAt, err := h.service.PhotoToken(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"url":        fmt.Sprintf("/api/v1/parcels/photo/%s", token),
		"expires_at": expiresAt,
	}, nil)
}

// Photo godoc
// @Summary Download a parcel photo
// @Description Streams the photo referenced by a signed token
// @Tags Parcels
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /parcels/photo/{token} [get]
func (h *ParcelHandler) Photo(c *gin.Context) {
	file, err := h.service.OpenPhoto(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Type", "image/jpeg")
	c.Header("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
