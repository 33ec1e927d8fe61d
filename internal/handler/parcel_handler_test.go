package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/middleware"
	"github.com/xdmy1/colete/internal/models"
	appErrors "github.com/xdmy1/colete/pkg/errors"
)

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

type fakeParcelSrv struct {
	parcel       *models.Parcel
	parcels      []models.Parcel
	reassignResp *dto.ReassignParcelsResponse
	contacts     *dto.ContactsResponse
	err          error

	lastIntake    dto.CreateParcelRequest
	intakePhoto   []byte
	lastQuery     dto.ListParcelsQuery
	lastDeliverID string
	lastDeliver   dto.DeliverParcelRequest
	lastReassign  dto.ReassignParcelsRequest
	lastReorder   dto.ReorderRequest
}

func (f *fakeParcelSrv) Intake(_ context.Context, _ *models.JWTClaims, req dto.CreateParcelRequest, photo io.Reader) (*models.Parcel, error) {
	f.lastIntake = req
	if photo != nil {
		f.intakePhoto, _ = io.ReadAll(photo)
	}
	return f.parcel, f.err
}

func (f *fakeParcelSrv) List(_ context.Context, _ *models.JWTClaims, query dto.ListParcelsQuery) ([]models.Parcel, error) {
	f.lastQuery = query
	return f.parcels, f.err
}

func (f *fakeParcelSrv) Get(_ context.Context, _ *models.JWTClaims, id string) (*models.Parcel, error) {
	return f.parcel, f.err
}

func (f *fakeParcelSrv) MarkDelivered(_ context.Context, _ *models.JWTClaims, id string, req dto.DeliverParcelRequest) (*models.Parcel, error) {
	f.lastDeliverID = id
	f.lastDeliver = req
	return f.parcel, f.err
}

func (f *fakeParcelSrv) Reassign(_ context.Context, req dto.ReassignParcelsRequest) (*dto.ReassignParcelsResponse, error) {
	f.lastReassign = req
	return f.reassignResp, f.err
}

func (f *fakeParcelSrv) Correct(_ context.Context, id string, req dto.UpdateParcelRequest) (*models.Parcel, error) {
	return f.parcel, f.err
}

func (f *fakeParcelSrv) Reorder(_ context.Context, req dto.ReorderRequest) error {
	f.lastReorder = req
	return f.err
}

func (f *fakeParcelSrv) Delete(_ context.Context, id string) error {
	return f.err
}

func (f *fakeParcelSrv) Contacts(_ context.Context, _ *models.JWTClaims) (*dto.ContactsResponse, error) {
	return f.contacts, f.err
}

func (f *fakeParcelSrv) PhotoToken(_ context.Context, _ *models.JWTClaims, id string) (string, time.Time, error) {
	return "tok123", time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC), f.err
}

func (f *fakeParcelSrv) OpenPhoto(token string) (*os.File, error) {
	return nil, f.err
}

func testContext(t *testing.T, req *http.Request, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func driverTestClaims() *models.JWTClaims {
	return &models.JWTClaims{ProfileID: "driver-1", Role: models.RoleDriver, Username: "vasile"}
}

func multipartParcelRequest(t *testing.T, withPhoto bool) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"origin_code":          "MD",
		"delivery_destination": "UK",
		"sender_name":          "Ana",
		"sender_phone":         "+373600",
		"sender_address":       "Chisinau",
		"receiver_name":        "Ion",
		"receiver_phone":       "+447700",
		"receiver_address":     "London",
		"weight":               "2.5",
	}
	for key, value := range fields {
		assert.NoError(t, writer.WriteField(key, value))
	}
	if withPhoto {
		part, err := writer.CreateFormFile("photo", "parcel.jpg")
		assert.NoError(t, err)
		_, err = part.Write([]byte("jpegbytes"))
		assert.NoError(t, err)
	}
	assert.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/parcels", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestParcelHandlerCreateRequiresAuth(t *testing.T) {
	handler := NewParcelHandler(&fakeParcelSrv{})
	c, rec := testContext(t, multipartParcelRequest(t, false), nil)

	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParcelHandlerCreate(t *testing.T) {
	service := &fakeParcelSrv{parcel: &models.Parcel{ID: "parcel-1", HumanID: "1"}}
	handler := NewParcelHandler(service)
	c, rec := testContext(t, multipartParcelRequest(t, true), driverTestClaims())

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "MD", service.lastIntake.OriginCode)
	assert.Equal(t, "UK", service.lastIntake.DeliveryDestination)
	assert.Equal(t, 2.5, service.lastIntake.Weight)
	assert.Equal(t, []byte("jpegbytes"), service.intakePhoto)

	var envelope responseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Nil(t, envelope.Error)
	assert.Contains(t, string(envelope.Data), `"human_id":"1"`)
}

func TestParcelHandlerCreateInvalidRoute(t *testing.T) {
	service := &fakeParcelSrv{err: appErrors.ErrInvalidRoute}
	handler := NewParcelHandler(service)
	c, rec := testContext(t, multipartParcelRequest(t, false), driverTestClaims())

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_ROUTE", envelope.Error.Code)
}

func TestParcelHandlerList(t *testing.T) {
	service := &fakeParcelSrv{parcels: []models.Parcel{{ID: "parcel-1"}, {ID: "parcel-2"}}}
	handler := NewParcelHandler(service)
	req := httptest.NewRequest(http.MethodGet, "/parcels?week_id=2026-W07&status=pending", nil)
	c, rec := testContext(t, req, driverTestClaims())

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-W07", service.lastQuery.WeekID)
	assert.Equal(t, "pending", service.lastQuery.Status)
}

func TestParcelHandlerDeliver(t *testing.T) {
	service := &fakeParcelSrv{parcel: &models.Parcel{ID: "parcel-1", Status: models.StatusDelivered}}
	handler := NewParcelHandler(service)
	req := httptest.NewRequest(http.MethodPost, "/parcels/parcel-1/deliver",
		strings.NewReader(`{"client_satisfied":false,"delivery_note":"left at door"}`))
	req.Header.Set("Content-Type", "application/json")
	c, rec := testContext(t, req, driverTestClaims())
	c.Params = gin.Params{{Key: "id", Value: "parcel-1"}}

	handler.Deliver(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parcel-1", service.lastDeliverID)
	if assert.NotNil(t, service.lastDeliver.ClientSatisfied) {
		assert.False(t, *service.lastDeliver.ClientSatisfied)
	}
}

func TestParcelHandlerDeliverConflict(t *testing.T) {
	service := &fakeParcelSrv{err: appErrors.ErrAlreadyDelivered}
	handler := NewParcelHandler(service)
	req := httptest.NewRequest(http.MethodPost, "/parcels/parcel-1/deliver",
		strings.NewReader(`{"client_satisfied":true}`))
	req.Header.Set("Content-Type", "application/json")
	c, rec := testContext(t, req, driverTestClaims())
	c.Params = gin.Params{{Key: "id", Value: "parcel-1"}}

	handler.Deliver(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ALREADY_DELIVERED", envelope.Error.Code)
}

func TestParcelHandlerDeliverRejectsMalformedBody(t *testing.T) {
	handler := NewParcelHandler(&fakeParcelSrv{})
	req := httptest.NewRequest(http.MethodPost, "/parcels/parcel-1/deliver", strings.NewReader(`{"client_satisfied":`))
	req.Header.Set("Content-Type", "application/json")
	c, rec := testContext(t, req, driverTestClaims())
	c.Params = gin.Params{{Key: "id", Value: "parcel-1"}}

	handler.Deliver(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParcelHandlerReassign(t *testing.T) {
	service := &fakeParcelSrv{reassignResp: &dto.ReassignParcelsResponse{
		Reassigned: 1,
		Failures:   []dto.ReassignFailure{{ParcelID: "parcel-2", Reason: "archived"}},
	}}
	handler := NewParcelHandler(service)
	req := httptest.NewRequest(http.MethodPost, "/parcels/reassign",
		strings.NewReader(`{"parcel_ids":["parcel-1","parcel-2"],"target_driver_id":"driver-2"}`))
	req.Header.Set("Content-Type", "application/json")
	c, rec := testContext(t, req, nil)

	handler.Reassign(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "driver-2", service.lastReassign.TargetDriverID)
	assert.Contains(t, rec.Body.String(), `"reassigned":1`)
	assert.Contains(t, rec.Body.String(), `"archived"`)
}

func TestParcelHandlerReorder(t *testing.T) {
	service := &fakeParcelSrv{}
	handler := NewParcelHandler(service)
	req := httptest.NewRequest(http.MethodPost, "/parcels/reorder",
		strings.NewReader(`{"driver_id":"driver-1","parcel_ids":["b","a"]}`))
	req.Header.Set("Content-Type", "application/json")
	c, rec := testContext(t, req, nil)

	handler.Reorder(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"b", "a"}, service.lastReorder.ParcelIDs)
}

func TestParcelHandlerContacts(t *testing.T) {
	service := &fakeParcelSrv{contacts: &dto.ContactsResponse{
		Senders:   []models.ContactDetails{{Name: "Zinaida", Phone: "+373100"}},
		Receivers: []models.ContactDetails{{Name: "Ion", Phone: "+447100", Address: "London"}},
	}}
	handler := NewParcelHandler(service)
	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	c, rec := testContext(t, req, driverTestClaims())

	handler.Contacts(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Zinaida"`)
	assert.Contains(t, rec.Body.String(), `"+447100"`)
}

func TestParcelHandlerContactsRequiresAuth(t *testing.T) {
	handler := NewParcelHandler(&fakeParcelSrv{})
	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	c, rec := testContext(t, req, nil)

	handler.Contacts(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParcelHandlerPhotoURL(t *testing.T) {
	handler := NewParcelHandler(&fakeParcelSrv{parcel: &models.Parcel{ID: "parcel-1"}})
	req := httptest.NewRequest(http.MethodGet, "/parcels/parcel-1/photo-url", nil)
	c, rec := testContext(t, req, driverTestClaims())
	c.Params = gin.Params{{Key: "id", Value: "parcel-1"}}

	handler.PhotoURL(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/parcels/photo/tok123")
}
