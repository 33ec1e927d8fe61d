package dto

import "github.com/xdmy1/colete/internal/models"

// CreateParcelRequest is the multipart intake payload. The photo travels as a
// separate file part; everything else arrives as flat form fields so the
// mobile client can stream the upload in one request.
type CreateParcelRequest struct {
	OriginCode          string  `form:"origin_code" validate:"required,oneof=MD UK BE NL"`
	DeliveryDestination string  `form:"delivery_destination" validate:"required,oneof=MD UK BE NL"`
	SenderName          string  `form:"sender_name" validate:"required"`
	SenderPhone         string  `form:"sender_phone" validate:"required"`
	SenderAddress       string  `form:"sender_address"`
	ReceiverName        string  `form:"receiver_name" validate:"required"`
	ReceiverPhone       string  `form:"receiver_phone" validate:"required"`
	ReceiverAddress     string  `form:"receiver_address" validate:"required"`
	ContentDescription  string  `form:"content_description"`
	Appearance          string  `form:"appearance" validate:"omitempty,oneof=box bag envelope other"`
	Weight              float64 `form:"weight" validate:"required,gt=0"`
	// DriverID lets an admin log a parcel on another driver's route. Driver
	// callers always intake onto their own route regardless of this field.
	DriverID string `form:"driver_id"`
}

// DeliverParcelRequest records the delivery outcome. ClientSatisfied is a
// pointer so an explicit false survives binding.
type DeliverParcelRequest struct {
	ClientSatisfied *bool   `json:"client_satisfied" validate:"required"`
	DeliveryNote    *string `json:"delivery_note"`
}

// ReassignParcelsRequest moves a batch of parcels to another driver.
type ReassignParcelsRequest struct {
	ParcelIDs      []string `json:"parcel_ids" validate:"required,min=1,dive,required"`
	TargetDriverID string   `json:"target_driver_id" validate:"required"`
}

// ReassignFailure reports one parcel that could not be moved.
type ReassignFailure struct {
	ParcelID string `json:"parcel_id"`
	Reason   string `json:"reason"`
}

// ReassignParcelsResponse summarises a batch reassignment. The batch is not
// transactional; failures list the parcels left untouched.
type ReassignParcelsResponse struct {
	Reassigned int               `json:"reassigned"`
	Failures   []ReassignFailure `json:"failures,omitempty"`
}

// UpdateParcelRequest is the admin correction payload. Only present fields
// change; a new weight triggers a price recomputation server-side.
type UpdateParcelRequest struct {
	SenderName         *string  `json:"sender_name"`
	SenderPhone        *string  `json:"sender_phone"`
	SenderAddress      *string  `json:"sender_address"`
	ReceiverName       *string  `json:"receiver_name"`
	ReceiverPhone      *string  `json:"receiver_phone"`
	ReceiverAddress    *string  `json:"receiver_address"`
	ContentDescription *string  `json:"content_description"`
	Weight             *float64 `json:"weight" validate:"omitempty,gt=0"`
}

// ReorderRequest sets the manual route order for a driver's active parcels.
// The list is the full desired order; positions are assigned by index.
type ReorderRequest struct {
	DriverID  string   `json:"driver_id" validate:"required"`
	ParcelIDs []string `json:"parcel_ids" validate:"required,min=1,dive,required"`
}

// ListParcelsQuery captures the list endpoint's query string.
type ListParcelsQuery struct {
	DriverID string `form:"driver_id"`
	WeekID   string `form:"week_id"`
	Status   string `form:"status" validate:"omitempty,oneof=pending delivered"`
	Archived bool   `form:"archived"`
	Limit    int    `form:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset   int    `form:"offset" validate:"omitempty,gte=0"`
}

// Filter converts the query into a repository filter.
func (q ListParcelsQuery) Filter() models.ParcelFilter {
	return models.ParcelFilter{
		DriverID: q.DriverID,
		WeekID:   q.WeekID,
		Status:   models.ParcelStatus(q.Status),
		Archived: q.Archived,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
}

// ContactsResponse lists the contacts recorded on past parcels, split by side
// and deduplicated by phone, for intake autocomplete.
type ContactsResponse struct {
	Senders   []models.ContactDetails `json:"senders"`
	Receivers []models.ContactDetails `json:"receivers"`
}

// CreateDriverRequest provisions a new driver account.
type CreateDriverRequest struct {
	Username   string `json:"username" validate:"required,min=3"`
	Pin        string `json:"pin" validate:"required,min=4,max=12,numeric"`
	FullName   string `json:"full_name" validate:"required"`
	RangeStart int    `json:"range_start" validate:"gte=0"`
	RangeEnd   int    `json:"range_end" validate:"gte=0"`
}

// ExportRequest asks for a weekly manifest export.
type ExportRequest struct {
	WeekID   string `json:"week_id" validate:"required"`
	DriverID string `json:"driver_id"`
	Format   string `json:"format" validate:"required,oneof=csv pdf"`
	Archived bool   `json:"archived"`
}

// ExportJobResponse reports the state of an async export job.
type ExportJobResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Format      string `json:"format"`
	WeekID      string `json:"week_id"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CurrentWeekResponse describes the active week bucket.
type CurrentWeekResponse struct {
	WeekID     string `json:"week_id"`
	RangeLabel string `json:"range_label"`
	Monday     string `json:"monday"`
	Sunday     string `json:"sunday"`
}

// ArchiveResetResponse reports the result of an archive sweep.
type ArchiveResetResponse struct {
	Archived   int64  `json:"archived"`
	ExecutedAt string `json:"executed_at"`
}
