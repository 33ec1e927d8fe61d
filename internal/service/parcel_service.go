package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/models"
	"github.com/xdmy1/colete/internal/pricing"
	"github.com/xdmy1/colete/internal/repository"
	"github.com/xdmy1/colete/internal/week"
	appErrors "github.com/xdmy1/colete/pkg/errors"
)

type parcelStore interface {
	Create(ctx context.Context, parcel *models.Parcel) error
	GetByID(ctx context.Context, id string) (*models.Parcel, error)
	List(ctx context.Context, filter models.ParcelFilter) ([]models.Parcel, error)
	NextRouteOrder(ctx context.Context, driverID string) (int, error)
	MarkDelivered(ctx context.Context, id string, satisfied bool, note *string, deliveredAt time.Time) error
	Reassign(ctx context.Context, id, targetDriverID, label string, updatedAt time.Time) error
	UpdateDetails(ctx context.Context, params repository.UpdateParcelParams) error
	SetRouteOrder(ctx context.Context, id string, order int, updatedAt time.Time) error
	ContactPairs(ctx context.Context, driverID string) ([]repository.ContactPair, error)
	ArchivedWeeks(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type sequenceAllocator interface {
	Next(ctx context.Context, driverID, weekID string) (int, error)
}

type parcelDriverStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type parcelCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type photoStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type photoSigner interface {
	Generate(refID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (refID, relPath string, expiresAt time.Time, err error)
}

// ParcelConfig tunes the parcel service.
type ParcelConfig struct {
	RatePerKg     float64
	CacheEnabled  bool
	CacheTTL      time.Duration
	PhotoMaxBytes int64
}

// ParcelService implements the parcel lifecycle: intake, listing, delivery,
// reassignment, correction and manual reordering.
type ParcelService struct {
	parcels   parcelStore
	sequences sequenceAllocator
	drivers   parcelDriverStore
	cache     parcelCache
	photos    photoStore
	signer    photoSigner
	tariff    pricing.Tariff
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    ParcelConfig
	now       func() time.Time
}

// NewParcelService constructs a ParcelService.
func NewParcelService(
	parcels parcelStore,
	sequences sequenceAllocator,
	drivers parcelDriverStore,
	cache parcelCache,
	photos photoStore,
	signer photoSigner,
	validate *validator.Validate,
	logger *zap.Logger,
	config ParcelConfig,
) *ParcelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ParcelService{
		parcels:   parcels,
		sequences: sequences,
		drivers:   drivers,
		cache:     cache,
		photos:    photos,
		signer:    signer,
		tariff:    pricing.NewTariff(config.RatePerKg),
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *ParcelService) WithClock(now func() time.Time) *ParcelService {
	s.now = now
	return s
}

// WithMetrics attaches Prometheus instrumentation.
func (s *ParcelService) WithMetrics(metrics *MetricsService) *ParcelService {
	s.metrics = metrics
	return s
}

// Intake logs a new parcel for a driver. The sequence number, human ID, week
// bucket, price and currency are all derived server-side; the caller supplies
// only the physical facts. The photo reader may be nil.
func (s *ParcelService) Intake(ctx context.Context, actor *models.JWTClaims, req dto.CreateParcelRequest, photo io.Reader) (*models.Parcel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid parcel payload")
	}

	origin := models.DestinationCode(req.OriginCode)
	destination := models.DestinationCode(req.DeliveryDestination)
	if !pricing.IsValidRoute(origin, destination) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRoute,
			fmt.Sprintf("route %s is not serviced", pricing.RouteLabel(origin, destination)))
	}

	driverID := actor.ProfileID
	if req.DriverID != "" && actor.IsAdmin() {
		driverID = req.DriverID
	}
	driver, err := s.drivers.FindByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "driver not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load driver")
	}
	if !driver.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "driver account is inactive")
	}

	now := s.now()
	weekID := week.CurrentID(now)

	numericID, err := s.sequences.Next(ctx, driverID, weekID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAllocation.Code, appErrors.ErrAllocation.Status, "failed to allocate parcel number")
	}
	humanID := pricing.BuildHumanID(destination, numericID)

	routeOrder, err := s.parcels.NextRouteOrder(ctx, driverID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute route position")
	}

	parcel := &models.Parcel{
		HumanID:             humanID,
		NumericID:           numericID,
		DriverID:            driverID,
		WeekID:              weekID,
		OriginCode:          origin,
		DeliveryDestination: destination,
		SenderDetails: models.ContactDetails{
			Name: req.SenderName, Phone: req.SenderPhone, Address: req.SenderAddress,
		},
		ReceiverDetails: models.ContactDetails{
			Name: req.ReceiverName, Phone: req.ReceiverPhone, Address: req.ReceiverAddress,
		},
		Weight:     req.Weight,
		Price:      s.tariff.Price(req.Weight),
		Currency:   pricing.CurrencyFor(origin, destination),
		RouteOrder: routeOrder,
		Status:     models.StatusPending,
	}
	if req.ContentDescription != "" {
		desc := req.ContentDescription
		parcel.ContentDescription = &desc
	}
	if req.Appearance != "" {
		appearance := models.Appearance(req.Appearance)
		parcel.Appearance = &appearance
	}

	if photo != nil {
		photoPath := photoObjectPath(driverID, weekID, humanID)
		reader := photo
		if s.config.PhotoMaxBytes > 0 {
			reader = io.LimitReader(photo, s.config.PhotoMaxBytes)
		}
		if _, err := s.photos.SaveStream(photoPath, reader); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store parcel photo")
		}
		parcel.PhotoURL = &photoPath
	}

	if err := s.parcels.Create(ctx, parcel); err != nil {
		// The sequence number is already consumed; a failed insert leaves a
		// gap, never a duplicate.
		if parcel.PhotoURL != nil {
			if derr := s.photos.Delete(*parcel.PhotoURL); derr != nil {
				s.logger.Warn("failed to remove orphaned photo", zap.Error(derr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store parcel")
	}

	s.invalidateCache(ctx)
	s.metrics.RecordParcelLogged(string(destination))
	s.logger.Info("parcel logged",
		zap.String("parcelId", parcel.ID),
		zap.String("humanId", humanID),
		zap.String("driverId", driverID),
		zap.String("weekId", weekID))
	return parcel, nil
}

// List returns parcels visible to the actor. Drivers only ever see their own
// parcels; admins can filter freely.
func (s *ParcelService) List(ctx context.Context, actor *models.JWTClaims, query dto.ListParcelsQuery) ([]models.Parcel, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid list query")
	}
	if query.WeekID != "" && !week.IsValid(query.WeekID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("malformed week id %q", query.WeekID))
	}

	filter := query.Filter()
	if !actor.IsAdmin() {
		filter.DriverID = actor.ProfileID
	}

	cacheKey := fmt.Sprintf("parcels:list:%s:%s:%s:%t:%d:%d",
		filter.DriverID, filter.WeekID, filter.Status, filter.Archived, filter.Limit, filter.Offset)
	if s.config.CacheEnabled && s.cache != nil {
		var cached []models.Parcel
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	parcels, err := s.parcels.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list parcels")
	}

	if s.config.CacheEnabled && s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, parcels, s.config.CacheTTL); err != nil {
			s.logger.Warn("failed to cache parcel list", zap.Error(err))
		}
	}
	return parcels, nil
}

// Get fetches a single parcel, enforcing driver ownership.
func (s *ParcelService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Parcel, error) {
	parcel, err := s.loadParcel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && parcel.DriverID != actor.ProfileID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "parcel belongs to another driver")
	}
	return parcel, nil
}

// MarkDelivered transitions a pending parcel to delivered with the client's
// feedback. Delivered is terminal.
func (s *ParcelService) MarkDelivered(ctx context.Context, actor *models.JWTClaims, id string, req dto.DeliverParcelRequest) (*models.Parcel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delivery payload")
	}

	parcel, err := s.loadParcel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && parcel.DriverID != actor.ProfileID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "parcel belongs to another driver")
	}
	if parcel.Status == models.StatusDelivered {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDelivered, "")
	}

	now := s.now()
	if err := s.parcels.MarkDelivered(ctx, id, *req.ClientSatisfied, req.DeliveryNote, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a race with a concurrent delivery.
			return nil, appErrors.Clone(appErrors.ErrAlreadyDelivered, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark parcel delivered")
	}

	s.invalidateCache(ctx)
	s.logger.Info("parcel delivered",
		zap.String("parcelId", id),
		zap.Bool("clientSatisfied", *req.ClientSatisfied))
	return s.loadParcel(ctx, id)
}

// Reassign moves a batch of parcels to another driver, appending the transfer
// label to each. The batch is processed per parcel without a wrapping
// transaction; failures are reported, successes stand.
func (s *ParcelService) Reassign(ctx context.Context, req dto.ReassignParcelsRequest) (*dto.ReassignParcelsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reassign payload")
	}

	target, err := s.drivers.FindByID(ctx, req.TargetDriverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target driver not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target driver")
	}
	if !target.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "target driver is inactive")
	}

	result := &dto.ReassignParcelsResponse{}
	now := s.now()
	for _, parcelID := range req.ParcelIDs {
		parcel, err := s.parcels.GetByID(ctx, parcelID)
		if err != nil {
			reason := "lookup failed"
			if errors.Is(err, sql.ErrNoRows) {
				reason = "not found"
			}
			result.Failures = append(result.Failures, dto.ReassignFailure{ParcelID: parcelID, Reason: reason})
			continue
		}
		if parcel.IsArchived {
			result.Failures = append(result.Failures, dto.ReassignFailure{ParcelID: parcelID, Reason: "archived"})
			continue
		}
		if parcel.DriverID == req.TargetDriverID {
			result.Failures = append(result.Failures, dto.ReassignFailure{ParcelID: parcelID, Reason: "already assigned to target driver"})
			continue
		}
		if err := s.parcels.Reassign(ctx, parcelID, req.TargetDriverID, pricing.TransferLabel, now); err != nil {
			result.Failures = append(result.Failures, dto.ReassignFailure{ParcelID: parcelID, Reason: "update failed"})
			s.logger.Warn("parcel reassignment failed", zap.String("parcelId", parcelID), zap.Error(err))
			continue
		}
		result.Reassigned++
	}

	if result.Reassigned > 0 {
		s.invalidateCache(ctx)
	}
	s.metrics.RecordReassignments(result.Reassigned)
	s.logger.Info("parcels reassigned",
		zap.String("targetDriverId", req.TargetDriverID),
		zap.Int("reassigned", result.Reassigned),
		zap.Int("failed", len(result.Failures)))
	return result, nil
}

// Correct applies an admin correction to a parcel's details. A weight change
// recomputes the stored price with the current tariff; human ID, currency and
// week bucket are never touched.
func (s *ParcelService) Correct(ctx context.Context, id string, req dto.UpdateParcelRequest) (*models.Parcel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid correction payload")
	}

	parcel, err := s.loadParcel(ctx, id)
	if err != nil {
		return nil, err
	}

	params := repository.UpdateParcelParams{ID: id}
	if sender := mergeContact(parcel.SenderDetails, req.SenderName, req.SenderPhone, req.SenderAddress); sender != nil {
		params.SenderDetails = sender
	}
	if receiver := mergeContact(parcel.ReceiverDetails, req.ReceiverName, req.ReceiverPhone, req.ReceiverAddress); receiver != nil {
		params.ReceiverDetails = receiver
	}
	if req.ContentDescription != nil {
		params.ContentDescription = req.ContentDescription
	}
	if req.Weight != nil {
		price := s.tariff.Price(*req.Weight)
		params.Weight = req.Weight
		params.Price = &price
	}

	if err := s.parcels.UpdateDetails(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parcel not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update parcel")
	}

	s.invalidateCache(ctx)
	return s.loadParcel(ctx, id)
}

// Reorder stores the manual route order for a driver's active parcels. The
// request carries the full desired order; positions are assigned by index.
func (s *ParcelService) Reorder(ctx context.Context, req dto.ReorderRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reorder payload")
	}

	now := s.now()
	for position, parcelID := range req.ParcelIDs {
		parcel, err := s.parcels.GetByID(ctx, parcelID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("parcel %s not found", parcelID))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parcel")
		}
		if parcel.DriverID != req.DriverID {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("parcel %s belongs to another driver", parcelID))
		}
		if parcel.IsArchived {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("parcel %s is archived", parcelID))
		}
		if err := s.parcels.SetRouteOrder(ctx, parcelID, position, now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store route order")
		}
	}

	s.invalidateCache(ctx)
	return nil
}

// Delete removes a parcel and its stored photo.
func (s *ParcelService) Delete(ctx context.Context, id string) error {
	parcel, err := s.loadParcel(ctx, id)
	if err != nil {
		return err
	}

	if err := s.parcels.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "parcel not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete parcel")
	}

	if parcel.PhotoURL != nil {
		if err := s.photos.Delete(*parcel.PhotoURL); err != nil {
			s.logger.Warn("failed to remove parcel photo", zap.String("parcelId", id), zap.Error(err))
		}
	}

	s.invalidateCache(ctx)
	return nil
}

// PhotoToken issues a signed download token for a parcel's photo.
func (s *ParcelService) PhotoToken(ctx context.Context, actor *models.JWTClaims, id string) (string, time.Time, error) {
	parcel, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if parcel.PhotoURL == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "parcel has no photo")
	}
	token, expiresAt, err := s.signer.Generate(parcel.ID, *parcel.PhotoURL)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign photo URL")
	}
	return token, expiresAt, nil
}

// OpenPhoto validates a signed token and returns the photo file.
func (s *ParcelService) OpenPhoto(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid photo token")
	}
	file, err := s.photos.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}
	return file, nil
}

// Contacts returns the known sender and receiver contacts for intake
// autocomplete, deduplicated by phone number and sorted by name. Drivers only
// see contacts from their own parcels; admins see everything.
func (s *ParcelService) Contacts(ctx context.Context, actor *models.JWTClaims) (*dto.ContactsResponse, error) {
	driverID := ""
	if !actor.IsAdmin() {
		driverID = actor.ProfileID
	}

	pairs, err := s.parcels.ContactPairs(ctx, driverID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contacts")
	}

	senders := make([]models.ContactDetails, 0, len(pairs))
	receivers := make([]models.ContactDetails, 0, len(pairs))
	for _, pair := range pairs {
		senders = append(senders, pair.Sender)
		receivers = append(receivers, pair.Receiver)
	}
	return &dto.ContactsResponse{
		Senders:   dedupeContacts(senders),
		Receivers: dedupeContacts(receivers),
	}, nil
}

// ArchivedWeeks lists the distinct archived week buckets, newest first.
func (s *ParcelService) ArchivedWeeks(ctx context.Context) ([]string, error) {
	weeks, err := s.parcels.ArchivedWeeks(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list archived weeks")
	}
	return weeks, nil
}

func (s *ParcelService) loadParcel(ctx context.Context, id string) (*models.Parcel, error) {
	parcel, err := s.parcels.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parcel not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parcel")
	}
	return parcel, nil
}

func (s *ParcelService) invalidateCache(ctx context.Context) {
	if !s.config.CacheEnabled || s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "parcels:*"); err != nil {
		s.logger.Warn("failed to invalidate parcel cache", zap.Error(err))
	}
}

// dedupeContacts keeps the first occurrence per phone number. The input is
// newest first, so the freshest details for a repeat contact win. Entries
// without a phone cannot be keyed and are skipped.
func dedupeContacts(contacts []models.ContactDetails) []models.ContactDetails {
	seen := make(map[string]struct{}, len(contacts))
	out := make([]models.ContactDetails, 0, len(contacts))
	for _, c := range contacts {
		if c.Phone == "" {
			continue
		}
		if _, ok := seen[c.Phone]; ok {
			continue
		}
		seen[c.Phone] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// mergeContact overlays the provided fields on the stored contact. Returns nil
// when nothing changed so the repository skips the column.
func mergeContact(current models.ContactDetails, name, phone, address *string) *models.ContactDetails {
	if name == nil && phone == nil && address == nil {
		return nil
	}
	merged := current
	if name != nil {
		merged.Name = *name
	}
	if phone != nil {
		merged.Phone = *phone
	}
	if address != nil {
		merged.Address = *address
	}
	return &merged
}

// photoObjectPath builds the storage path for a parcel photo. The human ID is
// sanitised so route prefixes like "OL" stay readable while anything unsafe
// for a filename is replaced.
func photoObjectPath(driverID, weekID, humanID string) string {
	return fmt.Sprintf("%s/%s/%s.jpg", driverID, weekID, sanitizeFilename(humanID))
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
