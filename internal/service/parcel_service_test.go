package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/models"
	"github.com/xdmy1/colete/internal/repository"
	appErrors "github.com/xdmy1/colete/pkg/errors"
	"github.com/xdmy1/colete/pkg/storage"
)

type parcelStoreStub struct {
	parcels map[string]*models.Parcel
	order   []string
	nextID  int
}

func newParcelStoreStub() *parcelStoreStub {
	return &parcelStoreStub{parcels: make(map[string]*models.Parcel)}
}

func (s *parcelStoreStub) Create(ctx context.Context, parcel *models.Parcel) error {
	s.nextID++
	if parcel.ID == "" {
		parcel.ID = fmt.Sprintf("parcel-%d", s.nextID)
	}
	if parcel.Status == "" {
		parcel.Status = models.StatusPending
	}
	if parcel.Labels == nil {
		parcel.Labels = []string{}
	}
	copy := *parcel
	s.parcels[parcel.ID] = &copy
	s.order = append(s.order, parcel.ID)
	return nil
}

func (s *parcelStoreStub) GetByID(ctx context.Context, id string) (*models.Parcel, error) {
	parcel, ok := s.parcels[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *parcel
	return &copy, nil
}

func (s *parcelStoreStub) List(ctx context.Context, filter models.ParcelFilter) ([]models.Parcel, error) {
	result := make([]models.Parcel, 0, len(s.parcels))
	for _, p := range s.parcels {
		if p.IsArchived != filter.Archived {
			continue
		}
		if filter.DriverID != "" && p.DriverID != filter.DriverID {
			continue
		}
		if filter.WeekID != "" && p.WeekID != filter.WeekID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RouteOrder < result[j].RouteOrder })
	return result, nil
}

func (s *parcelStoreStub) NextRouteOrder(ctx context.Context, driverID string) (int, error) {
	max := -1
	for _, p := range s.parcels {
		if p.DriverID == driverID && !p.IsArchived && p.RouteOrder > max {
			max = p.RouteOrder
		}
	}
	return max + 1, nil
}

func (s *parcelStoreStub) MarkDelivered(ctx context.Context, id string, satisfied bool, note *string, deliveredAt time.Time) error {
	parcel, ok := s.parcels[id]
	if !ok || parcel.Status != models.StatusPending {
		return sql.ErrNoRows
	}
	parcel.Status = models.StatusDelivered
	parcel.ClientSatisfied = &satisfied
	parcel.DeliveryNote = note
	parcel.DeliveredAt = &deliveredAt
	return nil
}

func (s *parcelStoreStub) Reassign(ctx context.Context, id, targetDriverID, label string, updatedAt time.Time) error {
	parcel, ok := s.parcels[id]
	if !ok {
		return sql.ErrNoRows
	}
	parcel.DriverID = targetDriverID
	if !parcel.HasLabel(label) {
		parcel.Labels = append(parcel.Labels, label)
	}
	return nil
}

func (s *parcelStoreStub) UpdateDetails(ctx context.Context, params repository.UpdateParcelParams) error {
	parcel, ok := s.parcels[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if params.SenderDetails != nil {
		parcel.SenderDetails = *params.SenderDetails
	}
	if params.ReceiverDetails != nil {
		parcel.ReceiverDetails = *params.ReceiverDetails
	}
	if params.ContentDescription != nil {
		parcel.ContentDescription = params.ContentDescription
	}
	if params.Weight != nil {
		parcel.Weight = *params.Weight
		parcel.Price = *params.Price
	}
	return nil
}

func (s *parcelStoreStub) SetRouteOrder(ctx context.Context, id string, order int, updatedAt time.Time) error {
	parcel, ok := s.parcels[id]
	if !ok {
		return sql.ErrNoRows
	}
	parcel.RouteOrder = order
	return nil
}

func (s *parcelStoreStub) ContactPairs(ctx context.Context, driverID string) ([]repository.ContactPair, error) {
	pairs := make([]repository.ContactPair, 0, len(s.order))
	// Newest first, like the SQL ordering.
	for i := len(s.order) - 1; i >= 0; i-- {
		parcel, ok := s.parcels[s.order[i]]
		if !ok {
			continue
		}
		if driverID != "" && parcel.DriverID != driverID {
			continue
		}
		pairs = append(pairs, repository.ContactPair{
			Sender:   parcel.SenderDetails,
			Receiver: parcel.ReceiverDetails,
		})
	}
	return pairs, nil
}

func (s *parcelStoreStub) ArchivedWeeks(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	for _, p := range s.parcels {
		if p.IsArchived {
			seen[p.WeekID] = true
		}
	}
	weeks := make([]string, 0, len(seen))
	for id := range seen {
		weeks = append(weeks, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(weeks)))
	return weeks, nil
}

func (s *parcelStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.parcels[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.parcels, id)
	return nil
}

type sequenceStub struct {
	counters map[string]int
}

func newSequenceStub() *sequenceStub {
	return &sequenceStub{counters: make(map[string]int)}
}

func (s *sequenceStub) Next(ctx context.Context, driverID, weekID string) (int, error) {
	key := driverID + "/" + weekID
	s.counters[key]++
	return s.counters[key], nil
}

type driverStoreStub struct {
	drivers map[string]*models.Profile
}

func newDriverStoreStub(ids ...string) *driverStoreStub {
	stub := &driverStoreStub{drivers: make(map[string]*models.Profile)}
	for _, id := range ids {
		stub.drivers[id] = &models.Profile{
			ID:       id,
			Username: id,
			FullName: strings.ToUpper(id),
			Role:     models.RoleDriver,
			Active:   true,
		}
	}
	return stub
}

func (s *driverStoreStub) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	driver, ok := s.drivers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return driver, nil
}

type photoStoreStub struct {
	saved map[string][]byte
}

func newPhotoStoreStub() *photoStoreStub {
	return &photoStoreStub{saved: make(map[string][]byte)}
}

func (s *photoStoreStub) SaveStream(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.saved[filename] = data
	return filename, nil
}

func (s *photoStoreStub) Open(filename string) (*os.File, error) {
	if _, ok := s.saved[filename]; !ok {
		return nil, fmt.Errorf("not found")
	}
	return nil, fmt.Errorf("stub has no real files")
}

func (s *photoStoreStub) Delete(filename string) error {
	delete(s.saved, filename)
	return nil
}

type cacheStub struct {
	entries map[string][]byte
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]byte)}
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.entries[key] = data
	return nil
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.entries = make(map[string][]byte)
	return nil
}

func newTestParcelService(t *testing.T, store *parcelStoreStub, drivers *driverStoreStub) *ParcelService {
	t.Helper()
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewParcelService(store, newSequenceStub(), drivers, nil, newPhotoStoreStub(), signer,
		nil, nil, ParcelConfig{RatePerKg: 1.5})
	// Thursday of ISO week 2026-W07.
	return svc.WithClock(func() time.Time {
		return time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	})
}

func driverClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{ProfileID: id, Role: models.RoleDriver, Username: id}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{ProfileID: "admin-1", Role: models.RoleAdmin, Username: "admin"}
}

func intakeRequest(origin, destination string, weight float64) dto.CreateParcelRequest {
	return dto.CreateParcelRequest{
		OriginCode:          origin,
		DeliveryDestination: destination,
		SenderName:          "Ana", SenderPhone: "+373600", SenderAddress: "Chisinau",
		ReceiverName: "Ion", ReceiverPhone: "+447700", ReceiverAddress: "London",
		Weight: weight,
	}
}

func TestParcelServiceIntake(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1"))

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 2.0), nil)
	require.NoError(t, err)
	require.Equal(t, "1", parcel.HumanID)
	require.Equal(t, 1, parcel.NumericID)
	require.Equal(t, "2026-W07", parcel.WeekID)
	require.Equal(t, 3.00, parcel.Price)
	require.Equal(t, models.CurrencyGBP, parcel.Currency)
	require.Equal(t, models.StatusPending, parcel.Status)
	require.False(t, parcel.IsArchived)
	require.Equal(t, 0, parcel.RouteOrder)

	// A Belgium parcel gets the B prefix and EUR.
	second, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "BE", 0.33), nil)
	require.NoError(t, err)
	require.Equal(t, "B2", second.HumanID)
	require.Equal(t, 0.50, second.Price)
	require.Equal(t, models.CurrencyEUR, second.Currency)
	require.Equal(t, 1, second.RouteOrder)
}

func TestParcelServiceIntakeRejectsUnknownRoute(t *testing.T) {
	svc := newTestParcelService(t, newParcelStoreStub(), newDriverStoreStub("driver-1"))

	for _, route := range [][2]string{{"MD", "MD"}, {"UK", "BE"}, {"BE", "NL"}} {
		_, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest(route[0], route[1], 1), nil)
		require.Error(t, err, "route %v", route)
		require.Equal(t, "INVALID_ROUTE", appErrors.FromError(err).Code)
	}
}

func TestParcelServiceIntakeStoresPhoto(t *testing.T) {
	store := newParcelStoreStub()
	drivers := newDriverStoreStub("driver-1")
	photos := newPhotoStoreStub()
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewParcelService(store, newSequenceStub(), drivers, nil, photos, signer,
		nil, nil, ParcelConfig{RatePerKg: 1.5}).
		WithClock(func() time.Time { return time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC) })

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"),
		intakeRequest("MD", "NL", 1.0), strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	require.NotNil(t, parcel.PhotoURL)
	require.Equal(t, "driver-1/2026-W07/OL1.jpg", *parcel.PhotoURL)
	require.Equal(t, []byte("jpegbytes"), photos.saved[*parcel.PhotoURL])
}

func TestParcelServiceListScopesDrivers(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1", "driver-2"))

	_, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)
	_, err = svc.Intake(context.Background(), driverClaims("driver-2"), intakeRequest("MD", "BE", 1), nil)
	require.NoError(t, err)

	mine, err := svc.List(context.Background(), driverClaims("driver-1"), dto.ListParcelsQuery{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "driver-1", mine[0].DriverID)

	// A driver's filter for someone else is overridden.
	sneaky, err := svc.List(context.Background(), driverClaims("driver-1"), dto.ListParcelsQuery{DriverID: "driver-2"})
	require.NoError(t, err)
	require.Len(t, sneaky, 1)
	require.Equal(t, "driver-1", sneaky[0].DriverID)

	all, err := svc.List(context.Background(), adminClaims(), dto.ListParcelsQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestParcelServiceDeliverIsTerminal(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1"))

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)

	satisfied := true
	note := "left at door"
	delivered, err := svc.MarkDelivered(context.Background(), driverClaims("driver-1"), parcel.ID,
		dto.DeliverParcelRequest{ClientSatisfied: &satisfied, DeliveryNote: &note})
	require.NoError(t, err)
	require.Equal(t, models.StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	require.Equal(t, &note, delivered.DeliveryNote)

	_, err = svc.MarkDelivered(context.Background(), driverClaims("driver-1"), parcel.ID,
		dto.DeliverParcelRequest{ClientSatisfied: &satisfied})
	require.Error(t, err)
	require.Equal(t, "ALREADY_DELIVERED", appErrors.FromError(err).Code)
}

func TestParcelServiceDeliverOwnershipEnforced(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1", "driver-2"))

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)

	satisfied := false
	_, err = svc.MarkDelivered(context.Background(), driverClaims("driver-2"), parcel.ID,
		dto.DeliverParcelRequest{ClientSatisfied: &satisfied})
	require.Error(t, err)
	require.Equal(t, "FORBIDDEN", appErrors.FromError(err).Code)
}

func TestParcelServiceReassignAppendsLabelOnce(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1", "driver-2"))

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)

	result, err := svc.Reassign(context.Background(), dto.ReassignParcelsRequest{
		ParcelIDs:      []string{parcel.ID},
		TargetDriverID: "driver-2",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Reassigned)
	require.Empty(t, result.Failures)

	moved := store.parcels[parcel.ID]
	require.Equal(t, "driver-2", moved.DriverID)
	require.Equal(t, []string{"L"}, []string(moved.Labels))

	// Moving it back must not duplicate the label.
	result, err = svc.Reassign(context.Background(), dto.ReassignParcelsRequest{
		ParcelIDs:      []string{parcel.ID},
		TargetDriverID: "driver-1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Reassigned)
	require.Equal(t, []string{"L"}, []string(store.parcels[parcel.ID].Labels))
}

func TestParcelServiceReassignReportsFailures(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1", "driver-2"))

	good, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)
	archived, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "BE", 1), nil)
	require.NoError(t, err)
	store.parcels[archived.ID].IsArchived = true

	result, err := svc.Reassign(context.Background(), dto.ReassignParcelsRequest{
		ParcelIDs:      []string{good.ID, archived.ID, "missing"},
		TargetDriverID: "driver-2",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Reassigned)
	require.Len(t, result.Failures, 2)

	reasons := map[string]string{}
	for _, f := range result.Failures {
		reasons[f.ParcelID] = f.Reason
	}
	require.Equal(t, "archived", reasons[archived.ID])
	require.Equal(t, "not found", reasons["missing"])
}

func TestParcelServiceCorrectRecomputesPrice(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1"))

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 2.0), nil)
	require.NoError(t, err)
	require.Equal(t, 3.00, parcel.Price)

	weight := 12.25
	name := "Maria"
	updated, err := svc.Correct(context.Background(), parcel.ID, dto.UpdateParcelRequest{
		Weight:     &weight,
		SenderName: &name,
	})
	require.NoError(t, err)
	require.Equal(t, 12.25, updated.Weight)
	require.Equal(t, 18.38, updated.Price)
	require.Equal(t, "Maria", updated.SenderDetails.Name)
	// Untouched contact fields survive the merge.
	require.Equal(t, "+373600", updated.SenderDetails.Phone)
	// Derived identity never changes on correction.
	require.Equal(t, parcel.HumanID, updated.HumanID)
	require.Equal(t, parcel.Currency, updated.Currency)
}

func TestParcelServiceIntakeAllowsEmptySenderAddress(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1"))

	// Senders hand the parcel over in person; only the receiver needs an
	// address for delivery.
	req := intakeRequest("MD", "UK", 1.0)
	req.SenderAddress = ""

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"), req, nil)
	require.NoError(t, err)
	require.Empty(t, parcel.SenderDetails.Address)
	require.Equal(t, "Ana", parcel.SenderDetails.Name)
	require.Equal(t, "London", parcel.ReceiverDetails.Address)
}

func TestParcelServiceContacts(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1", "driver-2"))

	first := intakeRequest("MD", "UK", 1)
	first.SenderName, first.SenderPhone = "Zina", "+373100"
	first.ReceiverName, first.ReceiverPhone = "Ion", "+447100"
	_, err := svc.Intake(context.Background(), driverClaims("driver-1"), first, nil)
	require.NoError(t, err)

	// Same sender phone again with corrected spelling; the newer name wins.
	second := intakeRequest("MD", "BE", 1)
	second.SenderName, second.SenderPhone = "Zinaida", "+373100"
	second.ReceiverName, second.ReceiverPhone = "Ana", "+32100"
	_, err = svc.Intake(context.Background(), driverClaims("driver-1"), second, nil)
	require.NoError(t, err)

	other := intakeRequest("MD", "NL", 1)
	other.SenderName, other.SenderPhone = "Petru", "+373200"
	other.ReceiverName, other.ReceiverPhone = "Elena", "+31100"
	_, err = svc.Intake(context.Background(), driverClaims("driver-2"), other, nil)
	require.NoError(t, err)

	mine, err := svc.Contacts(context.Background(), driverClaims("driver-1"))
	require.NoError(t, err)
	require.Len(t, mine.Senders, 1)
	require.Equal(t, "Zinaida", mine.Senders[0].Name)
	require.Equal(t, "+373100", mine.Senders[0].Phone)
	// Receivers come back sorted by name.
	require.Len(t, mine.Receivers, 2)
	require.Equal(t, "Ana", mine.Receivers[0].Name)
	require.Equal(t, "Ion", mine.Receivers[1].Name)

	all, err := svc.Contacts(context.Background(), adminClaims())
	require.NoError(t, err)
	require.Len(t, all.Senders, 2)
	require.Equal(t, "Petru", all.Senders[0].Name)
	require.Equal(t, "Zinaida", all.Senders[1].Name)
	require.Len(t, all.Receivers, 3)
}

func TestParcelServiceRecordsMetrics(t *testing.T) {
	store := newParcelStoreStub()
	metrics := NewMetricsService()
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewParcelService(store, newSequenceStub(), newDriverStoreStub("driver-1", "driver-2"),
		newCacheStub(), newPhotoStoreStub(), signer, nil, nil,
		ParcelConfig{RatePerKg: 1.5, CacheEnabled: true, CacheTTL: time.Minute}).
		WithMetrics(metrics).
		WithClock(func() time.Time { return time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC) })

	parcel, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)
	_, err = svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.parcelsLogged.WithLabelValues("UK")))

	result, err := svc.Reassign(context.Background(), dto.ReassignParcelsRequest{
		ParcelIDs:      []string{parcel.ID},
		TargetDriverID: "driver-2",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Reassigned)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.parcelsMoved))

	// First list misses the cache, the repeat hits it.
	_, err = svc.List(context.Background(), adminClaims(), dto.ListParcelsQuery{})
	require.NoError(t, err)
	_, err = svc.List(context.Background(), adminClaims(), dto.ListParcelsQuery{})
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
}

func TestParcelServiceReorder(t *testing.T) {
	store := newParcelStoreStub()
	svc := newTestParcelService(t, store, newDriverStoreStub("driver-1"))

	first, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "UK", 1), nil)
	require.NoError(t, err)
	second, err := svc.Intake(context.Background(), driverClaims("driver-1"), intakeRequest("MD", "BE", 1), nil)
	require.NoError(t, err)

	require.NoError(t, svc.Reorder(context.Background(), dto.ReorderRequest{
		DriverID:  "driver-1",
		ParcelIDs: []string{second.ID, first.ID},
	}))
	require.Equal(t, 0, store.parcels[second.ID].RouteOrder)
	require.Equal(t, 1, store.parcels[first.ID].RouteOrder)

	err = svc.Reorder(context.Background(), dto.ReorderRequest{
		DriverID:  "driver-2",
		ParcelIDs: []string{first.ID},
	})
	require.Error(t, err)
}
