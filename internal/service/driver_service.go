package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/models"
	appErrors "github.com/xdmy1/colete/pkg/errors"
)

type driverStore interface {
	Create(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	FindByUsername(ctx context.Context, username string) (*models.Profile, error)
	ListDrivers(ctx context.Context) ([]models.Profile, error)
}

// DriverService manages driver accounts.
type DriverService struct {
	profiles  driverStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDriverService constructs a DriverService.
func NewDriverService(profiles driverStore, validate *validator.Validate, logger *zap.Logger) *DriverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DriverService{profiles: profiles, validator: validate, logger: logger}
}

// List returns all driver accounts in their legacy range order.
func (s *DriverService) List(ctx context.Context) ([]models.Profile, error) {
	drivers, err := s.profiles.ListDrivers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list drivers")
	}
	return drivers, nil
}

// Get fetches one driver.
func (s *DriverService) Get(ctx context.Context, id string) (*models.Profile, error) {
	driver, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "driver not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load driver")
	}
	return driver, nil
}

// Create provisions a new driver account with a hashed PIN.
func (s *DriverService) Create(ctx context.Context, req dto.CreateDriverRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid driver payload")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if existing, err := s.profiles.FindByUsername(ctx, username); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash PIN")
	}

	profile := &models.Profile{
		Username:   username,
		PinHash:    string(pinHash),
		FullName:   req.FullName,
		Role:       models.RoleDriver,
		RangeStart: req.RangeStart,
		RangeEnd:   req.RangeEnd,
		Active:     true,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create driver")
	}

	s.logger.Info("driver account created",
		zap.String("driverId", profile.ID),
		zap.String("username", username))
	return profile, nil
}

// LastLoginLabel renders the relative "last seen" string used by the admin
// board, or empty when the driver never logged in.
func LastLoginLabel(lastLogin *time.Time, now time.Time) string {
	if lastLogin == nil {
		return ""
	}
	delta := now.Sub(*lastLogin)
	switch {
	case delta < time.Minute:
		return "just now"
	case delta < time.Hour:
		return pluralize(int(delta.Minutes()), "minute")
	case delta < 24*time.Hour:
		return pluralize(int(delta.Hours()), "hour")
	default:
		return pluralize(int(delta.Hours()/24), "day")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return strconv.Itoa(n) + " " + unit + "s ago"
}
