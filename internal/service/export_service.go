package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xdmy1/colete/internal/models"
	"github.com/xdmy1/colete/internal/pricing"
	"github.com/xdmy1/colete/internal/week"
	"github.com/xdmy1/colete/pkg/export"
	"github.com/xdmy1/colete/pkg/storage"
)

type exportParcelSource interface {
	List(ctx context.Context, filter models.ParcelFilter) ([]models.Parcel, error)
}

type exportDriverSource interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService builds weekly manifest datasets and persists rendered files.
type ExportService struct {
	parcels exportParcelSource
	drivers exportDriverSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(parcels exportParcelSource, drivers exportDriverSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		parcels: parcels,
		drivers: drivers,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds the manifest dataset for the job and stores the rendered file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildManifestDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/exports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	weekPart := sanitizeFilename(job.Params.WeekID)
	return fmt.Sprintf("manifest_%s_%s.%s", weekPart, timestamp, job.Params.Format)
}

// buildManifestDataset renders one row per parcel in route order. Driver names
// are resolved once per driver, not per row.
func (s *ExportService) buildManifestDataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	filter := models.ParcelFilter{
		WeekID:   params.WeekID,
		Archived: params.Archived,
		Limit:    500,
	}
	if params.DriverID != nil {
		filter.DriverID = *params.DriverID
	}
	parcels, err := s.parcels.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}

	driverNames := map[string]string{}
	driverName := func(id string) string {
		if name, ok := driverNames[id]; ok {
			return name
		}
		name := id
		if profile, err := s.drivers.FindByID(ctx, id); err == nil {
			name = profile.FullName
		}
		driverNames[id] = name
		return name
	}

	headers := []string{"ID", "Driver", "Route", "Sender", "Sender Phone", "Receiver", "Receiver Phone", "Receiver Address", "Content", "Weight (kg)", "Price", "Status", "Delivered At", "Labels"}
	rows := make([]map[string]string, 0, len(parcels))
	for _, p := range parcels {
		deliveredAt := ""
		if p.DeliveredAt != nil {
			deliveredAt = p.DeliveredAt.UTC().Format("02.01.2006 15:04")
		}
		rows = append(rows, map[string]string{
			"ID":               p.HumanID,
			"Driver":           driverName(p.DriverID),
			"Route":            pricing.RouteLabel(p.OriginCode, p.DeliveryDestination),
			"Sender":           p.SenderDetails.Name,
			"Sender Phone":     p.SenderDetails.Phone,
			"Receiver":         p.ReceiverDetails.Name,
			"Receiver Phone":   p.ReceiverDetails.Phone,
			"Receiver Address": p.ReceiverDetails.Address,
			"Content":          derefString(p.ContentDescription),
			"Weight (kg)":      fmt.Sprintf("%.2f", p.Weight),
			"Price":            pricing.FormatPrice(p.Price, p.Currency),
			"Status":           string(p.Status),
			"Delivered At":     deliveredAt,
			"Labels":           strings.Join(p.Labels, ","),
		})
	}

	dataset := export.Dataset{Headers: headers, Rows: rows}
	title := fmt.Sprintf("Manifest %s (%s)", params.WeekID, week.RangeLabel(params.WeekID))
	return dataset, title, nil
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
