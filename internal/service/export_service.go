package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
	"github.com/noah-isme/notifications-dashboard-api/pkg/export"
	"github.com/noah-isme/notifications-dashboard-api/pkg/jobs"
	"github.com/noah-isme/notifications-dashboard-api/pkg/storage"
)

// ExportJobType is the queue job type used for export rendering.
const ExportJobType = "notifications_export"

type exportSource interface {
	AllMatching(filter models.FilterType, search string) []dto.NotificationView
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	MaxRetries int
}

// ExportDownload is a resolved signed download.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

type exportEntry struct {
	job   models.ExportJob
	title string
	rows  []dto.NotificationView
}

// ExportService snapshots the current view, renders it on the worker queue and serves
// the stored result through signed download tokens.
type ExportService struct {
	source  exportSource
	storage fileStorage
	signer  *storage.SignedURLSigner
	queue   jobDispatcher
	hub     *NotificationHub
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportConfig

	csv  tableRenderer
	json tableRenderer
	pdf  pdfRenderer

	mu   sync.RWMutex
	jobs map[string]*exportEntry
	now  func() time.Time
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Source  exportSource
	Storage fileStorage
	Signer  *storage.SignedURLSigner
	Queue   jobDispatcher
	Hub     *NotificationHub
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &ExportService{
		source:  params.Source,
		storage: params.Storage,
		signer:  params.Signer,
		queue:   params.Queue,
		hub:     params.Hub,
		metrics: params.Metrics,
		logger:  logger,
		cfg:     cfg,
		csv:     export.NewCSVExporter(),
		json:    export.NewJSONExporter(),
		pdf:     export.NewPDFExporter(),
		jobs:    make(map[string]*exportEntry),
		now:     time.Now,
	}
}

// SetQueue attaches the dispatcher once the worker queue has been built around Handle.
func (s *ExportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob captures the records matching the request and queues their rendering.
func (s *ExportService) CreateJob(ctx context.Context, req dto.ExportRequest, actorID string) (*models.ExportJob, error) {
	format := models.ExportFormat(strings.ToLower(strings.TrimSpace(req.Format)))
	if !validExportFormat(format) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "export queue not running")
	}
	fields := models.AllExportFields()
	if req.Fields != nil {
		fields = *req.Fields
	}
	query := models.ViewQuery{Filter: models.ParseFilterType(req.Filter), Search: strings.TrimSpace(req.Search)}

	var rows []dto.NotificationView
	if s.source != nil {
		rows = s.source.AllMatching(query.Filter, query.Search)
	}

	job := models.ExportJob{
		ID:          uuid.NewString(),
		Format:      format,
		Fields:      fields,
		Query:       query,
		Status:      models.ExportStatusQueued,
		RecordCount: len(rows),
		CreatedBy:   actorID,
		CreatedAt:   s.now().UTC(),
	}
	title := fmt.Sprintf("Notifications export %s", job.CreatedAt.Format("2006-01-02 15:04"))

	s.mu.Lock()
	s.jobs[job.ID] = &exportEntry{job: job, title: title, rows: rows}
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		s.fail(job.ID, fmt.Errorf("enqueue: %w", err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	s.metrics.ObserveExportJob(format, models.ExportStatusQueued)
	s.logger.Info("export queued", zap.String("job_id", job.ID), zap.String("format", string(format)), zap.Int("records", len(rows)))

	copied := job
	return &copied, nil
}

// GetJob returns job metadata. Viewers only see their own jobs.
func (s *ExportService) GetJob(ctx context.Context, id, actorID string, role models.UserRole) (*models.ExportJob, error) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	var job models.ExportJob
	if ok {
		job = entry.job
	}
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return &job, nil
}

// Handle renders and stores one queued export. It satisfies jobs.Handler.
func (s *ExportService) Handle(ctx context.Context, queued jobs.Job) error {
	s.mu.Lock()
	entry, ok := s.jobs[queued.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("export job %s not registered", queued.ID)
	}
	entry.job.Status = models.ExportStatusRunning
	job := entry.job
	rows := entry.rows
	title := entry.title
	s.mu.Unlock()

	payload, err := s.Render(job.Format, BuildExportDataset(rows, job.Fields), title)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.requeue(job.ID, err)
		return err
	}

	filename := fmt.Sprintf("notifications_%s_%s.%s", s.now().UTC().Format("20060102_150405"), job.ID, job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.requeue(job.ID, err)
		return err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		_ = s.storage.Delete(relPath)
		s.requeue(job.ID, err)
		return err
	}

	url := s.downloadURL(token)
	finished := s.now().UTC()
	s.mu.Lock()
	if entry, ok := s.jobs[job.ID]; ok {
		entry.job.Status = models.ExportStatusFinished
		entry.job.RelativePath = relPath
		entry.job.ResultURL = &url
		entry.job.ErrorMessage = nil
		entry.job.FinishedAt = &finished
		entry.job.ExpiresAt = &expiresAt
		entry.rows = nil
	}
	s.mu.Unlock()

	s.metrics.ObserveExportJob(job.Format, models.ExportStatusFinished)
	s.hub.Toast(models.ToastSuccess, "Export ready", fmt.Sprintf("%d records exported as %s", job.RecordCount, strings.ToUpper(string(job.Format))))
	s.logger.Info("export finished", zap.String("job_id", job.ID), zap.String("path", relPath))
	return nil
}

// OnExhausted marks a job failed once the queue gives up on it.
func (s *ExportService) OnExhausted(queued jobs.Job, err error) {
	s.fail(queued.ID, err)
}

// Render encodes a dataset in the requested format.
func (s *ExportService) Render(format models.ExportFormat, data export.Dataset, title string) ([]byte, error) {
	switch format {
	case models.ExportFormatCSV:
		return s.csv.Render(data)
	case models.ExportFormatJSON:
		return s.json.Render(data)
	case models.ExportFormatPDF:
		return s.pdf.Render(data, title)
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// ResolveDownload validates a token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	file, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	s.mu.RLock()
	entry, ok := s.jobs[file.JobID]
	var job models.ExportJob
	if ok {
		job = entry.job
	}
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if job.Status != models.ExportStatusFinished || job.RelativePath != file.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}

	handle, err := s.storage.Open(file.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      handle,
		Filename:  filepath.Base(file.Path),
		Format:    job.Format,
		ExpiresAt: file.ExpiresAt,
	}, nil
}

// StartCleanup purges expired exports every interval until ctx is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Cleanup removes expired files and forgets jobs whose downloads have lapsed.
func (s *ExportService) Cleanup() int {
	cutoff := s.now().UTC()
	removed := 0

	s.mu.Lock()
	for id, entry := range s.jobs {
		job := entry.job
		expired := job.ExpiresAt != nil && job.ExpiresAt.Before(cutoff)
		stale := job.Status == models.ExportStatusFailed && job.FinishedAt != nil && job.FinishedAt.Add(s.cfg.ResultTTL).Before(cutoff)
		if !expired && !stale {
			continue
		}
		if job.RelativePath != "" {
			if err := s.storage.Delete(job.RelativePath); err != nil {
				s.logger.Warn("cleanup delete failed", zap.String("job_id", id), zap.Error(err))
			}
		}
		delete(s.jobs, id)
		removed++
	}
	s.mu.Unlock()

	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	}
	return removed
}

func (s *ExportService) requeue(id string, cause error) {
	msg := cause.Error()
	s.mu.Lock()
	if entry, ok := s.jobs[id]; ok {
		entry.job.Status = models.ExportStatusQueued
		entry.job.ErrorMessage = &msg
	}
	s.mu.Unlock()
	s.logger.Warn("export attempt failed", zap.String("job_id", id), zap.Error(cause))
}

func (s *ExportService) fail(id string, cause error) {
	msg := cause.Error()
	now := s.now().UTC()
	var format models.ExportFormat
	s.mu.Lock()
	entry, ok := s.jobs[id]
	if ok {
		entry.job.Status = models.ExportStatusFailed
		entry.job.ErrorMessage = &msg
		entry.job.FinishedAt = &now
		entry.rows = nil
		format = entry.job.Format
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.metrics.ObserveExportJob(format, models.ExportStatusFailed)
	s.hub.Toast(models.ToastError, "Export failed", msg)
	s.logger.Error("export failed", zap.String("job_id", id), zap.Error(cause))
}

func (s *ExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/exports/%s", prefix, token)
}

func validExportFormat(f models.ExportFormat) bool {
	switch f {
	case models.ExportFormatCSV, models.ExportFormatJSON, models.ExportFormatPDF:
		return true
	}
	return false
}

type exportField struct {
	column export.Column
	value  func(dto.NotificationView) string
}

var (
	exportIDField = exportField{export.Column{Key: "id", Label: "ID"}, func(v dto.NotificationView) string { return v.ID }}

	personalExportFields = []exportField{
		{export.Column{Key: "name", Label: "Name"}, func(v dto.NotificationView) string { return v.Name }},
		{export.Column{Key: "email", Label: "Email"}, func(v dto.NotificationView) string { return v.Email }},
		{export.Column{Key: "phone", Label: "Phone"}, func(v dto.NotificationView) string { return v.Phone }},
		{export.Column{Key: "mobile", Label: "Mobile"}, func(v dto.NotificationView) string { return v.Mobile }},
		{export.Column{Key: "idNumber", Label: "ID Number"}, func(v dto.NotificationView) string { return v.IDNumber }},
		{export.Column{Key: "country", Label: "Country"}, func(v dto.NotificationView) string { return v.Country }},
		{export.Column{Key: "network", Label: "Network"}, func(v dto.NotificationView) string { return v.Network }},
		{export.Column{Key: "ip", Label: "IP"}, func(v dto.NotificationView) string { return v.IP }},
	}

	cardExportFields = []exportField{
		{export.Column{Key: "bank", Label: "Bank"}, func(v dto.NotificationView) string { return v.Bank }},
		{export.Column{Key: "cardNumber", Label: "Card Number"}, func(v dto.NotificationView) string { return v.CardNumber }},
		{export.Column{Key: "expiry", Label: "Expiry"}, func(v dto.NotificationView) string { return cardExpiry(v.Record) }},
		{export.Column{Key: "cvv", Label: "CVV"}, func(v dto.NotificationView) string { return v.CVV }},
		{export.Column{Key: "cardStatus", Label: "Card Status"}, func(v dto.NotificationView) string { return v.CardStatus }},
		{export.Column{Key: "otp", Label: "OTP"}, func(v dto.NotificationView) string { return v.OTP }},
		{export.Column{Key: "otp2", Label: "OTP 2"}, func(v dto.NotificationView) string { return v.OTP2 }},
		{export.Column{Key: "phoneOtp", Label: "Phone OTP"}, func(v dto.NotificationView) string { return v.PhoneOTP }},
		{export.Column{Key: "allOtps", Label: "All OTPs"}, func(v dto.NotificationView) string { return strings.Join(v.AllOTPs, " ") }},
	}

	statusExportFields = []exportField{
		{export.Column{Key: "status", Label: "Status"}, func(v dto.NotificationView) string { return v.Status }},
		{export.Column{Key: "step", Label: "Step"}, func(v dto.NotificationView) string { return strconv.Itoa(v.Step) }},
		{export.Column{Key: "flagColor", Label: "Flag"}, func(v dto.NotificationView) string { return string(v.FlagColor) }},
		{export.Column{Key: "currentPage", Label: "Current Page"}, func(v dto.NotificationView) string { return v.CurrentPage }},
		{export.Column{Key: "presence", Label: "Presence"}, func(v dto.NotificationView) string { return string(v.Presence) }},
	}

	timestampExportFields = []exportField{
		{export.Column{Key: "createdDate", Label: "Created"}, func(v dto.NotificationView) string { return formatCreated(v.Record) }},
	}
)

// BuildExportDataset maps views to export rows. The id column is always present.
func BuildExportDataset(rows []dto.NotificationView, fields models.ExportFields) export.Dataset {
	selected := []exportField{exportIDField}
	if fields.PersonalInfo {
		selected = append(selected, personalExportFields...)
	}
	if fields.CardInfo {
		selected = append(selected, cardExportFields...)
	}
	if fields.Status {
		selected = append(selected, statusExportFields...)
	}
	if fields.Timestamps {
		selected = append(selected, timestampExportFields...)
	}

	data := export.Dataset{
		Columns: make([]export.Column, len(selected)),
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for i, field := range selected {
		data.Columns[i] = field.column
	}
	for _, row := range rows {
		values := make(map[string]string, len(selected))
		for _, field := range selected {
			values[field.column.Key] = field.value(row)
		}
		data.Rows = append(data.Rows, values)
	}
	return data
}

func cardExpiry(rec models.Record) string {
	if rec.CardExpiry != "" {
		return rec.CardExpiry
	}
	if rec.ExpiryDate != "" {
		return rec.ExpiryDate
	}
	if rec.Month != "" || rec.Year != "" {
		return rec.Month + "/" + rec.Year
	}
	return ""
}

func formatCreated(rec models.Record) string {
	t := rec.CreatedAt()
	if t.IsZero() {
		return rec.CreatedDate
	}
	return t.Format(time.RFC3339)
}
