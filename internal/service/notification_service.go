package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
	"github.com/noah-isme/notifications-dashboard-api/pkg/middleware/requestid"
)

type recordWriter interface {
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateFlagColor(ctx context.Context, id string, color *models.FlagColor) error
	UpdateStep(ctx context.Context, id string, step int) error
	Hide(ctx context.Context, id string) error
	HideMany(ctx context.Context, ids []string) error
}

type recordPatcher interface {
	Patch(id string, fn func(*models.Record)) bool
	Remove(ids ...string) int
	IDs() []string
	Find(id string) (models.Record, bool)
}

// Mutation operation names used for logging and metrics.
const (
	OpSetFlagColor  = "set_flag_color"
	OpSetStep       = "set_step"
	OpSetStatus     = "set_status"
	OpSoftDelete    = "soft_delete"
	OpSoftDeleteAll = "soft_delete_all"
)

// NotificationService performs confirmed writes against the record backend and only then
// patches the local snapshot.
type NotificationService struct {
	repo    recordWriter
	store   recordPatcher
	hub     *NotificationHub
	metrics *MetricsService
	logger  *zap.Logger
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	Repo    recordWriter
	Store   recordPatcher
	Hub     *NotificationHub
	Metrics *MetricsService
	Logger  *zap.Logger
}

// NewNotificationService constructs the mutation gateway.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:    params.Repo,
		store:   params.Store,
		hub:     params.Hub,
		metrics: params.Metrics,
		logger:  logger,
	}
}

// SetFlagColor sets or, when color is nil or empty, clears the flag of a record.
func (s *NotificationService) SetFlagColor(ctx context.Context, id string, color *models.FlagColor) (*models.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}
	var value *models.FlagColor
	if color != nil && *color != models.FlagNone {
		normalized := models.FlagColor(strings.ToLower(string(*color)))
		if !normalized.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "flag color must be red, yellow or green")
		}
		value = &normalized
	}

	if err := s.write(ctx, OpSetFlagColor, id, func() error {
		return s.repo.UpdateFlagColor(ctx, id, value)
	}); err != nil {
		return nil, err
	}

	s.store.Patch(id, func(rec *models.Record) {
		rec.FlagColor = models.FlagNone
		if value != nil {
			rec.FlagColor = *value
		}
	})
	if value == nil {
		s.succeed(OpSetFlagColor, id, "Flag cleared")
	} else {
		s.succeed(OpSetFlagColor, id, "Flag updated")
	}
	return s.find(id), nil
}

// SetStep moves a record to a workflow step.
func (s *NotificationService) SetStep(ctx context.Context, id string, step int) (*models.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}
	if step < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "step must not be negative")
	}

	if err := s.write(ctx, OpSetStep, id, func() error {
		return s.repo.UpdateStep(ctx, id, step)
	}); err != nil {
		return nil, err
	}

	s.store.Patch(id, func(rec *models.Record) { rec.Step = step })
	s.succeed(OpSetStep, id, "Step updated")
	return s.find(id), nil
}

// SetStatus approves or rejects a record.
func (s *NotificationService) SetStatus(ctx context.Context, id, status string) (*models.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != models.StatusApproved && status != models.StatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected")
	}

	if err := s.write(ctx, OpSetStatus, id, func() error {
		return s.repo.UpdateStatus(ctx, id, status)
	}); err != nil {
		return nil, err
	}

	s.store.Patch(id, func(rec *models.Record) { rec.Status = status })
	if status == models.StatusApproved {
		s.succeed(OpSetStatus, id, "Record approved")
	} else {
		s.succeed(OpSetStatus, id, "Record rejected")
	}
	return s.find(id), nil
}

// SoftDelete hides a record and drops it from the snapshot right away.
func (s *NotificationService) SoftDelete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}

	if err := s.write(ctx, OpSoftDelete, id, func() error {
		return s.repo.Hide(ctx, id)
	}); err != nil {
		return err
	}

	s.store.Remove(id)
	s.succeed(OpSoftDelete, id, "Record deleted")
	return nil
}

// SoftDeleteAll hides every currently loaded record in one atomic batch. The snapshot is
// only cleared after the batch commits.
func (s *NotificationService) SoftDeleteAll(ctx context.Context) (int, error) {
	ids := s.store.IDs()
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.write(ctx, OpSoftDeleteAll, "", func() error {
		return s.repo.HideMany(ctx, ids)
	}); err != nil {
		return 0, err
	}

	s.store.Remove(ids...)
	s.metrics.ObserveMutation(OpSoftDeleteAll, nil)
	s.logger.Info("records hidden", zap.String("operation", OpSoftDeleteAll), zap.Int("count", len(ids)))
	s.hub.Toast(models.ToastSuccess, "All records deleted", "Every loaded record was hidden")
	return len(ids), nil
}

func (s *NotificationService) write(ctx context.Context, op, id string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	s.metrics.ObserveMutation(op, err)
	s.logger.Error("record mutation failed",
		zap.String("operation", op),
		zap.String("id", id),
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.Error(err),
	)
	s.hub.Toast(models.ToastError, "Update failed", "The change could not be saved")

	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "record not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "record backend timed out")
	}
	return appErrors.Wrap(err, appErrors.ErrWriteRejected.Code, appErrors.ErrWriteRejected.Status, "record backend rejected the write")
}

func (s *NotificationService) succeed(op, id, message string) {
	s.metrics.ObserveMutation(op, nil)
	s.logger.Info("record mutated", zap.String("operation", op), zap.String("id", id))
	s.hub.Toast(models.ToastSuccess, message, id)
}

func (s *NotificationService) find(id string) *models.Record {
	rec, ok := s.store.Find(id)
	if !ok {
		return nil
	}
	return &rec
}
