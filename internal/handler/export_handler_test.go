package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/middleware"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	"github.com/noah-isme/notifications-dashboard-api/internal/service"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
)

type exportServiceStub struct {
	job         *models.ExportJob
	err         error
	download    *service.ExportDownload
	downloadErr error
	request     dto.ExportRequest
	actor       string
	role        models.UserRole
}

func (s *exportServiceStub) CreateJob(_ context.Context, req dto.ExportRequest, actorID string) (*models.ExportJob, error) {
	s.request = req
	s.actor = actorID
	return s.job, s.err
}

func (s *exportServiceStub) GetJob(_ context.Context, id, actorID string, role models.UserRole) (*models.ExportJob, error) {
	s.actor = actorID
	s.role = role
	return s.job, s.err
}

func (s *exportServiceStub) ResolveDownload(context.Context, string) (*service.ExportDownload, error) {
	return s.download, s.downloadErr
}

func TestExportHandlerCreate(t *testing.T) {
	svc := &exportServiceStub{job: &models.ExportJob{ID: "job-1", Status: models.ExportStatusQueued, Format: models.ExportFormatCSV}}
	handler := NewExportHandler(svc)

	c, rec := newJSONContext(http.MethodPost, "/api/v1/notifications/exports", []byte(`{"format":"csv","filter":"hasCard"}`))
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.Create(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "op-1", svc.actor)
	assert.Equal(t, "hasCard", svc.request.Filter)
	var job models.ExportJob
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &job))
	assert.Equal(t, models.ExportStatusQueued, job.Status)
}

func TestExportHandlerCreateValidation(t *testing.T) {
	handler := NewExportHandler(&exportServiceStub{})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/notifications/exports", []byte(`{"format":"xlsx"}`))
	c.Set(middleware.ContextUserKey, adminClaims())
	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newJSONContext(http.MethodPost, "/api/v1/notifications/exports", []byte(`{"format":"csv"}`))
	handler.Create(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExportHandlerGet(t *testing.T) {
	svc := &exportServiceStub{err: appErrors.ErrForbidden}
	handler := NewExportHandler(svc)
	viewer := &models.JWTClaims{UserID: "viewer-1", Role: models.RoleViewer}

	c, rec := newJSONContext(http.MethodGet, "/api/v1/notifications/exports/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, viewer)
	handler.Get(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, models.RoleViewer, svc.role)
	assert.Equal(t, "viewer-1", svc.actor)
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.csv")
	require.NoError(t, os.WriteFile(path, []byte("id\na\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewExportHandler(&exportServiceStub{download: &service.ExportDownload{
		File:      file,
		Filename:  "notifications.csv",
		Format:    models.ExportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/exports/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id\na\n", rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="notifications.csv"`, rec.Header().Get("Content-Disposition"))
}

func TestExportHandlerDownloadRejectsBadToken(t *testing.T) {
	handler := NewExportHandler(&exportServiceStub{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/exports/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newJSONContext(http.MethodGet, "/api/v1/exports/", nil)
	handler.Download(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
