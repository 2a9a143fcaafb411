package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/notifications-dashboard-api/pkg/errors"
	"github.com/noah-isme/notifications-dashboard-api/pkg/jobs"
	"github.com/noah-isme/notifications-dashboard-api/pkg/storage"
)

type exportSourceStub struct {
	rows   []dto.NotificationView
	filter models.FilterType
	search string
}

func (s *exportSourceStub) AllMatching(filter models.FilterType, search string) []dto.NotificationView {
	s.filter = filter
	s.search = search
	return s.rows
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func newExportServiceForTest(t *testing.T, rows []dto.NotificationView) (*ExportService, *dispatcherStub, *exportSourceStub) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	source := &exportSourceStub{rows: rows}
	queue := &dispatcherStub{}
	svc := NewExportService(ExportServiceParams{
		Source:  source,
		Storage: store,
		Signer:  storage.NewSignedURLSigner("secret", time.Hour),
		Queue:   queue,
		Hub:     NewNotificationHub(8, zap.NewNop()),
		Logger:  zap.NewNop(),
		Config:  ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour},
	})
	return svc, queue, source
}

func exportRows() []dto.NotificationView {
	return []dto.NotificationView{
		{Record: models.Record{ID: "a", Status: "pending", Step: 2, CreatedDate: "2024-01-01", Payload: models.Payload{Name: "Ann", CardNumber: "4111", Month: "04", Year: "27"}}, Presence: models.PresenceOnline},
		{Record: models.Record{ID: "b", Status: "approved", Payload: models.Payload{Email: "b@example.com"}}, Presence: models.PresenceUnknown},
	}
}

func TestBuildExportDatasetFieldGroups(t *testing.T) {
	data := BuildExportDataset(exportRows(), models.ExportFields{CardInfo: true})

	keys := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		keys[i] = col.Key
	}
	assert.Equal(t, "id", keys[0])
	assert.Contains(t, keys, "cardNumber")
	assert.NotContains(t, keys, "name")
	assert.NotContains(t, keys, "status")
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "04/27", data.Rows[0]["expiry"])
	assert.Equal(t, "", data.Rows[1]["cardNumber"])
}

func TestBuildExportDatasetIDOnly(t *testing.T) {
	data := BuildExportDataset(exportRows(), models.ExportFields{})
	require.Len(t, data.Columns, 1)
	assert.Equal(t, "id", data.Columns[0].Key)
	assert.Equal(t, map[string]string{"id": "b"}, data.Rows[1])
}

func TestExportServiceJobLifecycle(t *testing.T) {
	svc, queue, source := newExportServiceForTest(t, exportRows())
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, dto.ExportRequest{Format: "csv", Filter: "card", Search: " ann "}, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, 2, job.RecordCount)
	assert.Equal(t, models.FilterHasCard, source.filter)
	assert.Equal(t, "ann", source.search)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, job.ID, queue.jobs[0].ID)

	require.NoError(t, svc.Handle(ctx, queue.jobs[0]))

	done, err := svc.GetJob(ctx, job.ID, "op-1", models.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, done.Status)
	require.NotNil(t, done.ResultURL)
	assert.True(t, strings.HasPrefix(*done.ResultURL, "/api/v1/exports/"))

	token := strings.TrimPrefix(*done.ResultURL, "/api/v1/exports/")
	download, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "ID,Name,"))
	assert.Equal(t, models.ExportFormatCSV, download.Format)
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, queue, _ := newExportServiceForTest(t, nil)
	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{Format: "xlsx"}, "op-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queue.jobs)
}

func TestExportServiceGetJobOwnership(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t, exportRows())
	ctx := context.Background()
	job, err := svc.CreateJob(ctx, dto.ExportRequest{Format: "json"}, "op-1")
	require.NoError(t, err)

	_, err = svc.GetJob(ctx, job.ID, "op-2", models.RoleViewer)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetJob(ctx, job.ID, "op-2", models.RoleAdmin)
	assert.NoError(t, err)

	_, err = svc.GetJob(ctx, "missing", "op-1", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceExhaustedJobFails(t *testing.T) {
	svc, queue, _ := newExportServiceForTest(t, exportRows())
	events, cancel := svc.hub.Subscribe()
	defer cancel()

	ctx := context.Background()
	job, err := svc.CreateJob(ctx, dto.ExportRequest{Format: "pdf"}, "op-1")
	require.NoError(t, err)

	svc.OnExhausted(queue.jobs[0], errors.New("disk full"))

	failed, err := svc.GetJob(ctx, job.ID, "op-1", models.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "disk full", *failed.ErrorMessage)

	select {
	case event := <-events:
		assert.Equal(t, models.ToastError, event.Level)
	case <-time.After(time.Second):
		t.Fatal("expected failure toast")
	}
}

func TestExportServiceEnqueueFailure(t *testing.T) {
	svc, queue, _ := newExportServiceForTest(t, exportRows())
	queue.err = errors.New("queue stopped")

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{Format: "csv"}, "op-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestExportServiceResolveDownloadRejectsBadToken(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t, nil)
	_, err := svc.ResolveDownload(context.Background(), "bogus")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCleanupForgetsExpiredJobs(t *testing.T) {
	svc, queue, _ := newExportServiceForTest(t, exportRows())
	ctx := context.Background()
	job, err := svc.CreateJob(ctx, dto.ExportRequest{Format: "csv"}, "op-1")
	require.NoError(t, err)
	require.NoError(t, svc.Handle(ctx, queue.jobs[0]))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, svc.Cleanup())

	_, err = svc.GetJob(ctx, job.ID, "op-1", models.RoleAdmin)
	assert.Error(t, err)
}
