package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hudoor/internal/middleware"
	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/internal/repository"
	"github.com/noah-isme/hudoor/internal/service"
	"github.com/noah-isme/hudoor/pkg/activation"
	"github.com/noah-isme/hudoor/pkg/jobs"
	"github.com/noah-isme/hudoor/pkg/kvstore"
	"github.com/noah-isme/hudoor/pkg/storage"
)

const (
	testPrefix      = "/api/v1"
	testFingerprint = "0123456789ABCDEF"
	testSalt        = "salt"
)

type testAPI struct {
	router *gin.Engine
	store  *kvstore.Memory
}

func newTestAPI(t *testing.T, requireActivation bool) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := kvstore.NewMemory()
	require.NoError(t, store.Open(ctx))
	metrics := service.NewMetricsService()
	school := repository.NewSchoolRepository(store, nil)
	require.NoError(t, school.Load(ctx))
	attendanceRepo := repository.NewAttendanceRepository(store, nil)
	require.NoError(t, attendanceRepo.Load(ctx))
	settingsRepo := repository.NewSettingsRepository(store)

	validate := service.NewValidator()
	settingsSvc := service.NewSettingsService(settingsRepo, service.SettingsConfig{
		Fingerprint: testFingerprint, Salt: testSalt, RequireActivation: requireActivation,
	}, validate, nil)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, school, metrics, validate, nil)
	reportSvc := service.NewReportService(attendanceRepo, school, nil, nil)
	exportSvc := service.NewExportService(attendanceSvc, reportSvc, school, settingsSvc, nil, nil, nil, nil)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	var jobSvc *service.ExportJobService
	queue := jobs.NewQueue("exports", func(ctx context.Context, j jobs.Job) error {
		return jobSvc.Handle(ctx, j)
	}, jobs.QueueConfig{Workers: 1, MaxRetries: 0, OnFailure: func(ctx context.Context, j jobs.Job, err error) {
		jobSvc.HandleFailure(ctx, j, err)
	}})
	jobSvc = service.NewExportJobService(repository.NewExportJobRepository(store), queue, exportSvc, files,
		storage.NewSignedURLSigner("secret", time.Hour), metrics, validate, nil, service.ExportJobConfig{APIPrefix: testPrefix})
	queue.Start(ctx)
	t.Cleanup(queue.Stop)

	r := gin.New()
	r.Use(middleware.WithResponseMeta(), middleware.Metrics(metrics))
	Register(r, testPrefix, Handlers{
		Grades:     NewGradeHandler(service.NewGradeService(school, validate, nil)),
		Classes:    NewClassHandler(service.NewClassService(school, validate, nil)),
		Students:   NewStudentHandler(service.NewStudentService(school, validate, nil)),
		Attendance: NewAttendanceHandler(attendanceSvc),
		Reports:    NewReportHandler(reportSvc),
		Messaging:  NewMessagingHandler(service.NewMessagingService(school, attendanceRepo, settingsRepo, nil)),
		Exports:    NewExportHandler(jobSvc, nil),
		Imports:    NewImportHandler(service.NewImportService(school, 1<<20, validate, nil)),
		Settings:   NewSettingsHandler(settingsSvc),
		Metrics: NewMetricsHandler(metrics, map[string]ReadinessCheck{
			"store": func(ctx context.Context) error {
				_, _, err := store.Get(ctx, kvstore.CollectionSettings, repository.SettingsKeySchool)
				return err
			},
		}),
	}, middleware.RequireActivation(settingsSvc, requireActivation))
	return &testAPI{router: r, store: store}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *apiError              `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, testPrefix+path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (a *testAPI) seed(t *testing.T) (models.SchoolClass, models.Student) {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/grades", map[string]string{"name": "الخامس"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	grade := decode[models.Grade](t, env)

	w, env = a.do(t, http.MethodPost, "/classes", map[string]string{"name": "1", "gradeId": grade.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	class := decode[models.SchoolClass](t, env)

	w, env = a.do(t, http.MethodPost, "/students", map[string]string{"name": "أحمد", "classId": class.ID, "parentPhone": "91234567"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return class, decode[models.Student](t, env)
}

func TestRouterAttendanceFlow(t *testing.T) {
	api := newTestAPI(t, false)
	class, student := api.seed(t)

	w, env := api.do(t, http.MethodGet, "/attendance/2024-01-10/"+student.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AttendanceStatusPresent, decode[models.AttendanceRecord](t, env).Status)

	w, _ = api.do(t, http.MethodPut, "/attendance", map[string]interface{}{
		"date": "2024-01-10", "studentId": student.ID, "status": "truant", "period": 3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = api.do(t, http.MethodGet, "/reports/students/"+student.ID+"/history?from=2024-01-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]models.AttendanceRecord](t, env)
	require.Len(t, history, 1)
	assert.Equal(t, 3, *history[0].Period)
	assert.EqualValues(t, 1, env.Meta["count"])

	w, env = api.do(t, http.MethodGet, "/reports/classes/"+class.ID+"/period?onlyViolations=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ClassPeriodStat](t, env), 1)

	w, env = api.do(t, http.MethodGet, "/attendance/stats?date=2024-01-10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[models.DailyStats](t, env).AttendanceRate)

	w, env = api.do(t, http.MethodGet, "/messaging/notice?studentId="+student.ID+"&date=2024-01-10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notice := decode[service.Notice](t, env)
	assert.Equal(t, "96891234567", notice.Phone)

	w, env = api.do(t, http.MethodGet, "/students?classId="+class.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Pagination)
	assert.Len(t, decode[[]models.Student](t, env), 1)
}

func TestRouterErrors(t *testing.T) {
	api := newTestAPI(t, false)
	_, student := api.seed(t)

	w, env := api.do(t, http.MethodPut, "/attendance", map[string]interface{}{
		"date": "2024-01-10", "studentId": student.ID, "status": "late",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = api.do(t, http.MethodPost, "/classes", map[string]string{"name": "x", "gradeId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "grade not found", env.Error.Message)

	w, _ = api.do(t, http.MethodPost, "/grades", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	api.store.MaxBytes = api.store.Size()
	w, env = api.do(t, http.MethodPost, "/grades", map[string]string{"name": "السادس"})
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Equal(t, "STORAGE_QUOTA_EXCEEDED", env.Error.Code)

	w, _ = api.do(t, http.MethodDelete, "/students/missing", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouterActivationGuard(t *testing.T) {
	api := newTestAPI(t, true)

	w, env := api.do(t, http.MethodGet, "/grades", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_ACTIVATED", env.Error.Code)

	w, env = api.do(t, http.MethodGet, "/activation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[models.ActivationStatus](t, env)
	assert.False(t, status.Activated)
	assert.Equal(t, testFingerprint, status.Fingerprint)

	w, _ = api.do(t, http.MethodPost, "/activation", map[string]string{"key": activation.KeyFor(testFingerprint, testSalt)})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodGet, "/grades", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterImportPreviewAndCommit(t *testing.T) {
	api := newTestAPI(t, false)
	class, _ := api.seed(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "students.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("الاسم,الهاتف\nسالم,92345678\nمريم,\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, testPrefix+"/imports/preview", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	preview := decode[service.ImportPreview](t, env)
	require.Len(t, preview.Rows, 2)

	w, env = api.do(t, http.MethodPost, "/imports/commit", service.CommitImportRequest{ClassID: class.ID, Rows: preview.Rows})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 2, env.Meta["count"])

	req = httptest.NewRequest(http.MethodPost, testPrefix+"/imports/preview", nil)
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouterExportDownload(t *testing.T) {
	api := newTestAPI(t, false)
	class, _ := api.seed(t)

	w, env := api.do(t, http.MethodPost, "/exports", models.ExportRequest{
		Kind: models.ExportDailySheet, Format: models.ExportFormatCSV, ClassID: class.ID, Date: "2024-01-10",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := decode[models.ExportJob](t, env)

	var finished models.ExportJob
	require.Eventually(t, func() bool {
		_, env := api.do(t, http.MethodGet, "/exports/"+job.ID, nil)
		finished = decode[models.ExportJob](t, env)
		return finished.Status == models.ExportStatusFinished
	}, 5*time.Second, 20*time.Millisecond)
	require.NotNil(t, finished.DownloadURL)

	req := httptest.NewRequest(http.MethodGet, *finished.DownloadURL, nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "daily_sheet_")
	assert.Contains(t, rec.Body.String(), "أحمد")

	w, env = api.do(t, http.MethodGet, "/exports/download/forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestRouterSystemEndpoints(t *testing.T) {
	api := newTestAPI(t, false)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, env := api.do(t, http.MethodGet, "/system/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[service.MetricsSnapshot](t, env)
	assert.Positive(t, snap.RequestsTotal)
}
