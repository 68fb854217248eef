package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ubongpr7/hooks/internal/account"
	"github.com/ubongpr7/hooks/internal/sheets"
	"github.com/ubongpr7/hooks/internal/tts"
	"github.com/ubongpr7/hooks/models"
)

type fakeHookStore struct {
	jobs     map[uuid.UUID]*models.HookJob
	segments []models.RenderedSegment
}

func (f *fakeHookStore) CreateHookJob(job *models.HookJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeHookStore) GetHookJob(id uuid.UUID) (*models.HookJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return job, nil
}

func (f *fakeHookStore) ListSegments(jobID uuid.UUID) ([]models.RenderedSegment, error) {
	return f.segments, nil
}

type fakeMergeStore struct {
	jobs     map[uuid.UUID]*models.MergeJob
	uploads  []models.UploadedVideo
	segments []models.MergedSegment
}

func (f *fakeMergeStore) CreateMergeJob(job *models.MergeJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeMergeStore) GetMergeJob(id uuid.UUID) (*models.MergeJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return job, nil
}

func (f *fakeMergeStore) CreateUploadedVideo(v *models.UploadedVideo) error {
	f.uploads = append(f.uploads, *v)
	return nil
}

func (f *fakeMergeStore) ListMergedSegments(jobID uuid.UUID) ([]models.MergedSegment, error) {
	return f.segments, nil
}

type fakeAccounts struct {
	sub *account.Subscription
	err error
}

func (f *fakeAccounts) Get(userID uuid.UUID) (*account.Subscription, error) {
	return f.sub, f.err
}

type fakeBlobs struct {
	uploads []string
}

func (f *fakeBlobs) Upload(bucket, path string, r io.Reader, contentType string) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	f.uploads = append(f.uploads, bucket+"/"+path)
	return nil
}

func (f *fakeBlobs) Download(bucket, path, destPath string) error { return nil }

func (f *fakeBlobs) Delete(bucket string, paths []string) error { return nil }

func (f *fakeBlobs) SignedURL(bucket, path string, expiresInSeconds int) (string, error) {
	return "https://signed.example/" + path, nil
}

type fakeSheetChecker struct {
	values [][]string
	err    error
}

func (f *fakeSheetChecker) FetchValues(ctx context.Context, link string) ([][]string, error) {
	return f.values, f.err
}

type fakeKeyChecker struct {
	err error
}

func (f *fakeKeyChecker) Check(ctx context.Context, apiKey string) error { return f.err }

type testDeps struct {
	hooks    *fakeHookStore
	merges   *fakeMergeStore
	accounts *fakeAccounts
	blobs    *fakeBlobs
	sheets   *fakeSheetChecker
	keys     *fakeKeyChecker
}

func newTestApp(t *testing.T) (*fiber.App, *testDeps) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	deps := &testDeps{
		hooks:    &fakeHookStore{jobs: map[uuid.UUID]*models.HookJob{}},
		merges:   &fakeMergeStore{jobs: map[uuid.UUID]*models.MergeJob{}},
		accounts: &fakeAccounts{sub: &account.Subscription{PlanName: "pro", HookCredits: 10, MergeCredits: 10}},
		blobs:    &fakeBlobs{},
		sheets:   &fakeSheetChecker{values: [][]string{{"hook one"}, {"hook two"}}},
		keys:     &fakeKeyChecker{},
	}
	h := NewApplicationHandler(deps.hooks, deps.merges, deps.accounts, deps.blobs, deps.sheets, deps.keys, log)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/hooks", h.CreateHookJob)
	api.Get("/hooks/:id", h.GetHookJob)
	api.Get("/hooks/:id/videos", h.ListHookVideos)
	api.Post("/hooks/validate-link", h.ValidateSheetLink)
	api.Post("/hooks/validate-key", h.ValidateTTSKey)
	api.Post("/merges", h.CreateMergeJob)
	api.Get("/merges/:id", h.GetMergeJob)
	api.Post("/merges/:id/videos", h.UploadMergeVideo)
	api.Get("/merges/:id/videos", h.ListMergedVideos)
	return app, deps
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func validHookRequest() map[string]interface{} {
	return map[string]interface{}{
		"user_id":            uuid.NewString(),
		"source_video_path":  "user/source.zip",
		"google_sheets_link": "https://docs.google.com/spreadsheets/d/abc123/edit",
		"tts_api_key":        "key",
		"voice_id":           "voice",
		"box_color":          "#ff0000",
		"font_color":         "#ffffff",
		"aspect_ratio":       "tiktok",
	}
}

func TestCreateHookJob(t *testing.T) {
	app, deps := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/hooks", validHookRequest())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if len(deps.hooks.jobs) != 1 {
		t.Fatalf("jobs created = %d", len(deps.hooks.jobs))
	}
	for _, job := range deps.hooks.jobs {
		if job.Status != models.StatusProcessing {
			t.Errorf("status = %q", job.Status)
		}
		if job.Parallelism != 1 {
			t.Errorf("default parallelism = %d, want 1", job.Parallelism)
		}
		if job.AddWatermark {
			t.Error("paid plan should not be watermarked")
		}
	}
}

func TestCreateHookJobFreePlanWatermarks(t *testing.T) {
	app, deps := newTestApp(t)
	deps.accounts.sub = &account.Subscription{PlanName: "Free", HookCredits: 3}

	resp := postJSON(t, app, "/api/v1/hooks", validHookRequest())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	for _, job := range deps.hooks.jobs {
		if !job.AddWatermark {
			t.Error("free plan render must be watermarked")
		}
	}
}

func TestCreateHookJobNoCredits(t *testing.T) {
	app, deps := newTestApp(t)
	deps.accounts.sub = &account.Subscription{PlanName: "pro", HookCredits: 0}

	resp := postJSON(t, app, "/api/v1/hooks", validHookRequest())
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", resp.StatusCode)
	}
	if len(deps.hooks.jobs) != 0 {
		t.Error("job must not be created without credits")
	}
}

func TestCreateHookJobRejectsBadPayload(t *testing.T) {
	app, _ := newTestApp(t)

	bad := validHookRequest()
	bad["aspect_ratio"] = "imax"
	if resp := postJSON(t, app, "/api/v1/hooks", bad); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad aspect: status = %d, want 400", resp.StatusCode)
	}

	bad = validHookRequest()
	bad["box_color"] = "red"
	if resp := postJSON(t, app, "/api/v1/hooks", bad); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad color: status = %d, want 400", resp.StatusCode)
	}
}

func TestGetHookJob(t *testing.T) {
	app, deps := newTestApp(t)
	job := &models.HookJob{ID: uuid.New(), Status: models.StatusProcessing, Progress: 42}
	deps.hooks.jobs[job.ID] = job

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hooks/"+job.ID.String(), nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data models.HookJob `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Progress != 42 {
		t.Errorf("progress = %d, want 42", body.Data.Progress)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/hooks/"+uuid.NewString(), nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing job: status = %d, want 404", resp.StatusCode)
	}
}

func TestListHookVideos(t *testing.T) {
	app, deps := newTestApp(t)
	id := uuid.New()
	deps.hooks.segments = []models.RenderedSegment{
		{HookJobID: id, FileName: "hook_0.mp4", StoragePath: id.String() + "/hook_0.mp4"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hooks/"+id.String()+"/videos", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data []struct {
			FileName string `json:"file_name"`
			URL      string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].URL == "" {
		t.Errorf("videos = %+v", body.Data)
	}
}

func TestValidateSheetLink(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"valid", nil, http.StatusOK},
		{"invalid link", sheets.ErrInvalidLink, http.StatusBadRequest},
		{"empty sheet", sheets.ErrEmptySource, http.StatusUnprocessableEntity},
		{"unreachable", sheets.ErrSourceUnavailable, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, deps := newTestApp(t)
			deps.sheets.err = tt.err

			resp := postJSON(t, app, "/api/v1/hooks/validate-link", map[string]string{
				"google_sheets_link": "https://docs.google.com/spreadsheets/d/abc123/edit",
			})
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestValidateTTSKey(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"valid", nil, http.StatusOK},
		{"rejected", &tts.SynthesisError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{"provider down", errors.New("timeout"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, deps := newTestApp(t)
			deps.keys.err = tt.err

			resp := postJSON(t, app, "/api/v1/hooks/validate-key", map[string]string{
				"tts_api_key": "key",
			})
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
