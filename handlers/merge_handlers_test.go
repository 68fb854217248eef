package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/ubongpr7/hooks/internal/account"
	"github.com/ubongpr7/hooks/models"
)

func TestCreateMergeJob(t *testing.T) {
	app, deps := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/merges", map[string]string{"user_id": uuid.NewString()})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if len(deps.merges.jobs) != 1 {
		t.Errorf("jobs created = %d", len(deps.merges.jobs))
	}

	deps.accounts.sub = &account.Subscription{PlanName: "pro", MergeCredits: 0}
	resp = postJSON(t, app, "/api/v1/merges", map[string]string{"user_id": uuid.NewString()})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("no credits: status = %d, want 402", resp.StatusCode)
	}
}

func TestUploadMergeVideo(t *testing.T) {
	app, deps := newTestApp(t)
	job := &models.MergeJob{ID: uuid.New(), Status: models.StatusProcessing}
	deps.merges.jobs[job.ID] = job

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", models.VideoKindShort); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "my clip!.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("video")); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/merges/"+job.ID.String()+"/videos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	if len(deps.merges.uploads) != 1 {
		t.Fatalf("uploads recorded = %d", len(deps.merges.uploads))
	}
	up := deps.merges.uploads[0]
	if up.Kind != models.VideoKindShort {
		t.Errorf("kind = %q", up.Kind)
	}
	if up.StoragePath != job.ID.String()+"/short/my_clip_.mp4" {
		t.Errorf("storage path = %q", up.StoragePath)
	}

	// Unknown kind is rejected before touching storage.
	var buf2 bytes.Buffer
	mw2 := multipart.NewWriter(&buf2)
	mw2.WriteField("kind", "medium")
	mw2.Close()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/merges/"+job.ID.String()+"/videos", &buf2)
	req.Header.Set("Content-Type", mw2.FormDataContentType())
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad kind: status = %d, want 400", resp.StatusCode)
	}
}

func TestGetMergeJob(t *testing.T) {
	app, deps := newTestApp(t)
	job := &models.MergeJob{ID: uuid.New(), Status: models.StatusProcessing, Progress: 42}
	deps.merges.jobs[job.ID] = job

	req := httptest.NewRequest(http.MethodGet, "/api/v1/merges/"+job.ID.String(), nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data models.MergeJob `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Progress != 42 {
		t.Errorf("progress = %d, want 42", body.Data.Progress)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/merges/"+uuid.NewString(), nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job: status = %d, want 404", resp.StatusCode)
	}
}

func TestListMergedVideos(t *testing.T) {
	app, deps := newTestApp(t)
	id := uuid.New()
	deps.merges.segments = []models.MergedSegment{
		{MergeJobID: id, FileName: "pair_1.mp4", StoragePath: id.String() + "/pair_1.mp4"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/merges/"+id.String()+"/videos", nil)
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
	if len(body.Data) != 1 {
		t.Fatalf("videos = %d, want 1", len(body.Data))
	}
	if body.Data[0].URL != "https://signed.example/"+id.String()+"/pair_1.mp4" {
		t.Errorf("url = %q", body.Data[0].URL)
	}
}
