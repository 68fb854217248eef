package hooks

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ubongpr7/hooks/internal/captions"
	"github.com/ubongpr7/hooks/internal/compose"
	"github.com/ubongpr7/hooks/internal/sheets"
	"github.com/ubongpr7/hooks/models"
)

type fakeStore struct {
	mu         sync.Mutex
	progress   []int
	segments   []models.RenderedSegment
	completed  bool
	failedWith string
}

func (f *fakeStore) SetHookProgress(id uuid.UUID, p int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, p)
	return nil
}

func (f *fakeStore) CompleteHookJob(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	return nil
}

func (f *fakeStore) FailHookJob(id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedWith = reason
	return nil
}

func (f *fakeStore) CreateSegment(seg *models.RenderedSegment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, *seg)
	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	archive []byte
	uploads []string
}

func (f *fakeBlobs) Upload(bucket, path string, r io.Reader, contentType string) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, bucket+"/"+path)
	return nil
}

func (f *fakeBlobs) Download(bucket, path, destPath string) error {
	return os.WriteFile(destPath, f.archive, 0o644)
}

func (f *fakeBlobs) Delete(bucket string, paths []string) error { return nil }

func (f *fakeBlobs) SignedURL(bucket, path string, expiresInSeconds int) (string, error) {
	return "https://signed.example/" + path, nil
}

type fakeSheets struct {
	values [][]string
	colors [][][]sheets.WordColor
}

func (f *fakeSheets) FetchValues(ctx context.Context, link string) ([][]string, error) {
	return f.values, nil
}

func (f *fakeSheets) FetchWordColors(ctx context.Context, link string) ([][][]sheets.WordColor, error) {
	return f.colors, nil
}

type fakeNarrator struct {
	err error
}

func (f *fakeNarrator) Synthesize(ctx context.Context, text, destPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, []byte("mp3"), 0o644)
}

type fakeProber struct{}

func (fakeProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	return 4 * time.Second, nil
}

type fakeRenderer struct {
	mu       sync.Mutex
	failRows map[string]bool // output file name -> fail
	composed []compose.Request
}

func (f *fakeRenderer) UsableClips(ctx context.Context, clips []string) []string {
	return clips
}

func (f *fakeRenderer) Compose(ctx context.Context, req compose.Request, onFrames func(int64)) error {
	if f.failRows[filepath.Base(req.OutputPath)] {
		return errors.New("encode failed")
	}
	f.mu.Lock()
	f.composed = append(f.composed, req)
	f.mu.Unlock()
	return os.WriteFile(req.OutputPath, []byte("mp4"), 0o644)
}

type fakeCredits struct {
	mu      sync.Mutex
	debited int
}

func (f *fakeCredits) DebitHooks(userID uuid.UUID, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debited += n
	return nil
}

func clipArchive(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte("clip")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func wordRow(texts ...string) [][]sheets.WordColor {
	var cell []sheets.WordColor
	for _, w := range texts {
		cell = append(cell, sheets.WordColor{Text: w})
	}
	return [][]sheets.WordColor{cell}
}

func testJob() *models.HookJob {
	return &models.HookJob{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		SourceVideoPath:  "user/source.zip",
		GoogleSheetsLink: "https://docs.google.com/spreadsheets/d/abc123/edit",
		BoxColor:         "#ff0000",
		FontColor:        "#ffffff",
		AspectRatio:      models.AspectSquare,
		Parallelism:      2,
	}
}

func testOrchestrator(t *testing.T, store *fakeStore, blobs *fakeBlobs, sh *fakeSheets, r *fakeRenderer, c *fakeCredits) *Orchestrator {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Orchestrator{
		Store:    store,
		Blobs:    blobs,
		Sheets:   sh,
		Prober:   fakeProber{},
		Renderer: r,
		Credits:  c,
		Engine:   captions.NewEngine(log),
		Log:      log,
		WorkDir:  t.TempDir(),
	}
}

func TestRunSuccess(t *testing.T) {
	store := &fakeStore{}
	blobs := &fakeBlobs{archive: clipArchive(t, "a.mp4", "b.mp4", "c.mp4", "notes.txt")}
	sh := &fakeSheets{
		values: [][]string{{"first hook"}, {"second hook"}},
		colors: [][][]sheets.WordColor{wordRow("first", "hook"), wordRow("second", "hook")},
	}
	renderer := &fakeRenderer{}
	credits := &fakeCredits{}
	o := testOrchestrator(t, store, blobs, sh, renderer, credits)
	job := testJob()

	if err := o.Run(context.Background(), job, &fakeNarrator{}); err != nil {
		t.Fatal(err)
	}

	if !store.completed {
		t.Error("job not marked completed")
	}
	if store.failedWith != "" {
		t.Errorf("unexpected failure: %s", store.failedWith)
	}
	if len(store.segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(store.segments))
	}
	if credits.debited != 2 {
		t.Errorf("credits debited = %d, want 2", credits.debited)
	}
	if len(blobs.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(blobs.uploads))
	}
	for _, u := range blobs.uploads {
		if !strings.HasPrefix(u, "hook-videos/"+job.ID.String()+"/") {
			t.Errorf("upload path %q not under job prefix", u)
		}
	}

	if len(store.progress) < 2 {
		t.Fatalf("progress updates = %v", store.progress)
	}
	if store.progress[0] != 1 {
		t.Errorf("first progress = %d, want 1", store.progress[0])
	}
	if last := store.progress[len(store.progress)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}

	// round(4s / 2) = 2 clips per row; row 1 starts at pool position 1.
	if len(renderer.composed) != 2 {
		t.Fatalf("composed = %d requests", len(renderer.composed))
	}
	for _, req := range renderer.composed {
		if len(req.Clips) != 2 {
			t.Errorf("clips = %d, want 2", len(req.Clips))
		}
		if req.Overlay == nil {
			t.Error("request missing caption overlay")
		}
		if req.WatermarkPath != "" {
			t.Errorf("unexpected watermark on paid render: %q", req.WatermarkPath)
		}
	}
}

func TestRunSkipsFailedRow(t *testing.T) {
	store := &fakeStore{}
	blobs := &fakeBlobs{archive: clipArchive(t, "a.mp4", "b.mp4")}
	sh := &fakeSheets{
		values: [][]string{{"first hook"}, {"second hook"}},
		colors: [][][]sheets.WordColor{wordRow("first", "hook"), wordRow("second", "hook")},
	}
	renderer := &fakeRenderer{failRows: map[string]bool{"hook_0.mp4": true}}
	credits := &fakeCredits{}
	o := testOrchestrator(t, store, blobs, sh, renderer, credits)

	if err := o.Run(context.Background(), testJob(), &fakeNarrator{}); err != nil {
		t.Fatal(err)
	}
	if !store.completed {
		t.Error("job should complete when one row survives")
	}
	if len(store.segments) != 1 {
		t.Errorf("segments = %d, want 1", len(store.segments))
	}
	if credits.debited != 1 {
		t.Errorf("credits debited = %d, want 1", credits.debited)
	}
}

func TestRunFailsWhenNothingRenders(t *testing.T) {
	store := &fakeStore{}
	blobs := &fakeBlobs{archive: clipArchive(t, "a.mp4")}
	sh := &fakeSheets{
		values: [][]string{{"only hook"}},
		colors: [][][]sheets.WordColor{wordRow("only", "hook")},
	}
	renderer := &fakeRenderer{failRows: map[string]bool{"hook_0.mp4": true}}
	o := testOrchestrator(t, store, blobs, sh, renderer, &fakeCredits{})

	err := o.Run(context.Background(), testJob(), &fakeNarrator{})
	if err == nil {
		t.Fatal("expected error when no row renders")
	}
	if store.completed {
		t.Error("job must not complete")
	}
	if store.failedWith == "" {
		t.Error("failure reason not persisted")
	}
}

func TestRunFailsOnNarration(t *testing.T) {
	store := &fakeStore{}
	blobs := &fakeBlobs{archive: clipArchive(t, "a.mp4")}
	sh := &fakeSheets{
		values: [][]string{{"only hook"}},
		colors: [][][]sheets.WordColor{wordRow("only", "hook")},
	}
	o := testOrchestrator(t, store, blobs, sh, &fakeRenderer{}, &fakeCredits{})

	err := o.Run(context.Background(), testJob(), &fakeNarrator{err: errors.New("quota exceeded")})
	if err == nil {
		t.Fatal("expected narration failure to fail the job")
	}
	if !strings.Contains(store.failedWith, "quota exceeded") {
		t.Errorf("failure reason = %q", store.failedWith)
	}
}

func TestRunInvalidAspect(t *testing.T) {
	store := &fakeStore{}
	o := testOrchestrator(t, store, &fakeBlobs{}, &fakeSheets{}, &fakeRenderer{}, &fakeCredits{})
	job := testJob()
	job.AspectRatio = "cinema"

	if err := o.Run(context.Background(), job, &fakeNarrator{}); err == nil {
		t.Fatal("expected invalid aspect error")
	}
	if store.failedWith == "" {
		t.Error("failure reason not persisted")
	}
}

func TestRunWatermarkPassthrough(t *testing.T) {
	store := &fakeStore{}
	blobs := &fakeBlobs{archive: clipArchive(t, "a.mp4")}
	sh := &fakeSheets{
		values: [][]string{{"only hook"}},
		colors: [][][]sheets.WordColor{wordRow("only", "hook")},
	}
	renderer := &fakeRenderer{}
	o := testOrchestrator(t, store, blobs, sh, renderer, &fakeCredits{})
	o.WatermarkPath = "/assets/watermark.png"
	job := testJob()
	job.AddWatermark = true

	if err := o.Run(context.Background(), job, &fakeNarrator{}); err != nil {
		t.Fatal(err)
	}
	if len(renderer.composed) != 1 {
		t.Fatalf("composed = %d", len(renderer.composed))
	}
	if renderer.composed[0].WatermarkPath != "/assets/watermark.png" {
		t.Errorf("watermark = %q", renderer.composed[0].WatermarkPath)
	}
}

func TestRunCanceled(t *testing.T) {
	store := &fakeStore{}
	blobs := &fakeBlobs{archive: clipArchive(t, "a.mp4")}
	sh := &fakeSheets{
		values: [][]string{{"only hook"}},
		colors: [][][]sheets.WordColor{wordRow("only", "hook")},
	}
	o := testOrchestrator(t, store, blobs, sh, &fakeRenderer{}, &fakeCredits{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.Run(ctx, testJob(), &fakeNarrator{})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !strings.Contains(fmt.Sprint(err), "canceled") {
		t.Errorf("err = %v", err)
	}
}
