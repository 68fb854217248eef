package hooks

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ubongpr7/hooks/internal/captions"
	"github.com/ubongpr7/hooks/internal/compose"
	"github.com/ubongpr7/hooks/internal/sheets"
	"github.com/ubongpr7/hooks/internal/storage"
	"github.com/ubongpr7/hooks/models"
)

// Progress weights: reaching the end of narration synthesis is worth 20
// points, rendering the rows covers the remaining 80.
const (
	progressStarted    = 1
	progressAudioDone  = 20
	progressRenderSpan = 80
)

// JobStore is the persistence surface the batch needs.
type JobStore interface {
	SetHookProgress(id uuid.UUID, progress int) error
	CompleteHookJob(id uuid.UUID) error
	FailHookJob(id uuid.UUID, reason string) error
	CreateSegment(seg *models.RenderedSegment) error
}

// SheetSource fetches hook rows and their word coloring.
type SheetSource interface {
	FetchValues(ctx context.Context, link string) ([][]string, error)
	FetchWordColors(ctx context.Context, link string) ([][][]sheets.WordColor, error)
}

// Narrator turns one hook text into a narration audio file.
type Narrator interface {
	Synthesize(ctx context.Context, text, destPath string) error
}

// Renderer encodes one segment from clips, narration and captions.
type Renderer interface {
	UsableClips(ctx context.Context, clips []string) []string
	Compose(ctx context.Context, req compose.Request, onFrames func(delta int64)) error
}

// Prober reads media durations.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Credits debits a user's balance after a successful batch.
type Credits interface {
	DebitHooks(userID uuid.UUID, n int) error
}

// Orchestrator runs hook batches end to end: sheet fetch, narration,
// per-row rendering, upload and bookkeeping.
type Orchestrator struct {
	Store    JobStore
	Blobs    storage.BlobStore
	Sheets   SheetSource
	Prober   Prober
	Renderer Renderer
	Credits  Credits
	Engine   *captions.Engine
	Log      *logrus.Logger

	// WorkDir hosts per-job temp directories; empty means the OS default.
	WorkDir string
	// WatermarkPath is the image composited onto free-tier renders.
	WatermarkPath string
	// FontFile optionally pins the caption font.
	FontFile string
}

type row struct {
	index     int
	text      string
	words     []sheets.WordColor
	audioPath string
	audioDur  float64
}

// Run executes one hook job. Row-level failures are logged and skipped; the
// job only fails when nothing at all can be produced or a batch-wide step
// breaks. Terminal failures are persisted with their reason.
func (o *Orchestrator) Run(ctx context.Context, job *models.HookJob, narrator Narrator) error {
	log := o.Log.WithField("job", job.ID)

	fail := func(reason string, err error) error {
		wrapped := fmt.Errorf("%s: %w", reason, err)
		if dbErr := o.Store.FailHookJob(job.ID, wrapped.Error()); dbErr != nil {
			log.WithError(dbErr).Error("Could not persist job failure")
		}
		return wrapped
	}

	width, height, ok := job.OutputDimensions()
	if !ok {
		return fail("invalid aspect ratio", fmt.Errorf("%q", job.AspectRatio))
	}
	boxColor, err := sheets.ParseHexColor(job.BoxColor)
	if err != nil {
		return fail("invalid box color", err)
	}
	fontColor, err := sheets.ParseHexColor(job.FontColor)
	if err != nil {
		return fail("invalid font color", err)
	}

	if err := o.Store.SetHookProgress(job.ID, progressStarted); err != nil {
		log.WithError(err).Warn("Could not record initial progress")
	}

	rows, err := o.loadRows(ctx, job)
	if err != nil {
		return fail("loading hook rows", err)
	}
	log.WithField("rows", len(rows)).Info("Loaded hook rows")

	tempDir, err := os.MkdirTemp(o.WorkDir, "hooks-"+job.ID.String()+"-")
	if err != nil {
		return fail("creating work dir", err)
	}
	defer os.RemoveAll(tempDir)

	pool, err := o.fetchClipPool(tempDir, job.SourceVideoPath)
	if err != nil {
		return fail("fetching source clips", err)
	}

	// Phase A: narration, serial. A single synthesis failure fails the
	// batch since every later step keys off the audio durations.
	audioDir := filepath.Join(tempDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return fail("creating audio dir", err)
	}
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return fail("job canceled", err)
		}
		r := &rows[i]
		r.audioPath = filepath.Join(audioDir, fmt.Sprintf("voice_%d.mp3", r.index))
		if err := narrator.Synthesize(ctx, r.text, r.audioPath); err != nil {
			return fail(fmt.Sprintf("synthesizing narration for row %d", r.index+1), err)
		}
		dur, err := o.Prober.Duration(ctx, r.audioPath)
		if err != nil {
			return fail(fmt.Sprintf("probing narration for row %d", r.index+1), err)
		}
		r.audioDur = dur.Seconds()
	}
	if err := o.Store.SetHookProgress(job.ID, progressAudioDone); err != nil {
		log.WithError(err).Warn("Could not record narration progress")
	}

	// Phase B: rendering, in waves of the job's parallelism. Each wave
	// joins before the next starts.
	parallelism := job.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	var done, rendered int64
	renderRow := func(r *row) {
		if err := o.renderRow(ctx, job, r, renderParams{
			width:     width,
			height:    height,
			boxColor:  boxColor,
			fontColor: fontColor,
			pool:      pool,
			tempDir:   tempDir,
		}); err != nil {
			log.WithError(err).WithField("row", r.index+1).Error("Row failed, skipping")
		} else {
			atomic.AddInt64(&rendered, 1)
		}
		n := atomic.AddInt64(&done, 1)
		progress := progressAudioDone + int(progressRenderSpan*n/int64(len(rows)))
		if err := o.Store.SetHookProgress(job.ID, progress); err != nil {
			log.WithError(err).Warn("Could not record render progress")
		}
	}

	for start := 0; start < len(rows); start += parallelism {
		if err := ctx.Err(); err != nil {
			return fail("job canceled", err)
		}
		end := start + parallelism
		if end > len(rows) {
			end = len(rows)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(r *row) {
				defer wg.Done()
				renderRow(r)
			}(&rows[i])
		}
		wg.Wait()
	}

	if rendered == 0 {
		return fail("rendering", errors.New("no row produced a video"))
	}

	if o.Credits != nil {
		if err := o.Credits.DebitHooks(job.UserID, int(rendered)); err != nil {
			log.WithError(err).Error("Could not debit hook credits")
		}
	}

	if err := o.Store.CompleteHookJob(job.ID); err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	log.WithField("rendered", rendered).Info("Hook batch completed")
	return nil
}

// loadRows joins the sheet's hook texts with their word coloring. Only the
// first column is read; a sheet with a single column is the expected shape.
func (o *Orchestrator) loadRows(ctx context.Context, job *models.HookJob) ([]row, error) {
	values, err := o.Sheets.FetchValues(ctx, job.GoogleSheetsLink)
	if err != nil {
		return nil, err
	}
	colors, err := o.Sheets.FetchWordColors(ctx, job.GoogleSheetsLink)
	if err != nil {
		return nil, err
	}

	var rows []row
	for i, cells := range values {
		if len(cells) == 0 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		r := row{index: i, text: cells[0]}
		if i < len(colors) {
			for _, cell := range colors[i] {
				r.words = append(r.words, cell...)
			}
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil, sheets.ErrEmptySource
	}
	return rows, nil
}

// fetchClipPool downloads the job's source archive and extracts its video
// files in name order.
func (o *Orchestrator) fetchClipPool(tempDir, sourcePath string) ([]string, error) {
	archivePath := filepath.Join(tempDir, "source.zip")
	if err := o.Blobs.Download(storage.BucketSourceVideos, sourcePath, archivePath); err != nil {
		return nil, err
	}
	clipDir := filepath.Join(tempDir, "clips")
	pool, err := extractClips(archivePath, clipDir)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, errors.New("source archive contains no video files")
	}
	return pool, nil
}

type renderParams struct {
	width, height int
	boxColor      sheets.Color
	fontColor     sheets.Color
	pool          []string
	tempDir       string
}

func (o *Orchestrator) renderRow(ctx context.Context, job *models.HookJob, r *row, p renderParams) error {
	// Underscores are narration-only markers; they never render.
	displayText := strings.ReplaceAll(r.text, "_", "")

	overlay, err := o.Engine.Build(captions.Params{
		HookText:  displayText,
		Width:     p.width,
		Height:    p.height,
		BoxColor:  p.boxColor,
		TextColor: p.fontColor,
		Words:     r.words,
		Portrait:  job.AspectRatio == models.AspectTikTok,
	})
	if err != nil {
		return err
	}

	clips := compose.SelectClips(p.pool, r.index, r.audioDur)
	usable := o.Renderer.UsableClips(ctx, clips)
	if len(usable) == 0 {
		return fmt.Errorf("no usable clips for row %d", r.index+1)
	}

	fileName := fmt.Sprintf("hook_%d.mp4", r.index)
	outputPath := filepath.Join(p.tempDir, fileName)
	req := compose.Request{
		Clips:         usable,
		AudioPath:     r.audioPath,
		AudioDuration: r.audioDur,
		Width:         p.width,
		Height:        p.height,
		Overlay:       overlay,
		FontFile:      o.FontFile,
		OutputPath:    outputPath,
	}
	if job.AddWatermark {
		req.WatermarkPath = o.WatermarkPath
	}
	if err := o.Renderer.Compose(ctx, req, nil); err != nil {
		return err
	}

	f, err := os.Open(outputPath)
	if err != nil {
		return fmt.Errorf("opening rendered segment: %w", err)
	}
	defer f.Close()

	storagePath := fmt.Sprintf("%s/%s", job.ID, storage.SanitizeFileName(fileName))
	if err := o.Blobs.Upload(storage.BucketHookVideos, storagePath, f, "video/mp4"); err != nil {
		return err
	}

	return o.Store.CreateSegment(&models.RenderedSegment{
		ID:          uuid.New(),
		HookJobID:   job.ID,
		FileName:    fileName,
		StoragePath: storagePath,
	})
}

// extractClips unzips the source archive and returns the extracted video
// paths sorted by name. Directory entries and non-video files are ignored.
func extractClips(archivePath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening source archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	var clips []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isVideoFile(f.Name) {
			continue
		}
		// Flatten the archive layout; only the base name matters.
		dest := filepath.Join(destDir, filepath.Base(f.Name))
		if err := extractFile(f, dest); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		clips = append(clips, dest)
	}
	sort.Strings(clips)
	return clips, nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func isVideoFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mov", ".mkv", ".webm", ".avi":
		return true
	}
	return false
}
