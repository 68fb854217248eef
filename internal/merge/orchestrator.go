package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ubongpr7/hooks/internal/ffmpeg"
	"github.com/ubongpr7/hooks/internal/storage"
	"github.com/ubongpr7/hooks/models"
)

// concatAttempts bounds the retry loop for a pair concatenation. The delay
// between attempts lets a transiently missing intermediate land on disk.
const (
	concatAttempts = 2
	concatBackoff  = 500 * time.Millisecond
)

// JobStore is the persistence surface the merge pipeline needs.
type JobStore interface {
	SetMergeTotalFrames(id uuid.UUID, total int64) error
	AddMergeProgress(id uuid.UUID, percentDelta int, frameDelta int64) error
	CompleteMergeJob(id uuid.UUID) error
	FailMergeJob(id uuid.UUID, reason string) error
	ListUploadedVideos(jobID uuid.UUID, kind string) ([]models.UploadedVideo, error)
	ListMergedSegments(jobID uuid.UUID) ([]models.MergedSegment, error)
	DeleteMergedSegments(jobID uuid.UUID) error
	CreateMergedSegment(seg *models.MergedSegment) error
}

// Runner executes ffmpeg with frame progress callbacks.
type Runner interface {
	Run(ctx context.Context, args []string, onFrames func(delta int64)) error
}

// MediaProber reads stream facts off input files.
type MediaProber interface {
	Resolution(ctx context.Context, path string) (width, height int, err error)
	FrameCount(ctx context.Context, path string) int64
	HasAudio(ctx context.Context, path string) bool
}

// Credits debits a user's balance after a successful merge.
type Credits interface {
	DebitMergeCredits(userID uuid.UUID, n int) error
}

// Orchestrator runs merge jobs: normalize every input to the large video's
// resolution, then concatenate each short clip in front of the large video.
type Orchestrator struct {
	Store   JobStore
	Blobs   storage.BlobStore
	Prober  MediaProber
	Runner  Runner
	Credits Credits
	Log     *logrus.Logger

	// WorkDir hosts per-job temp directories; empty means the OS default.
	WorkDir string
	// Parallelism caps concurrent ffmpeg processes; zero means NumCPU.
	Parallelism int
}

type input struct {
	video        models.UploadedVideo
	localPath    string
	preprocessed string
	frames       int64
}

// Run executes one merge job. Unlike hook batches, any preprocessing or
// concatenation failure fails the whole job: every output pair depends on
// the shared large video, so a partial result set is not useful.
func (o *Orchestrator) Run(ctx context.Context, job *models.MergeJob) error {
	log := o.Log.WithField("job", job.ID)

	fail := func(reason string, err error) error {
		wrapped := fmt.Errorf("%s: %w", reason, err)
		if dbErr := o.Store.FailMergeJob(job.ID, wrapped.Error()); dbErr != nil {
			log.WithError(dbErr).Error("Could not persist job failure")
		}
		return wrapped
	}

	// First progress write also marks the job as picked up.
	if err := o.Store.AddMergeProgress(job.ID, 1, 0); err != nil {
		log.WithError(err).Warn("Could not record initial progress")
	}

	o.clearPreviousOutputs(job.ID, log)

	shortVideos, err := o.Store.ListUploadedVideos(job.ID, models.VideoKindShort)
	if err != nil {
		return fail("listing short videos", err)
	}
	largeVideos, err := o.Store.ListUploadedVideos(job.ID, models.VideoKindLarge)
	if err != nil {
		return fail("listing large videos", err)
	}
	if len(shortVideos) == 0 {
		return fail("validating inputs", errors.New("no short videos uploaded"))
	}
	if len(largeVideos) == 0 {
		return fail("validating inputs", errors.New("no large video uploaded"))
	}

	tempDir, err := os.MkdirTemp(o.WorkDir, "merge-"+job.ID.String()+"-")
	if err != nil {
		return fail("creating work dir", err)
	}
	defer os.RemoveAll(tempDir)

	shorts, err := o.download(tempDir, "short", shortVideos)
	if err != nil {
		return fail("downloading short videos", err)
	}
	larges, err := o.download(tempDir, "large", largeVideos[:1])
	if err != nil {
		return fail("downloading large video", err)
	}
	large := &larges[0]

	// The large video sets the reference resolution, rounded up to even so
	// yuv420p encoding accepts it.
	refW, refH, err := o.Prober.Resolution(ctx, large.localPath)
	if err != nil {
		return fail("probing reference resolution", err)
	}
	refW, refH = ffmpeg.EvenRound(refW), ffmpeg.EvenRound(refH)
	log.WithFields(logrus.Fields{"width": refW, "height": refH}).Info("Reference resolution")

	// Frame totals drive progress: every input is encoded once during
	// preprocessing and the large video is re-encoded once per pair.
	var totalShort int64
	for i := range shorts {
		shorts[i].frames = o.Prober.FrameCount(ctx, shorts[i].localPath)
		totalShort += shorts[i].frames
	}
	large.frames = o.Prober.FrameCount(ctx, large.localPath)
	total := 2*totalShort + large.frames + int64(len(shorts))*large.frames
	if total <= 0 {
		total = 1
	}
	if err := o.Store.SetMergeTotalFrames(job.ID, total); err != nil {
		log.WithError(err).Warn("Could not record frame total")
	}

	onFrames := func(delta int64) {
		if err := o.Store.AddMergeProgress(job.ID, 0, delta); err != nil {
			log.WithError(err).Warn("Could not record frame progress")
		}
	}

	limit := o.Parallelism
	if limit < 1 {
		limit = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	all := make([]*input, 0, len(shorts)+1)
	for i := range shorts {
		all = append(all, &shorts[i])
	}
	all = append(all, large)
	for _, in := range all {
		in := in
		g.Go(func() error {
			return o.preprocess(gctx, in, refW, refH, onFrames)
		})
	}
	if err := g.Wait(); err != nil {
		return fail("preprocessing inputs", err)
	}

	percentPerPair := 50 / len(shorts)

	cg, cctx := errgroup.WithContext(ctx)
	cg.SetLimit(limit)
	for i := range shorts {
		short := &shorts[i]
		cg.Go(func() error {
			return o.concatPair(cctx, job, short, large, tempDir, percentPerPair, onFrames)
		})
	}
	if err := cg.Wait(); err != nil {
		return fail("concatenating pairs", err)
	}

	if o.Credits != nil {
		if err := o.Credits.DebitMergeCredits(job.UserID, len(shorts)); err != nil {
			log.WithError(err).Error("Could not debit merge credits")
		}
	}

	if err := o.Store.CompleteMergeJob(job.ID); err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	log.WithField("pairs", len(shorts)).Info("Merge job completed")
	return nil
}

// clearPreviousOutputs removes the segments of an earlier run of the same
// job, blobs first and rows after, so a reprocess never leaves stale outputs
// behind. Failures are logged and the run proceeds: new outputs overwrite the
// old paths anyway.
func (o *Orchestrator) clearPreviousOutputs(jobID uuid.UUID, log *logrus.Entry) {
	segments, err := o.Store.ListMergedSegments(jobID)
	if err != nil {
		log.WithError(err).Warn("Could not list previous outputs")
		return
	}
	if len(segments) == 0 {
		return
	}
	paths := make([]string, 0, len(segments))
	for _, seg := range segments {
		paths = append(paths, seg.StoragePath)
	}
	if err := o.Blobs.Delete(storage.BucketMergeVideos, paths); err != nil {
		log.WithError(err).Warn("Could not delete previous output files")
	}
	if err := o.Store.DeleteMergedSegments(jobID); err != nil {
		log.WithError(err).Warn("Could not delete previous output records")
	}
	log.WithField("segments", len(segments)).Info("Cleared outputs of a previous run")
}

func (o *Orchestrator) download(tempDir, prefix string, videos []models.UploadedVideo) ([]input, error) {
	inputs := make([]input, len(videos))
	for i, v := range videos {
		localPath := filepath.Join(tempDir, fmt.Sprintf("%s_%d.mp4", prefix, i))
		if err := o.Blobs.Download(storage.BucketMergeVideos, v.StoragePath, localPath); err != nil {
			return nil, err
		}
		inputs[i] = input{video: v, localPath: localPath}
	}
	return inputs, nil
}

func (o *Orchestrator) preprocess(ctx context.Context, in *input, width, height int, onFrames func(int64)) error {
	in.preprocessed = strings.TrimSuffix(in.localPath, ".mp4") + "_norm.mp4"
	hasAudio := o.Prober.HasAudio(ctx, in.localPath)
	args := BuildPreprocessArgs(in.localPath, in.preprocessed, width, height, hasAudio)
	if err := o.Runner.Run(ctx, args, onFrames); err != nil {
		return fmt.Errorf("normalizing %s: %w", filepath.Base(in.localPath), err)
	}
	return nil
}

func (o *Orchestrator) concatPair(ctx context.Context, job *models.MergeJob, short, large *input, tempDir string, percent int, onFrames func(int64)) error {
	fileName := storage.SanitizeFileName(fmt.Sprintf("%s_%s.mp4",
		baseName(short.video.StoragePath), baseName(large.video.StoragePath)))
	outputPath := filepath.Join(tempDir, "out_"+filepath.Base(short.preprocessed))

	var err error
	for attempt := 1; attempt <= concatAttempts; attempt++ {
		if err = intermediatesExist(short.preprocessed, large.preprocessed); err == nil {
			err = o.Runner.Run(ctx, BuildConcatArgs([]string{short.preprocessed, large.preprocessed}, outputPath), onFrames)
		}
		if err == nil {
			break
		}
		if attempt < concatAttempts {
			o.Log.WithError(err).WithField("attempt", attempt).Warn("Pair concat failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(concatBackoff):
			}
		}
	}
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("concatenating %s: %w", fileName, err)
	}

	f, err := os.Open(outputPath)
	if err != nil {
		return fmt.Errorf("opening merged output: %w", err)
	}
	defer f.Close()

	storagePath := fmt.Sprintf("%s/merged/%s", job.ID, fileName)
	if err := o.Blobs.Upload(storage.BucketMergeVideos, storagePath, f, "video/mp4"); err != nil {
		return err
	}
	if err := o.Store.CreateMergedSegment(&models.MergedSegment{
		ID:          uuid.New(),
		MergeJobID:  job.ID,
		FileName:    fileName,
		StoragePath: storagePath,
	}); err != nil {
		return err
	}
	if err := o.Store.AddMergeProgress(job.ID, percent, 0); err != nil {
		o.Log.WithError(err).Warn("Could not record pair progress")
	}
	return nil
}

func intermediatesExist(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("intermediate %s missing: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
