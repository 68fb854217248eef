package db

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/ubongpr7/hooks/models"
)

const (
	hookJobsTable       = "hook_jobs"
	hookSegmentsTable   = "hook_segments"
	mergeJobsTable      = "merge_jobs"
	uploadedVideosTable = "uploaded_videos"
	mergedSegmentsTable = "merged_segments"
)

// Store is the PostgREST-backed persistence layer for hook and merge jobs.
type Store struct {
	client *supa.Client
	log    *logrus.Logger

	// countersMu guards the per-job frame counter locks; frame deltas are
	// read-modify-write against PostgREST and must be serialized per job.
	countersMu sync.Mutex
	counters   map[uuid.UUID]*sync.Mutex
}

// NewStore creates a Store on the shared Supabase client.
func NewStore(client *supa.Client, log *logrus.Logger) *Store {
	return &Store{
		client:   client,
		log:      log,
		counters: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) jobLock(id uuid.UUID) *sync.Mutex {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	mu, ok := s.counters[id]
	if !ok {
		mu = &sync.Mutex{}
		s.counters[id] = mu
	}
	return mu
}

// --- hook jobs ---

// CreateHookJob inserts a new hook job record.
func (s *Store) CreateHookJob(job *models.HookJob) error {
	var results []models.HookJob
	_, err := s.client.From(hookJobsTable).
		Insert(job, false, "", "representation", "").
		ExecuteTo(&results)
	if err != nil {
		return fmt.Errorf("inserting hook job: %w", err)
	}
	if len(results) > 0 {
		*job = results[0]
	}
	return nil
}

// GetHookJob fetches one hook job by ID.
func (s *Store) GetHookJob(id uuid.UUID) (*models.HookJob, error) {
	var results []models.HookJob
	_, err := s.client.From(hookJobsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("fetching hook job %s: %w", id, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("hook job %s not found", id)
	}
	return &results[0], nil
}

// SetHookProgress advances a hook job's progress. The update is filtered on
// the current value so progress never moves backwards, even with concurrent
// writers.
func (s *Store) SetHookProgress(id uuid.UUID, progress int) error {
	if progress > 100 {
		progress = 100
	}
	update := map[string]interface{}{
		"progress":   progress,
		"updated_at": time.Now().UTC(),
	}
	_, _, err := s.client.From(hookJobsTable).
		Update(update, "", "").
		Eq("id", id.String()).
		Lt("progress", strconv.Itoa(progress)).
		Execute()
	if err != nil {
		return fmt.Errorf("updating hook job %s progress: %w", id, err)
	}
	return nil
}

// CompleteHookJob marks a hook job finished with full progress.
func (s *Store) CompleteHookJob(id uuid.UUID) error {
	now := time.Now().UTC()
	update := map[string]interface{}{
		"status":       models.StatusCompleted,
		"progress":     100,
		"updated_at":   now,
		"completed_at": now,
	}
	return s.updateJob(hookJobsTable, id, update)
}

// FailHookJob marks a hook job terminally failed and records why.
func (s *Store) FailHookJob(id uuid.UUID, reason string) error {
	update := map[string]interface{}{
		"status":         models.StatusFailed,
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	}
	return s.updateJob(hookJobsTable, id, update)
}

// CreateSegment records one rendered hook video.
func (s *Store) CreateSegment(seg *models.RenderedSegment) error {
	_, _, err := s.client.From(hookSegmentsTable).
		Insert(seg, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("inserting segment for job %s: %w", seg.HookJobID, err)
	}
	return nil
}

// ListSegments returns the rendered videos of a hook job in creation order.
func (s *Store) ListSegments(jobID uuid.UUID) ([]models.RenderedSegment, error) {
	var results []models.RenderedSegment
	_, err := s.client.From(hookSegmentsTable).
		Select("*", "", false).
		Eq("hook_job_id", jobID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("listing segments for job %s: %w", jobID, err)
	}
	return results, nil
}

// ListPendingHookJobs returns hook jobs that no worker has picked up yet.
// A job counts as pending until its first progress write.
func (s *Store) ListPendingHookJobs() ([]models.HookJob, error) {
	var results []models.HookJob
	_, err := s.client.From(hookJobsTable).
		Select("*", "", false).
		Eq("status", models.StatusProcessing).
		Eq("progress", "0").
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("listing pending hook jobs: %w", err)
	}
	return results, nil
}

// --- merge jobs ---

// CreateMergeJob inserts a new merge job record.
func (s *Store) CreateMergeJob(job *models.MergeJob) error {
	var results []models.MergeJob
	_, err := s.client.From(mergeJobsTable).
		Insert(job, false, "", "representation", "").
		ExecuteTo(&results)
	if err != nil {
		return fmt.Errorf("inserting merge job: %w", err)
	}
	if len(results) > 0 {
		*job = results[0]
	}
	return nil
}

// GetMergeJob fetches one merge job by ID.
func (s *Store) GetMergeJob(id uuid.UUID) (*models.MergeJob, error) {
	var results []models.MergeJob
	_, err := s.client.From(mergeJobsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("fetching merge job %s: %w", id, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("merge job %s not found", id)
	}
	return &results[0], nil
}

// ListPendingMergeJobs returns merge jobs that no worker has picked up yet.
func (s *Store) ListPendingMergeJobs() ([]models.MergeJob, error) {
	var results []models.MergeJob
	_, err := s.client.From(mergeJobsTable).
		Select("*", "", false).
		Eq("status", models.StatusProcessing).
		Eq("progress", "0").
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("listing pending merge jobs: %w", err)
	}
	return results, nil
}

// SetMergeTotalFrames records the precomputed frame total for a merge job.
func (s *Store) SetMergeTotalFrames(id uuid.UUID, total int64) error {
	return s.updateJob(mergeJobsTable, id, map[string]interface{}{
		"total_frames": total,
		"updated_at":   time.Now().UTC(),
	})
}

// AddMergeProgress folds a percent-done increment and a frame-count delta
// into the job's blended progress. Until the job completes, progress is the
// fixed percent-done milestones (capped below 50) plus the frame fraction
// scaled to the other half. The read-modify-write is serialized per job.
func (s *Store) AddMergeProgress(id uuid.UUID, percentDelta int, frameDelta int64) error {
	mu := s.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := s.GetMergeJob(id)
	if err != nil {
		return err
	}

	percentDone := job.PercentDone + percentDelta
	if percentDone > 49 {
		percentDone = 49
	}
	framesDone := job.TotalFramesDone + frameDelta

	progress := percentDone
	if job.TotalFrames > 0 {
		progress += int(float64(framesDone) / float64(job.TotalFrames) * 50)
	}
	if progress > 99 {
		progress = 99
	}
	if progress < job.Progress {
		progress = job.Progress
	}

	return s.updateJob(mergeJobsTable, id, map[string]interface{}{
		"percent_done":      percentDone,
		"total_frames_done": framesDone,
		"progress":          progress,
		"updated_at":        time.Now().UTC(),
	})
}

// CompleteMergeJob marks a merge job finished with full progress.
func (s *Store) CompleteMergeJob(id uuid.UUID) error {
	now := time.Now().UTC()
	return s.updateJob(mergeJobsTable, id, map[string]interface{}{
		"status":       models.StatusCompleted,
		"progress":     100,
		"percent_done": 100,
		"updated_at":   now,
		"completed_at": now,
	})
}

// FailMergeJob marks a merge job terminally failed and records why.
func (s *Store) FailMergeJob(id uuid.UUID, reason string) error {
	return s.updateJob(mergeJobsTable, id, map[string]interface{}{
		"status":         models.StatusFailed,
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	})
}

// ListUploadedVideos returns a merge job's inputs of one kind in upload
// order.
func (s *Store) ListUploadedVideos(jobID uuid.UUID, kind string) ([]models.UploadedVideo, error) {
	var results []models.UploadedVideo
	_, err := s.client.From(uploadedVideosTable).
		Select("*", "", false).
		Eq("merge_job_id", jobID.String()).
		Eq("kind", kind).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("listing %s videos for job %s: %w", kind, jobID, err)
	}
	return results, nil
}

// CreateUploadedVideo records one uploaded merge input.
func (s *Store) CreateUploadedVideo(v *models.UploadedVideo) error {
	_, _, err := s.client.From(uploadedVideosTable).
		Insert(v, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("inserting uploaded video for job %s: %w", v.MergeJobID, err)
	}
	return nil
}

// ListMergedSegments returns a merge job's outputs in creation order.
func (s *Store) ListMergedSegments(jobID uuid.UUID) ([]models.MergedSegment, error) {
	var results []models.MergedSegment
	_, err := s.client.From(mergedSegmentsTable).
		Select("*", "", false).
		Eq("merge_job_id", jobID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("listing merged segments for job %s: %w", jobID, err)
	}
	return results, nil
}

// DeleteMergedSegments drops all of a merge job's output rows. A reprocessed
// job starts from a clean slate so a stale segment cannot outlive the blob it
// points at.
func (s *Store) DeleteMergedSegments(jobID uuid.UUID) error {
	_, _, err := s.client.From(mergedSegmentsTable).
		Delete("", "").
		Eq("merge_job_id", jobID.String()).
		Execute()
	if err != nil {
		return fmt.Errorf("deleting merged segments for job %s: %w", jobID, err)
	}
	return nil
}

// CreateMergedSegment records one concatenated output pair.
func (s *Store) CreateMergedSegment(seg *models.MergedSegment) error {
	_, _, err := s.client.From(mergedSegmentsTable).
		Insert(seg, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("inserting merged segment for job %s: %w", seg.MergeJobID, err)
	}
	return nil
}

func (s *Store) updateJob(table string, id uuid.UUID, update map[string]interface{}) error {
	_, _, err := s.client.From(table).
		Update(update, "", "").
		Eq("id", id.String()).
		Execute()
	if err != nil {
		return fmt.Errorf("updating %s record %s: %w", table, id, err)
	}
	return nil
}
