package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status values shared by hook and merge jobs.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Supported output aspect ratios.
const (
	AspectSquare    = "square"    // 1080x1080
	AspectVertical  = "vertical"  // 1080x1350
	AspectTikTok    = "tiktok"    // 1080x1920, portrait caption chips
	AspectLandscape = "landscape" // 1920x1080
)

// HookJob represents the structure of a hook generation job in the database.
type HookJob struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	SourceVideoPath  string     `json:"source_video_path"`
	GoogleSheetsLink string     `json:"google_sheets_link"`
	TTSAPIKey        string     `json:"tts_api_key"`
	VoiceID          string     `json:"voice_id"`
	BoxColor         string     `json:"box_color"`  // hex, caption band fill
	FontColor        string     `json:"font_color"` // hex, default text color
	AspectRatio      string     `json:"aspect_ratio"`
	Parallelism      int        `json:"parallelism"`
	AddWatermark     bool       `json:"add_watermark"`
	Progress         int        `json:"progress"` // 0-100, never decreases
	Status           string     `json:"status"`
	FailureReason    *string    `json:"failure_reason,omitempty"` // Nullable TEXT
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"` // Nullable TIMESTAMPTZ
}

// OutputDimensions maps the job's aspect ratio to the target encode size.
// The second return is false for unsupported values.
func (j *HookJob) OutputDimensions() (width, height int, ok bool) {
	switch j.AspectRatio {
	case AspectSquare:
		return 1080, 1080, true
	case AspectVertical:
		return 1080, 1350, true
	case AspectTikTok:
		return 1080, 1920, true
	case AspectLandscape:
		return 1920, 1080, true
	default:
		return 0, 0, false
	}
}

// RenderedSegment represents one produced hook video belonging to a HookJob.
// Rows are immutable after creation and removed when the job is cleared.
type RenderedSegment struct {
	ID          uuid.UUID `json:"id"`
	HookJobID   uuid.UUID `json:"hook_job_id"`
	FileName    string    `json:"file_name"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}
