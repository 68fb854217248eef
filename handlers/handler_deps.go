package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ubongpr7/hooks/internal/account"
	"github.com/ubongpr7/hooks/internal/storage"
	"github.com/ubongpr7/hooks/models"
)

// HookStore is the hook-job persistence surface the gateway needs.
type HookStore interface {
	CreateHookJob(job *models.HookJob) error
	GetHookJob(id uuid.UUID) (*models.HookJob, error)
	ListSegments(jobID uuid.UUID) ([]models.RenderedSegment, error)
}

// MergeStore is the merge-job persistence surface the gateway needs.
type MergeStore interface {
	CreateMergeJob(job *models.MergeJob) error
	GetMergeJob(id uuid.UUID) (*models.MergeJob, error)
	CreateUploadedVideo(v *models.UploadedVideo) error
	ListMergedSegments(jobID uuid.UUID) ([]models.MergedSegment, error)
}

// Accounts looks up subscriptions for credit and plan gating.
type Accounts interface {
	Get(userID uuid.UUID) (*account.Subscription, error)
}

// SheetChecker verifies a spreadsheet link resolves to usable rows.
type SheetChecker interface {
	FetchValues(ctx context.Context, link string) ([][]string, error)
}

// KeyChecker verifies a speech API key.
type KeyChecker interface {
	Check(ctx context.Context, apiKey string) error
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Hooks    HookStore
	Merges   MergeStore
	Accounts Accounts
	Blobs    storage.BlobStore
	Sheets   SheetChecker
	Keys     KeyChecker
	Validate *validator.Validate
	Logger   *logrus.Logger
}

// NewApplicationHandler creates an ApplicationHandler with the given
// dependencies.
func NewApplicationHandler(hooks HookStore, merges MergeStore, accounts Accounts, blobs storage.BlobStore, sheets SheetChecker, keys KeyChecker, logger *logrus.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		Hooks:    hooks,
		Merges:   merges,
		Accounts: accounts,
		Blobs:    blobs,
		Sheets:   sheets,
		Keys:     keys,
		Validate: validator.New(),
		Logger:   logger,
	}
}

// ErrorResponse is the common error payload shape.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
