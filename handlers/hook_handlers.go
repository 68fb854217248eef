package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ubongpr7/hooks/internal/sheets"
	"github.com/ubongpr7/hooks/internal/storage"
	"github.com/ubongpr7/hooks/internal/tts"
	"github.com/ubongpr7/hooks/models"
)

const signedURLExpirySeconds = 3600

// CreateHookJobRequest is the submission payload for a hook batch.
type CreateHookJobRequest struct {
	UserID           uuid.UUID `json:"user_id" validate:"required"`
	SourceVideoPath  string    `json:"source_video_path" validate:"required"`
	GoogleSheetsLink string    `json:"google_sheets_link" validate:"required,url"`
	TTSAPIKey        string    `json:"tts_api_key" validate:"required"`
	VoiceID          string    `json:"voice_id" validate:"required"`
	BoxColor         string    `json:"box_color" validate:"required,hexcolor"`
	FontColor        string    `json:"font_color" validate:"required,hexcolor"`
	AspectRatio      string    `json:"aspect_ratio" validate:"required,oneof=square vertical tiktok landscape"`
	Parallelism      int       `json:"parallelism" validate:"omitempty,min=1,max=10"`
}

// CreateHookJob accepts a hook batch submission, gates it on the user's
// credits and queues it for processing.
func (h *ApplicationHandler) CreateHookJob(c *fiber.Ctx) error {
	req := new(CreateHookJobRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Cannot parse job JSON: %v", err),
		})
	}
	if err := h.Validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Invalid job payload: %v", err),
		})
	}

	sub, err := h.Accounts.Get(req.UserID)
	if err != nil {
		h.Logger.Errorf("Error fetching subscription for %s: %v", req.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Status:  "error",
			Message: "Could not verify subscription",
		})
	}
	if !sub.CanGenerateHooks() {
		return c.Status(fiber.StatusPaymentRequired).JSON(ErrorResponse{
			Status:  "error",
			Message: "No hook credits remaining",
		})
	}

	parallelism := req.Parallelism
	if parallelism == 0 {
		parallelism = 1
	}

	job := &models.HookJob{
		ID:               uuid.New(),
		UserID:           req.UserID,
		SourceVideoPath:  req.SourceVideoPath,
		GoogleSheetsLink: req.GoogleSheetsLink,
		TTSAPIKey:        req.TTSAPIKey,
		VoiceID:          req.VoiceID,
		BoxColor:         req.BoxColor,
		FontColor:        req.FontColor,
		AspectRatio:      req.AspectRatio,
		Parallelism:      parallelism,
		AddWatermark:     sub.IsFreePlan(),
		Status:           models.StatusProcessing,
	}
	if err := h.Hooks.CreateHookJob(job); err != nil {
		h.Logger.Errorf("Error creating hook job: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Status:  "error",
			Message: "Could not create job",
		})
	}

	h.Logger.Infof("Created hook job %s for user %s", job.ID, job.UserID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": "Hook job created",
		"data":    job,
	})
}

// GetHookJob returns one hook job's status and progress.
func (h *ApplicationHandler) GetHookJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: "Invalid job ID",
		})
	}

	job, err := h.Hooks.GetHookJob(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Job %s not found", id),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data":   job,
	})
}

// ListHookVideos returns the rendered videos of a job with signed download
// links.
func (h *ApplicationHandler) ListHookVideos(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: "Invalid job ID",
		})
	}

	segments, err := h.Hooks.ListSegments(id)
	if err != nil {
		h.Logger.Errorf("Error listing segments for %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Status:  "error",
			Message: "Could not list videos",
		})
	}

	type video struct {
		FileName string `json:"file_name"`
		URL      string `json:"url"`
	}
	videos := make([]video, 0, len(segments))
	for _, seg := range segments {
		url, err := h.Blobs.SignedURL(storage.BucketHookVideos, seg.StoragePath, signedURLExpirySeconds)
		if err != nil {
			h.Logger.Errorf("Error signing %s: %v", seg.StoragePath, err)
			continue
		}
		videos = append(videos, video{FileName: seg.FileName, URL: url})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data":   videos,
	})
}

// ValidateSheetRequest carries the link to verify.
type ValidateSheetRequest struct {
	GoogleSheetsLink string `json:"google_sheets_link" validate:"required,url"`
}

// ValidateSheetLink checks that a spreadsheet link parses, is reachable and
// contains at least one hook row.
func (h *ApplicationHandler) ValidateSheetLink(c *fiber.Ctx) error {
	req := new(ValidateSheetRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Cannot parse request JSON: %v", err),
		})
	}
	if err := h.Validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Invalid payload: %v", err),
		})
	}

	values, err := h.Sheets.FetchValues(c.Context(), req.GoogleSheetsLink)
	switch {
	case errors.Is(err, sheets.ErrInvalidLink):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: "Not a valid spreadsheet link",
		})
	case errors.Is(err, sheets.ErrEmptySource):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Status:  "error",
			Message: "Spreadsheet has no hook rows",
		})
	case err != nil:
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Status:  "error",
			Message: "Spreadsheet is not reachable",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data":   fiber.Map{"rows": len(values)},
	})
}

// ValidateKeyRequest carries the speech API key to verify.
type ValidateKeyRequest struct {
	TTSAPIKey string `json:"tts_api_key" validate:"required"`
}

// ValidateTTSKey checks a speech API key against the provider.
func (h *ApplicationHandler) ValidateTTSKey(c *fiber.Ctx) error {
	req := new(ValidateKeyRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Cannot parse request JSON: %v", err),
		})
	}
	if err := h.Validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Invalid payload: %v", err),
		})
	}

	if err := h.Keys.Check(c.Context(), req.TTSAPIKey); err != nil {
		var synthErr *tts.SynthesisError
		if errors.As(err, &synthErr) && (synthErr.StatusCode == http.StatusUnauthorized || synthErr.StatusCode == http.StatusForbidden) {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Status:  "error",
				Message: "Speech API key rejected",
			})
		}
		h.Logger.Errorf("Error checking speech key: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Status:  "error",
			Message: "Speech service is not reachable",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "success",
		"message": "Speech API key is valid",
	})
}
