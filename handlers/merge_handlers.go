package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ubongpr7/hooks/internal/storage"
	"github.com/ubongpr7/hooks/models"
)

// CreateMergeJobRequest is the submission payload for a merge job.
type CreateMergeJobRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

// CreateMergeJob opens a merge job the client can then upload videos into.
func (h *ApplicationHandler) CreateMergeJob(c *fiber.Ctx) error {
	req := new(CreateMergeJobRequest)
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
	if !sub.CanMerge() {
		return c.Status(fiber.StatusPaymentRequired).JSON(ErrorResponse{
			Status:  "error",
			Message: "No merge credits remaining",
		})
	}

	job := &models.MergeJob{
		ID:     uuid.New(),
		UserID: req.UserID,
		Status: models.StatusProcessing,
	}
	if err := h.Merges.CreateMergeJob(job); err != nil {
		h.Logger.Errorf("Error creating merge job: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Status:  "error",
			Message: "Could not create job",
		})
	}

	h.Logger.Infof("Created merge job %s for user %s", job.ID, job.UserID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": "Merge job created",
		"data":    job,
	})
}

// UploadMergeVideo receives one multipart video upload for a merge job. The
// "kind" form field says whether it is a short clip or the large video.
func (h *ApplicationHandler) UploadMergeVideo(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: "Invalid job ID",
		})
	}
	if _, err := h.Merges.GetMergeJob(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Job %s not found", id),
		})
	}

	kind := c.FormValue("kind")
	if kind != models.VideoKindShort && kind != models.VideoKindLarge {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("kind must be %q or %q", models.VideoKindShort, models.VideoKindLarge),
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: "Missing video file",
		})
	}

	src, err := file.Open()
	if err != nil {
		h.Logger.Errorf("Error opening upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Status:  "error",
			Message: "Could not read upload",
		})
	}
	defer src.Close()

	fileName := storage.SanitizeFileName(file.Filename)
	storagePath := fmt.Sprintf("%s/%s/%s", id, kind, fileName)
	contentType := file.Header.Get("Content-Type")
	if err := h.Blobs.Upload(storage.BucketMergeVideos, storagePath, src, contentType); err != nil {
		h.Logger.Errorf("Error uploading %s: %v", storagePath, err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Status:  "error",
			Message: "Could not store upload",
		})
	}

	video := &models.UploadedVideo{
		ID:          uuid.New(),
		MergeJobID:  id,
		Kind:        kind,
		StoragePath: storagePath,
	}
	if err := h.Merges.CreateUploadedVideo(video); err != nil {
		h.Logger.Errorf("Error recording upload %s: %v", storagePath, err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Status:  "error",
			Message: "Could not record upload",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"data":   video,
	})
}

// GetMergeJob returns one merge job's status and progress.
func (h *ApplicationHandler) GetMergeJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: "Invalid job ID",
		})
	}

	job, err := h.Merges.GetMergeJob(id)
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

// ListMergedVideos returns a merge job's outputs with signed download
// links.
func (h *ApplicationHandler) ListMergedVideos(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Status:  "error",
			Message: "Invalid job ID",
		})
	}

	segments, err := h.Merges.ListMergedSegments(id)
	if err != nil {
		h.Logger.Errorf("Error listing merged videos for %s: %v", id, err)
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
		url, err := h.Blobs.SignedURL(storage.BucketMergeVideos, seg.StoragePath, signedURLExpirySeconds)
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
