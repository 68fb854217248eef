package main

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/ubongpr7/hooks/config"
	"github.com/ubongpr7/hooks/handlers"
	"github.com/ubongpr7/hooks/internal/account"
	"github.com/ubongpr7/hooks/internal/db"
	"github.com/ubongpr7/hooks/internal/sheets"
	"github.com/ubongpr7/hooks/internal/storage"
	"github.com/ubongpr7/hooks/internal/tts"
)

func main() {
	config.InitLogger()
	log := config.Logger()

	if err := config.InitSupabase(); err != nil {
		log.Fatalf("Failed to initialize Supabase: %v", err)
	}

	store := db.NewStore(config.SupabaseClient, log)
	accounts := account.NewService(config.SupabaseClient, log)
	blobs := storage.NewSupabaseStore(config.SupabaseClient.Storage, log)
	extractor := sheets.NewExtractor(config.GetGoogleAPIKey(), log)
	keys := tts.NewKeyChecker()

	h := handlers.NewApplicationHandler(store, store, accounts, blobs, extractor, keys, log)

	app := fiber.New(fiber.Config{
		// Merge inputs are whole videos.
		BodyLimit: 512 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "API Gateway is healthy",
		})
	})

	apiV1 := app.Group("/api/v1")

	// Hook batch routes
	apiV1.Post("/hooks", h.CreateHookJob)
	apiV1.Get("/hooks/:id", h.GetHookJob)
	apiV1.Get("/hooks/:id/videos", h.ListHookVideos)
	apiV1.Post("/hooks/validate-link", h.ValidateSheetLink)
	apiV1.Post("/hooks/validate-key", h.ValidateTTSKey)

	// Merge routes
	apiV1.Post("/merges", h.CreateMergeJob)
	apiV1.Get("/merges/:id", h.GetMergeJob)
	apiV1.Post("/merges/:id/videos", h.UploadMergeVideo)
	apiV1.Get("/merges/:id/videos", h.ListMergedVideos)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Infof("Starting API Gateway on port %s", port)
	log.Fatal(app.Listen(":" + port))
}
