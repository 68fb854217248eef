package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ubongpr7/hooks/config"
	"github.com/ubongpr7/hooks/internal/account"
	"github.com/ubongpr7/hooks/internal/captions"
	"github.com/ubongpr7/hooks/internal/compose"
	"github.com/ubongpr7/hooks/internal/db"
	"github.com/ubongpr7/hooks/internal/ffmpeg"
	"github.com/ubongpr7/hooks/internal/hooks"
	"github.com/ubongpr7/hooks/internal/merge"
	"github.com/ubongpr7/hooks/internal/sheets"
	"github.com/ubongpr7/hooks/internal/storage"
	"github.com/ubongpr7/hooks/internal/tts"
	"github.com/ubongpr7/hooks/internal/worker"
	"github.com/ubongpr7/hooks/models"
)

// processor polls the database for submitted jobs and runs them on the
// worker pool. A job counts as pending until its first progress write, so a
// restart picks up anything that was queued but never started.
type processor struct {
	store      *db.Store
	hooks      *hooks.Orchestrator
	merges     *merge.Orchestrator
	dispatcher *worker.Dispatcher
	registry   *worker.Registry
	log        *logrus.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func (p *processor) claim(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[id]; ok {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

func (p *processor) release(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
}

// hookRun adapts one hook job to the worker pool.
type hookRun struct {
	p   *processor
	job models.HookJob
}

func (r *hookRun) ID() string { return r.job.ID.String() }

func (r *hookRun) Execute(ctx context.Context) error {
	defer r.p.release(r.job.ID)
	ctx = r.p.registry.Register(ctx, r.job.ID)
	defer r.p.registry.Release(r.job.ID)

	narrator := tts.NewSynthesizer(r.job.TTSAPIKey, r.job.VoiceID, r.p.log)
	return r.p.hooks.Run(ctx, &r.job, narrator)
}

// mergeRun adapts one merge job to the worker pool.
type mergeRun struct {
	p   *processor
	job models.MergeJob
}

func (r *mergeRun) ID() string { return r.job.ID.String() }

func (r *mergeRun) Execute(ctx context.Context) error {
	defer r.p.release(r.job.ID)
	ctx = r.p.registry.Register(ctx, r.job.ID)
	defer r.p.registry.Release(r.job.ID)

	return r.p.merges.Run(ctx, &r.job)
}

func (p *processor) submit(id uuid.UUID, job worker.Job) {
	if !p.claim(id) {
		return
	}
	if err := p.dispatcher.Submit(job); err != nil {
		// Queue is full; the job stays pending and the next poll retries.
		p.release(id)
		p.log.WithError(err).Warnf("Could not queue job %s", id)
	}
}

func (p *processor) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		hookJobs, err := p.store.ListPendingHookJobs()
		if err != nil {
			p.log.WithError(err).Error("Could not list pending hook jobs")
		}
		for _, job := range hookJobs {
			p.submit(job.ID, &hookRun{p: p, job: job})
		}

		mergeJobs, err := p.store.ListPendingMergeJobs()
		if err != nil {
			p.log.WithError(err).Error("Could not list pending merge jobs")
		}
		for _, job := range mergeJobs {
			p.submit(job.ID, &mergeRun{p: p, job: job})
		}
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	config.InitLogger()
	log := config.Logger()
	log.Info("Starting video processor")

	if err := config.InitSupabase(); err != nil {
		log.Fatalf("Failed to initialize Supabase: %v", err)
	}

	store := db.NewStore(config.SupabaseClient, log)
	accounts := account.NewService(config.SupabaseClient, log)
	blobs := storage.NewSupabaseStore(config.SupabaseClient.Storage, log)
	prober := ffmpeg.NewProber()

	hookOrch := &hooks.Orchestrator{
		Store:         store,
		Blobs:         blobs,
		Sheets:        sheets.NewExtractor(config.GetGoogleAPIKey(), log),
		Prober:        prober,
		Renderer:      compose.NewComposer(log),
		Credits:       accounts,
		Engine:        captions.NewEngine(log),
		Log:           log,
		WorkDir:       os.Getenv("WORK_DIR"),
		WatermarkPath: os.Getenv("WATERMARK_PATH"),
		FontFile:      os.Getenv("CAPTION_FONT_FILE"),
	}
	mergeOrch := &merge.Orchestrator{
		Store:       store,
		Blobs:       blobs,
		Prober:      prober,
		Runner:      ffmpeg.NewRunner(),
		Credits:     accounts,
		Log:         log,
		WorkDir:     os.Getenv("WORK_DIR"),
		Parallelism: envInt("FFMPEG_PARALLELISM", 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := worker.NewDispatcher(envInt("WORKER_COUNT", 5), envInt("QUEUE_SIZE", 100), log)
	dispatcher.Run(ctx)

	proc := &processor{
		store:      store,
		hooks:      hookOrch,
		merges:     mergeOrch,
		dispatcher: dispatcher,
		registry:   worker.NewRegistry(),
		log:        log,
		inFlight:   map[uuid.UUID]struct{}{},
	}
	go proc.poll(ctx, time.Duration(envInt("POLL_INTERVAL_SECONDS", 5))*time.Second)

	// Small admin surface: liveness plus job cancellation.
	admin := fiber.New()
	admin.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Video processor is healthy",
		})
	})
	admin.Post("/internal/jobs/:id/cancel", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid job ID",
			})
		}
		if !proc.registry.Cancel(id) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status":  "error",
				"message": "Job is not running",
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "success",
			"message": "Job canceled",
		})
	})

	adminPort := os.Getenv("ADMIN_PORT")
	if adminPort == "" {
		adminPort = "8081"
	}
	go func() {
		if err := admin.Listen(":" + adminPort); err != nil {
			log.Fatalf("Admin listener failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down video processor")
	cancel()
	dispatcher.Stop()
	if err := admin.Shutdown(); err != nil {
		log.WithError(err).Error("Admin listener shutdown failed")
	}
	log.Info("Video processor shut down gracefully")
}
