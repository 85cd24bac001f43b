package main

import (
	"context"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/forensivid/forensivid/internal/api"
	"github.com/forensivid/forensivid/internal/database"
	"github.com/forensivid/forensivid/internal/enhance"
	"github.com/forensivid/forensivid/internal/inference/sidecar"
	"github.com/forensivid/forensivid/internal/jobs"
	"github.com/forensivid/forensivid/internal/pipeline"
	"github.com/forensivid/forensivid/internal/search"
	"github.com/forensivid/forensivid/internal/storage"
)

// sidecarEnhancer adapts the sidecar's learned super-resolution call to
// the enhancement stage's Enhancer interface.
type sidecarEnhancer struct {
	client *sidecar.Client
}

func (s sidecarEnhancer) Enhance(ctx context.Context, img image.Image) (image.Image, error) {
	return s.client.EnhanceImage(ctx, img)
}

func main() {
	port := getEnv("PORT", "8080")
	storageDir := getEnv("STORAGE_DIR", "./storage")

	maxSize, err := strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE", "524288000"), 10, 64)
	if err != nil {
		log.Fatal("Invalid MAX_UPLOAD_SIZE:", err)
	}

	dbConfig := loadDBConfig()

	store, err := storage.NewLocalStore(storageDir)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	if dbConfig.Type == "postgres" {
		migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")
		log.Printf("Running database migrations from %s", migrationsPath)
		if err := database.NewMigrator(db.Conn(), dbConfig.Type).Run(migrationsPath); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}
	}

	evidenceRepo := database.NewEvidenceRepo(db)
	custodyRepo := database.NewCustodyRepo(db)
	findingRepo := database.NewFindingRepo(db)
	motionRepo := database.NewMotionRepo(db)
	alertRepo := database.NewAlertRepo(db)
	matchRepo := database.NewMatchRepo(db)

	searchService := search.NewService(db, findingRepo, matchRepo, alertRepo, search.Config{
		Threshold: getEnvFloat("SEARCH_THRESHOLD", 0),
	})
	if err := searchService.Warm(context.Background()); err != nil {
		log.Fatal("Failed to warm similarity index:", err)
	}

	var dispatcher *jobs.Dispatcher
	sidecarCmd := os.Getenv("MODEL_SIDECAR")
	if sidecarCmd == "" {
		log.Printf("MODEL_SIDECAR not set; uploads are accepted but processing is disabled")
	} else {
		parts := strings.Fields(sidecarCmd)
		client, err := sidecar.Start(parts[0], parts[1:]...)
		if err != nil {
			log.Fatal("Failed to start model sidecar:", err)
		}
		defer client.Close()

		orch := pipeline.NewOrchestrator(pipeline.Deps{
			Evidence: evidenceRepo,
			Custody:  custodyRepo,
			Findings: findingRepo,
			Motion:   motionRepo,
			Alerts:   alertRepo,
			Store:    store,
			Objects:  client,
			Faces:    client,
			Embedder: client,
			Analyzer: client,
			Enhancer: enhance.NewFaceEnhancer(sidecarEnhancer{client: client}),
			Indexer:  searchService,
		}, pipeline.Config{
			TargetFPS:   getEnvFloat("TARGET_FPS", 0),
			MaxFrames:   getEnvInt("MAX_FRAMES", 0),
			MaxWorkers:  getEnvInt("MAX_WORKERS", 0),
			RunTimeout:  time.Duration(getEnvInt("RUN_TIMEOUT_MINUTES", 30)) * time.Minute,
			EnhanceTier: enhance.ResolutionTier(getEnv("ENHANCE_TIER", "4k")),
		})

		dispatcher = jobs.NewDispatcher(orch, jobs.Config{
			Workers: getEnvInt("PIPELINE_WORKERS", 0),
		})
	}

	app := &api.App{
		Store:         store,
		Evidence:      evidenceRepo,
		Custody:       custodyRepo,
		Findings:      findingRepo,
		Motion:        motionRepo,
		Alerts:        alertRepo,
		Matches:       matchRepo,
		Search:        searchService,
		MaxUploadSize: maxSize,
		Actor:         getEnv("CUSTODY_ACTOR", "system"),
	}
	// Assign only when running: a nil *Dispatcher in the interface would
	// not compare equal to nil.
	if dispatcher != nil {
		app.Jobs = dispatcher
	}

	router := api.NewRouter(app)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dispatcher != nil {
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
	}

	server := &http.Server{Addr: ":" + port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on port %s", port)
	log.Printf("Storage directory: %s", storageDir)
	log.Printf("Database type: %s", dbConfig.Type)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func loadDBConfig() database.Config {
	cfg := database.Config{Type: getEnv("DB_TYPE", "sqlite")}
	if cfg.Type == "postgres" {
		cfg.Host = getEnv("DB_HOST", "localhost")
		port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
		if err != nil {
			log.Fatal("Invalid DB_PORT:", err)
		}
		cfg.Port = port
		cfg.User = getEnv("DB_USER", "forensivid")
		cfg.Password = getEnv("DB_PASSWORD", "forensivid_dev")
		cfg.Name = getEnv("DB_NAME", "forensivid")
	} else {
		cfg.SQLitePath = getEnv("DB_PATH", "./forensivid.db")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
