// Package pipeline drives a full evidence processing run: integrity
// verification, frame sampling, parallel per-frame inference,
// incremental persistence, motion aggregation, and finalization. A run
// is resumable: committed frames are never reprocessed after a crash.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"time"

	"github.com/forensivid/forensivid/internal/enhance"
	"github.com/forensivid/forensivid/internal/inference"
	"github.com/forensivid/forensivid/internal/integrity"
	"github.com/forensivid/forensivid/internal/models"
	"github.com/forensivid/forensivid/internal/storage"
	"github.com/forensivid/forensivid/internal/video"
)

var (
	// ErrIntegrityMismatch means the stored bytes no longer hash to the
	// value recorded at ingestion. The run must not proceed.
	ErrIntegrityMismatch = errors.New("evidence integrity mismatch")

	// ErrRunTimeout means a processing run exceeded its deadline.
	ErrRunTimeout = errors.New("processing run timed out")
)

type Config struct {
	// TargetFPS is the sampling rate in frames per second of video time.
	TargetFPS float64
	// MaxFrames caps sampled frames per run; <= 0 means unbounded.
	MaxFrames int
	// BatchSize is the number of frame results per database commit.
	BatchSize int
	// MaxWorkers bounds concurrent per-frame inference.
	MaxWorkers int

	ObjectConfidence float64
	FaceConfidence   float64

	// RunTimeout bounds a whole run; 0 means no deadline.
	RunTimeout time.Duration
	// FrameTimeout bounds inference on a single frame. An expired frame
	// is recorded as degraded; it never fails the run.
	FrameTimeout time.Duration
	// CommitRetries is how many times a failed batch commit is retried
	// before the run fails.
	CommitRetries int
	// MotionWindow is the number of sampled frames fed to motion
	// aggregation.
	MotionWindow int

	EnhanceTier enhance.ResolutionTier
	// Actor is recorded on custody entries written by the pipeline.
	Actor string
}

func (c *Config) applyDefaults() {
	if c.TargetFPS <= 0 {
		c.TargetFPS = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 8
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.ObjectConfidence <= 0 {
		c.ObjectConfidence = 0.5
	}
	if c.FaceConfidence <= 0 {
		c.FaceConfidence = 0.7
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 30 * time.Second
	}
	if c.CommitRetries <= 0 {
		c.CommitRetries = 3
	}
	if c.MotionWindow <= 0 {
		c.MotionWindow = 100
	}
	if c.EnhanceTier == "" {
		c.EnhanceTier = enhance.Tier4K
	}
	if c.Actor == "" {
		c.Actor = "system"
	}
}

// FaceIndexer receives committed embeddings so similarity search sees
// new faces immediately.
type FaceIndexer interface {
	IndexFace(faceID string, embedding []float32, valid bool) error
}

// EvidenceStore is the slice of the evidence repo the pipeline drives.
type EvidenceStore interface {
	GetByID(ctx context.Context, id string) (*models.Evidence, error)
	UpdateStatus(ctx context.Context, id string, status models.EvidenceStatus) error
	UpdateProgress(ctx context.Context, id string, progress float64) error
	UpdateMetadata(ctx context.Context, id string, duration, fps float64, resolution string) error
	SetThumbnail(ctx context.Context, id, url string) error
	Finalize(ctx context.Context, id, analysisResults string) error
	Fail(ctx context.Context, id, errorMessage string) error
}

// CustodyLog appends chain-of-custody entries.
type CustodyLog interface {
	Append(ctx context.Context, rec *models.CustodyRecord) error
}

// FindingStore persists per-frame findings and reports the resume
// checkpoint.
type FindingStore interface {
	Checkpoint(ctx context.Context, evidenceID string) (int, error)
	CommitBatch(ctx context.Context, detections []*models.Detection, faces []*models.FaceObservation) error
}

// MotionStore persists motion summaries.
type MotionStore interface {
	Create(ctx context.Context, m *models.MotionSummary) error
}

// AlertSink receives fire-and-forget alerts.
type AlertSink interface {
	Create(ctx context.Context, a *models.Alert) error
}

// Deps collects the orchestrator's collaborators. OpenDecoder and Probe
// default to the ffmpeg implementations when nil.
type Deps struct {
	Evidence EvidenceStore
	Custody  CustodyLog
	Findings FindingStore
	Motion   MotionStore
	Alerts   AlertSink
	Store    storage.Store

	Objects  inference.ObjectDetector
	Faces    inference.FaceDetector
	Embedder inference.Embedder
	Analyzer inference.AttributeAnalyzer
	Enhancer *enhance.FaceEnhancer

	Indexer  FaceIndexer
	Reporter Reporter

	OpenDecoder func(path string) (video.Decoder, error)
	Probe       func(path string) (video.Metadata, error)
}

type Orchestrator struct {
	cfg  Config
	deps Deps

	weaponClasses inference.ClassSet
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	if deps.OpenDecoder == nil {
		deps.OpenDecoder = func(path string) (video.Decoder, error) {
			return video.OpenFFmpeg(path)
		}
	}
	if deps.Probe == nil {
		deps.Probe = video.Probe
	}
	if deps.Reporter == nil {
		deps.Reporter = LogReporter{}
	}
	return &Orchestrator{
		cfg:           cfg,
		deps:          deps,
		weaponClasses: inference.NewClassSet(inference.DefaultWeaponClasses),
	}
}

// Process runs the full pipeline for one evidence item. It is safe to
// call again after a crash or failure: committed frames are skipped and
// findings are never duplicated.
func (o *Orchestrator) Process(ctx context.Context, evidenceID string) error {
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	ev, err := o.deps.Evidence.GetByID(ctx, evidenceID)
	if err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("evidence not found: %s", evidenceID)
	}
	if ev.Status == models.StatusCompleted {
		log.Printf("[PIPELINE] evidence %s already completed, nothing to do", ev.ID)
		return nil
	}

	log.Printf("[PIPELINE] starting run for evidence %s (%s)", ev.ID, ev.OriginalFilename)

	if err := o.run(ctx, ev); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrRunTimeout, err)
		}
		o.fail(ev, err)
		return err
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, ev *models.Evidence) error {
	if err := o.verifyIntegrity(ev); err != nil {
		return err
	}

	if err := o.deps.Evidence.UpdateStatus(ctx, ev.ID, models.StatusProcessing); err != nil {
		return err
	}
	o.appendCustody(ev.ID, "processing", ev.SHA256, "")
	o.report(ctx, ev.ID, 10, "integrity verified")

	path, err := o.deps.Store.FullPath(ev.Filename)
	if err != nil {
		return err
	}

	meta, err := o.deps.Probe(path)
	if err != nil {
		return fmt.Errorf("probing video: %w", err)
	}
	if err := o.deps.Evidence.UpdateMetadata(ctx, ev.ID, meta.Duration, meta.FrameRate, meta.Resolution()); err != nil {
		return err
	}
	o.report(ctx, ev.ID, 20, "metadata extracted")

	if err := o.generateThumbnail(ctx, ev, path); err != nil {
		// A missing thumbnail never fails a run.
		log.Printf("[PIPELINE] thumbnail for %s failed: %v", ev.ID, err)
	}
	o.report(ctx, ev.ID, 25, "thumbnail ready")

	stats, err := o.analyzeFrames(ctx, ev, path, meta)
	if err != nil {
		return err
	}
	o.report(ctx, ev.ID, 85, "motion summarized")

	results, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding analysis results: %w", err)
	}
	o.report(ctx, ev.ID, 95, "findings persisted")

	if err := o.deps.Evidence.Finalize(ctx, ev.ID, string(results)); err != nil {
		return err
	}
	o.appendCustody(ev.ID, "processed", ev.SHA256, fmt.Sprintf("frames=%d detections=%d faces=%d degraded=%d",
		stats.FramesAnalyzed, stats.Detections, stats.Faces, stats.DegradedFrames))
	o.report(ctx, ev.ID, 100, "completed")
	o.raiseCompletionAlert(ctx, ev, stats)

	log.Printf("[PIPELINE] run complete for evidence %s: %d frames, %d detections, %d faces",
		ev.ID, stats.FramesAnalyzed, stats.Detections, stats.Faces)
	return nil
}

// verifyIntegrity recomputes the stored file's SHA-256 and compares it
// to the hash recorded at ingestion.
func (o *Orchestrator) verifyIntegrity(ev *models.Evidence) error {
	f, err := o.deps.Store.Open(ev.Filename)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading evidence file: %w", err)
	}

	actual := integrity.SHA256Hex(content)
	if actual != ev.SHA256 {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrIntegrityMismatch, ev.SHA256, actual)
	}
	return nil
}

func (o *Orchestrator) generateThumbnail(ctx context.Context, ev *models.Evidence, path string) error {
	dec, err := o.deps.OpenDecoder(path)
	if err != nil {
		return err
	}
	defer dec.Close()

	thumb, err := video.Thumbnail(dec, 1.0)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return err
	}
	url, err := o.deps.Store.PutArtifact(fmt.Sprintf("thumbnails/%s.jpg", ev.ID), buf.Bytes())
	if err != nil {
		return err
	}
	return o.deps.Evidence.SetThumbnail(ctx, ev.ID, url)
}

func (o *Orchestrator) persistMotion(ctx context.Context, ev *models.Evidence, motion inference.MotionResult, startTime, endTime float64) error {
	var heatmapURL string
	if motion.Heatmap != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, motion.Heatmap); err != nil {
			return fmt.Errorf("encoding heatmap: %w", err)
		}
		url, err := o.deps.Store.PutArtifact(fmt.Sprintf("heatmaps/%s.png", ev.ID), buf.Bytes())
		if err != nil {
			return fmt.Errorf("storing heatmap: %w", err)
		}
		heatmapURL = url
	}

	return o.deps.Motion.Create(ctx, &models.MotionSummary{
		EvidenceID:    ev.ID,
		HeatmapURL:    heatmapURL,
		StartTime:     startTime,
		EndTime:       endTime,
		MovementScore: motion.Score,
		HotspotCount:  len(motion.Hotspots),
		Hotspots:      motion.Hotspots,
	})
}

// fail records a terminal failure. The failure writes use a fresh
// context because the run's context may already be cancelled.
func (o *Orchestrator) fail(ev *models.Evidence, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("[PIPELINE] run failed for evidence %s: %v", ev.ID, runErr)
	if err := o.deps.Evidence.Fail(ctx, ev.ID, runErr.Error()); err != nil {
		log.Printf("[PIPELINE] failed to record failure for %s: %v", ev.ID, err)
	}
	o.appendCustody(ev.ID, "processing_failed", ev.SHA256, runErr.Error())
}

func (o *Orchestrator) appendCustody(evidenceID, action, hash, details string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := &models.CustodyRecord{
		EvidenceID: evidenceID,
		Action:     action,
		Actor:      o.cfg.Actor,
		HashBefore: hash,
		HashAfter:  hash,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	if err := o.deps.Custody.Append(ctx, rec); err != nil {
		log.Printf("[PIPELINE] failed to append custody record %s/%s: %v", evidenceID, action, err)
	}
}

func (o *Orchestrator) report(ctx context.Context, evidenceID string, progress float64, stage string) {
	if err := o.deps.Evidence.UpdateProgress(ctx, evidenceID, progress); err != nil {
		log.Printf("[PIPELINE] failed to persist progress for %s: %v", evidenceID, err)
	}
	o.deps.Reporter.Report(evidenceID, progress, stage)
}
