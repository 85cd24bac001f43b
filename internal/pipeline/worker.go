package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/forensivid/forensivid/internal/inference"
	"github.com/forensivid/forensivid/internal/models"
	"github.com/forensivid/forensivid/internal/video"
)

// runStats is the analysis summary persisted as the evidence's results
// JSON.
type runStats struct {
	FramesAnalyzed int     `json:"frames_analyzed"`
	FramesSkipped  int     `json:"frames_skipped"`
	DegradedFrames int     `json:"degraded_frames"`
	Detections     int     `json:"detections"`
	Faces          int     `json:"faces"`
	MotionScore    float64 `json:"motion_score"`
	MotionHotspots int     `json:"motion_hotspots"`
}

// frameResult carries one frame's findings from a worker to the
// collector. The collector is the only database writer during analysis.
type frameResult struct {
	frameNumber int
	timestamp   float64
	degraded    bool
	detections  []*models.Detection
	faces       []*models.FaceObservation
}

type collectOutcome struct {
	stats runStats
	err   error
}

// analyzeFrames samples the source and fans frames out to inference
// workers. Frames at or below the committed checkpoint are skipped so
// a resumed run never duplicates findings.
func (o *Orchestrator) analyzeFrames(ctx context.Context, ev *models.Evidence, path string, meta video.Metadata) (*runStats, error) {
	checkpoint, err := o.deps.Findings.Checkpoint(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	if checkpoint >= 0 {
		log.Printf("[PIPELINE] resuming evidence %s from frame %d", ev.ID, checkpoint)
	}

	dec, err := o.deps.OpenDecoder(path)
	if err != nil {
		return nil, err
	}
	sampler, err := video.NewSampler(dec, o.cfg.TargetFPS, o.cfg.MaxFrames)
	if err != nil {
		dec.Close()
		return nil, err
	}
	defer sampler.Close()

	totalSamples := 0
	if meta.FrameCount > 0 {
		totalSamples = meta.FrameCount/sampler.Interval() + 1
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	results := make(chan *frameResult, o.cfg.BatchSize)
	collected := make(chan collectOutcome, 1)
	go func() {
		stats, err := o.collect(runCtx, ev, totalSamples, results)
		if err != nil {
			// Unblock workers still trying to send.
			cancelRun()
		}
		collected <- collectOutcome{stats: stats, err: err}
	}()

	g, gctx := errgroup.WithContext(runCtx)
	sem := semaphore.NewWeighted(int64(o.cfg.MaxWorkers))

	var motionFrames []image.Image
	var lastTimestamp float64
	skipped := 0

	for frame := range sampler.Frames() {
		if len(motionFrames) < o.cfg.MotionWindow {
			motionFrames = append(motionFrames, frame.Image)
		}
		lastTimestamp = frame.Timestamp

		if frame.Index <= checkpoint {
			skipped++
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		f := frame
		g.Go(func() error {
			defer sem.Release(1)
			res := o.processFrame(gctx, ev, f)
			select {
			case results <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	workerErr := g.Wait()
	close(results)
	outcome := <-collected

	if outcome.err != nil {
		return nil, outcome.err
	}
	if workerErr != nil {
		return nil, workerErr
	}
	if err := sampler.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := outcome.stats
	stats.FramesSkipped = skipped

	motion := inference.ComputeMotion(motionFrames)
	stats.MotionScore = motion.Score
	stats.MotionHotspots = len(motion.Hotspots)
	if err := o.persistMotion(ctx, ev, motion, 0, lastTimestamp); err != nil {
		return nil, err
	}

	return &stats, nil
}

// processFrame runs all models against one frame under the per-frame
// budget. Model failures and an expired budget mark the frame degraded
// and leave its findings empty; they never abort the run.
func (o *Orchestrator) processFrame(ctx context.Context, ev *models.Evidence, f video.Frame) *frameResult {
	if o.cfg.FrameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.FrameTimeout)
		defer cancel()
	}

	res := &frameResult{frameNumber: f.Index, timestamp: f.Timestamp}

	detections, err := o.deps.Objects.DetectObjects(ctx, f.Image, o.cfg.ObjectConfidence)
	if err != nil {
		log.Printf("[PIPELINE] object detection degraded on frame %d of %s: %v", f.Index, ev.ID, err)
		res.degraded = true
	}
	for _, d := range detections {
		res.detections = append(res.detections, &models.Detection{
			EvidenceID:  ev.ID,
			FrameNumber: f.Index,
			Timestamp:   f.Timestamp,
			ObjectClass: d.Class,
			Confidence:  d.Confidence,
			Box:         d.Box,
		})
	}

	faces, err := o.deps.Faces.DetectFaces(ctx, f.Image, o.cfg.FaceConfidence)
	if err != nil {
		log.Printf("[PIPELINE] face detection degraded on frame %d of %s: %v", f.Index, ev.ID, err)
		res.degraded = true
	}
	for i, face := range faces {
		res.faces = append(res.faces, o.processFace(ctx, ev, f, i, face))
	}

	return res
}

// processFace embeds, analyzes, and enhances one detected face. Every
// sub-step degrades independently: a failed embedding becomes the
// invalid sentinel, failed attributes stay nil, a failed enhancement
// leaves only the raw crop.
func (o *Orchestrator) processFace(ctx context.Context, ev *models.Evidence, f video.Frame, i int, face inference.Face) *models.FaceObservation {
	obs := &models.FaceObservation{
		EvidenceID:  ev.ID,
		FrameNumber: f.Index,
		Timestamp:   f.Timestamp,
		Confidence:  face.Confidence,
		Box:         face.Box,
		Embedding:   inference.InvalidEmbedding().Vector,
	}

	if url, err := o.putJPEG(fmt.Sprintf("faces/%s/%d-%d.jpg", ev.ID, f.Index, i), face.Crop); err != nil {
		log.Printf("[PIPELINE] storing face crop %d-%d of %s: %v", f.Index, i, ev.ID, err)
	} else {
		obs.FaceImageURL = url
	}

	emb, err := o.deps.Embedder.Embed(ctx, face.Crop)
	if err != nil {
		log.Printf("[PIPELINE] embedding face %d-%d of %s: %v", f.Index, i, ev.ID, err)
	} else {
		obs.Embedding = emb.Vector
		obs.EmbeddingValid = emb.Valid
	}

	attrs, err := o.deps.Analyzer.Analyze(ctx, face.Crop)
	if err != nil {
		log.Printf("[PIPELINE] analyzing face %d-%d of %s: %v", f.Index, i, ev.ID, err)
	} else {
		obs.Age = attrs.Age
		obs.Gender = attrs.Gender
		obs.Emotion = attrs.Emotion
		obs.Ethnicity = attrs.Ethnicity
	}

	if o.deps.Enhancer != nil {
		enhanced, err := o.deps.Enhancer.EnhanceFace(ctx, face.Crop, o.cfg.EnhanceTier)
		if err != nil {
			log.Printf("[PIPELINE] enhancing face %d-%d of %s: %v", f.Index, i, ev.ID, err)
		} else if url, err := o.putJPEG(fmt.Sprintf("faces/%s/%d-%d-enhanced.jpg", ev.ID, f.Index, i), enhanced); err != nil {
			log.Printf("[PIPELINE] storing enhanced face %d-%d of %s: %v", f.Index, i, ev.ID, err)
		} else {
			obs.EnhancedFaceURL = url
		}
	}

	return obs
}

// collect serializes database writes: batch commits, live index
// updates, weapon alerts, and progress. It is the run's only writer
// while workers are active.
func (o *Orchestrator) collect(ctx context.Context, ev *models.Evidence, totalSamples int, results <-chan *frameResult) (runStats, error) {
	var stats runStats
	var batchDet []*models.Detection
	var batchFaces []*models.FaceObservation
	pending := 0

	flush := func() error {
		if pending == 0 {
			return nil
		}
		if err := o.commitWithRetry(ctx, batchDet, batchFaces); err != nil {
			return err
		}
		for _, face := range batchFaces {
			if o.deps.Indexer != nil {
				if err := o.deps.Indexer.IndexFace(face.ID, face.Embedding, face.EmbeddingValid); err != nil {
					log.Printf("[PIPELINE] indexing face %s: %v", face.ID, err)
				}
			}
		}
		for _, det := range batchDet {
			if o.weaponClasses.Contains(det.ObjectClass) {
				o.raiseWeaponAlert(ctx, ev, det)
			}
		}
		batchDet = nil
		batchFaces = nil
		pending = 0

		if totalSamples > 0 {
			progress := 30 + 50*float64(stats.FramesAnalyzed)/float64(totalSamples)
			if progress > 80 {
				progress = 80
			}
			o.report(ctx, ev.ID, progress, "analyzing frames")
		}
		return nil
	}

	for res := range results {
		stats.FramesAnalyzed++
		if res.degraded {
			stats.DegradedFrames++
		}
		stats.Detections += len(res.detections)
		stats.Faces += len(res.faces)

		batchDet = append(batchDet, res.detections...)
		batchFaces = append(batchFaces, res.faces...)
		pending++

		if pending >= o.cfg.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

// commitWithRetry retries transient batch-commit failures with a short
// backoff before declaring the run dead.
func (o *Orchestrator) commitWithRetry(ctx context.Context, detections []*models.Detection, faces []*models.FaceObservation) error {
	var lastErr error
	for attempt := 0; attempt < o.cfg.CommitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if lastErr = o.deps.Findings.CommitBatch(ctx, detections, faces); lastErr == nil {
			return nil
		}
		log.Printf("[PIPELINE] batch commit attempt %d failed: %v", attempt+1, lastErr)
	}
	return fmt.Errorf("committing findings batch: %w", lastErr)
}

func (o *Orchestrator) raiseWeaponAlert(ctx context.Context, ev *models.Evidence, det *models.Detection) {
	alert := &models.Alert{
		EvidenceID:  ev.ID,
		Title:       fmt.Sprintf("Weapon detected: %s", det.ObjectClass),
		Description: fmt.Sprintf("%s at %.1fs (frame %d) with confidence %.2f", det.ObjectClass, det.Timestamp, det.FrameNumber, det.Confidence),
		Level:       models.AlertHigh,
		Type:        "weapon_detection",
	}
	if err := o.deps.Alerts.Create(ctx, alert); err != nil {
		log.Printf("[PIPELINE] failed to raise weapon alert for %s: %v", ev.ID, err)
	}
}

func (o *Orchestrator) raiseCompletionAlert(ctx context.Context, ev *models.Evidence, stats *runStats) {
	alert := &models.Alert{
		EvidenceID:  ev.ID,
		Title:       fmt.Sprintf("Analysis complete: %s", ev.OriginalFilename),
		Description: fmt.Sprintf("%d frames analyzed, %d detections, %d faces, %d degraded frames", stats.FramesAnalyzed, stats.Detections, stats.Faces, stats.DegradedFrames),
		Level:       models.AlertLow,
		Type:        "processing_complete",
	}
	if err := o.deps.Alerts.Create(ctx, alert); err != nil {
		log.Printf("[PIPELINE] failed to raise completion alert for %s: %v", ev.ID, err)
	}
}

func (o *Orchestrator) putJPEG(path string, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", err
	}
	return o.deps.Store.PutArtifact(path, buf.Bytes())
}
