package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forensivid/forensivid/internal/database"
	"github.com/forensivid/forensivid/internal/integrity"
	"github.com/forensivid/forensivid/internal/models"
	"github.com/forensivid/forensivid/internal/search"
	"github.com/forensivid/forensivid/internal/storage"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// JobQueue hands evidence off for background processing. Nil means
// processing is disabled and uploads simply wait.
type JobQueue interface {
	Enqueue(evidenceID string) error
}

type App struct {
	Store    storage.Store
	Evidence *database.EvidenceRepo
	Custody  *database.CustodyRepo
	Findings *database.FindingRepo
	Motion   *database.MotionRepo
	Alerts   *database.AlertRepo
	Matches  *database.MatchRepo
	Search   *search.Service
	Jobs     JobQueue

	MaxUploadSize int64
	Actor         string
}

// UploadHandler ingests a new evidence file: hash, dedupe, store,
// custody record, then queue for processing.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "missing video file")
		return
	}
	defer file.Close()

	// Generic clients send application/octet-stream for everything, so
	// anything that is not explicitly video/* must pass the extension
	// allowlist.
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext != ".mp4" && ext != ".avi" && ext != ".mov" && ext != ".mkv" {
			app.writeError(w, http.StatusUnsupportedMediaType, "only video files are accepted")
			return
		}
		contentType = "video/mp4"
	}

	content, err := io.ReadAll(file)
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	sha256Hex := integrity.SHA256Hex(content)
	if existing, err := app.Evidence.GetBySHA256(r.Context(), sha256Hex); err == nil && existing != nil {
		app.writeJSONStatus(w, http.StatusConflict, map[string]interface{}{
			"error":       "duplicate evidence",
			"evidence_id": existing.ID,
		})
		return
	}

	path, err := app.Store.SaveEvidence(strings.NewReader(string(content)), storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        int64(len(content)),
	})
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	ev := models.NewEvidence(header.Filename, path, contentType, int64(len(content)),
		sha256Hex, integrity.SHA512Hex(content))
	if err := app.Evidence.Create(r.Context(), ev); err != nil {
		app.Store.Delete(path)
		if errors.Is(err, database.ErrDuplicateEvidence) {
			app.writeError(w, http.StatusConflict, "duplicate evidence")
			return
		}
		app.writeError(w, http.StatusInternalServerError, "failed to record evidence")
		return
	}

	if err := app.Custody.Append(r.Context(), &models.CustodyRecord{
		EvidenceID: ev.ID,
		Action:     "uploaded",
		Actor:      app.Actor,
		HashAfter:  ev.SHA256,
		Details:    fmt.Sprintf("original filename %q, %d bytes", ev.OriginalFilename, ev.Size),
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[API] failed to append upload custody record for %s: %v", ev.ID, err)
	}

	if app.Jobs != nil {
		if err := app.Jobs.Enqueue(ev.ID); err != nil {
			log.Printf("[API] failed to enqueue evidence %s: %v", ev.ID, err)
		}
	}

	app.writeJSONStatus(w, http.StatusCreated, ev)
}

func (app *App) ListEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	list, err := app.Evidence.List(r.Context(), limit, offset)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to list evidence")
		return
	}
	if list == nil {
		list = []*models.Evidence{}
	}
	app.writeJSON(w, list)
}

func (app *App) GetEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}
	app.writeJSON(w, ev)
}

// StatusHandler is a lightweight poll target for upload clients.
func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}
	app.writeJSON(w, map[string]interface{}{
		"id":       ev.ID,
		"status":   ev.Status,
		"progress": ev.Progress,
		"error":    ev.ErrorMessage,
	})
}

func (app *App) ReprocessHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}
	if app.Jobs == nil {
		app.writeError(w, http.StatusServiceUnavailable, "processing queue unavailable")
		return
	}
	if err := app.Jobs.Enqueue(ev.ID); err != nil {
		app.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	app.writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (app *App) StreamEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}

	file, err := app.Store.Open(ev.Filename)
	if err != nil {
		http.Error(w, "evidence file not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.(interface{ Stat() (os.FileInfo, error) }).Stat()
	if err != nil {
		http.Error(w, "error accessing evidence file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ev.ContentType)
	// ServeContent handles Range requests for scrubbing in review tools.
	http.ServeContent(w, r, ev.Filename, stat.ModTime(), file)
}

func (app *App) CustodyChainHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}
	chain, err := app.Custody.ChainFor(r.Context(), ev.ID)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to load custody chain")
		return
	}
	if chain == nil {
		chain = []*models.CustodyRecord{}
	}
	app.writeJSON(w, chain)
}

// CertificateHandler issues a signed custody certificate over the
// evidence's current stored bytes.
func (app *App) CertificateHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}

	file, err := app.Store.Open(ev.Filename)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "evidence file unavailable")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to read evidence file")
		return
	}

	cert, err := integrity.Certify(ev.ID, ev.OriginalFilename, "certified", app.Actor,
		integrity.HashPair{
			SHA256: integrity.SHA256Hex(content),
			SHA512: integrity.SHA512Hex(content),
		}, time.Now().UTC())
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to build certificate")
		return
	}
	app.writeJSON(w, cert)
}

// PackageHandler exports the court-ready evidence package: metadata,
// full custody chain, and a package-level hash.
func (app *App) PackageHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}

	chainPtrs, err := app.Custody.ChainFor(r.Context(), ev.ID)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to load custody chain")
		return
	}
	chain := make([]models.CustodyRecord, len(chainPtrs))
	for i, rec := range chainPtrs {
		chain[i] = *rec
	}

	pkg, err := integrity.BuildPackage(ev, chain, map[string]string{
		"duration":   strconv.FormatFloat(ev.Duration, 'f', 2, 64),
		"fps":        strconv.FormatFloat(ev.FPS, 'f', 2, 64),
		"resolution": ev.Resolution,
	}, time.Now().UTC())
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to build package")
		return
	}
	app.writeJSON(w, pkg)
}

func (app *App) FindingsHandler(w http.ResponseWriter, r *http.Request) {
	ev := app.loadEvidence(w, r)
	if ev == nil {
		return
	}

	detections, err := app.Findings.DetectionsByEvidence(r.Context(), ev.ID)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to load detections")
		return
	}
	faces, err := app.Findings.FacesByEvidence(r.Context(), ev.ID)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to load faces")
		return
	}
	motion, err := app.Motion.ByEvidence(r.Context(), ev.ID)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to load motion summaries")
		return
	}

	app.writeJSON(w, map[string]interface{}{
		"evidence_id": ev.ID,
		"detections":  orEmptyDetections(detections),
		"faces":       orEmptyFaces(faces),
		"motion":      orEmptyMotion(motion),
	})
}

func (app *App) SimilarFacesHandler(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "id")

	matches, err := app.Search.FindSimilarToFace(r.Context(), faceID)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			app.writeError(w, http.StatusUnprocessableEntity, "face has no usable embedding")
			return
		}
		app.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if matches == nil {
		matches = []search.Match{}
	}
	app.writeJSON(w, matches)
}

func (app *App) AnnotateFaceHandler(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "id")

	var body struct {
		IsPersonOfInterest bool   `json:"is_person_of_interest"`
		POILabel           string `json:"poi_label"`
		Notes              string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		app.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := app.Findings.UpdateAnnotation(r.Context(), faceID, body.IsPersonOfInterest, body.POILabel, body.Notes); err != nil {
		app.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	app.writeJSON(w, map[string]string{"status": "annotated"})
}

func (app *App) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	alerts, err := app.Alerts.List(r.Context(), unreadOnly, queryInt(r, "limit", 100))
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	app.writeJSON(w, alerts)
}

func (app *App) MarkAlertReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Alerts.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to mark alert read")
		return
	}
	app.writeJSON(w, map[string]string{"status": "read"})
}

func (app *App) ConfirmMatchHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConfirmedBy string `json:"confirmed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ConfirmedBy == "" {
		app.writeError(w, http.StatusBadRequest, "confirmed_by is required")
		return
	}

	if err := app.Matches.Confirm(r.Context(), chi.URLParam(r, "id"), body.ConfirmedBy); err != nil {
		app.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	app.writeJSON(w, map[string]string{"status": "confirmed"})
}

func (app *App) loadEvidence(w http.ResponseWriter, r *http.Request) *models.Evidence {
	id := chi.URLParam(r, "id")
	if id == "" {
		app.writeError(w, http.StatusBadRequest, "missing evidence id")
		return nil
	}
	ev, err := app.Evidence.GetByID(r.Context(), id)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, "failed to load evidence")
		return nil
	}
	if ev == nil {
		app.writeError(w, http.StatusNotFound, "evidence not found")
		return nil
	}
	return ev
}

func (app *App) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

// writeJSONStatus sets the Content-Type before WriteHeader; headers set
// afterwards are silently dropped.
func (app *App) writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func (app *App) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return fallback
}

func orEmptyDetections(v []*models.Detection) []*models.Detection {
	if v == nil {
		return []*models.Detection{}
	}
	return v
}

func orEmptyFaces(v []*models.FaceObservation) []*models.FaceObservation {
	if v == nil {
		return []*models.FaceObservation{}
	}
	return v
}

func orEmptyMotion(v []*models.MotionSummary) []*models.MotionSummary {
	if v == nil {
		return []*models.MotionSummary{}
	}
	return v
}
