package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/evidence", func(r chi.Router) {
			r.Post("/", app.UploadHandler)
			r.Get("/", app.ListEvidenceHandler)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetEvidenceHandler)
				r.Get("/status", app.StatusHandler)
				r.Get("/stream", app.StreamEvidenceHandler)
				r.Get("/custody", app.CustodyChainHandler)
				r.Get("/certificate", app.CertificateHandler)
				r.Get("/package", app.PackageHandler)
				r.Get("/findings", app.FindingsHandler)
				r.Post("/reprocess", app.ReprocessHandler)
			})
		})

		r.Route("/faces/{id}", func(r chi.Router) {
			r.Get("/similar", app.SimilarFacesHandler)
			r.Post("/annotate", app.AnnotateFaceHandler)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", app.ListAlertsHandler)
			r.Post("/{id}/read", app.MarkAlertReadHandler)
		})

		r.Post("/matches/{id}/confirm", app.ConfirmMatchHandler)
	})

	return r
}
