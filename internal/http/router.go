package http

import (
	"net/http"

	"docpress/internal/auth"
	"docpress/internal/config"
	"docpress/internal/http/handler"
	mw "docpress/internal/http/middleware"
	"docpress/internal/jobs"
	"docpress/internal/status"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg config.Config, store jobs.Store, enq *jobs.Enqueuer, res *status.Resolver, jwtSvc *auth.JWT) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rh := &handler.RenderHandler{Enqueuer: enq, Store: store}
	sh := &handler.StatusHandler{Resolver: res, Store: store, PresignTTL: cfg.PresignTTL}

	r.Route("/packs/{packID}", func(r chi.Router) {
		r.Use(auth.RequireSession(jwtSvc))

		r.Post("/documents", rh.EnqueueAll)
		r.Get("/documents", sh.ListPackDocuments)
		r.Post("/documents/{docID}", rh.EnqueueOne)
		r.Post("/requeue-failed", rh.RequeueAllFailed)
	})

	r.With(auth.RequireSession(jwtSvc)).Post("/jobs/{jobID}/requeue", rh.RequeueJob)
	r.With(auth.RequireSession(jwtSvc)).Get("/files/{fileID}/url", sh.ResolveDownload)

	return r
}
