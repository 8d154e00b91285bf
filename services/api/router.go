package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/triggers", a.handleTrigger)
		r.Post("/dispatch", a.handleDispatch)
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Get("/artifacts", a.handleListArtifacts)
		r.Get("/artifacts/{id}/download", a.handleDownloadArtifact)
		r.Get("/releases", a.handleListReleases)
		r.Get("/releases/{tag}", a.handleGetRelease)
	})

	return r, nil
}
