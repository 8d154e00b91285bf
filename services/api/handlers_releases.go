package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

func (a *API) handleListReleases(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var models []releaseModel
	if err := a.store.ORM.WithContext(ctx).Order("published_at DESC").Limit(limit).Find(&models).Error; err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("list releases: %w", err))
		return
	}

	releases := make([]Release, 0, len(models))
	for _, m := range models {
		releases = append(releases, m.toAPI())
	}
	respondJSON(w, http.StatusOK, map[string]any{"releases": releases})
}

func (a *API) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	if tag == "" {
		respondError(w, http.StatusBadRequest, errors.New("tag is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model releaseModel
	err := a.store.ORM.WithContext(ctx).First(&model, "tag = ?", tag).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, errors.New("release not found"))
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, fmt.Errorf("get release: %w", err))
		return
	}

	out := map[string]any{"release": model.toAPI()}
	if model.ArtifactID != nil {
		var artifact artifactModel
		err := a.store.ORM.WithContext(ctx).First(&artifact, "id = ?", *model.ArtifactID).Error
		if err == nil {
			out["artifact"] = artifact.toAPI()
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(w, http.StatusInternalServerError, fmt.Errorf("get release artifact: %w", err))
			return
		}
	}
	respondJSON(w, http.StatusOK, out)
}
