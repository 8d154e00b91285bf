package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	gos3 "shipd/pkg/s3"
)

func (a *API) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	query := a.store.ORM.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if run := r.URL.Query().Get("run_id"); run != "" {
		runID, err := uuid.Parse(run)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid run_id: %w", err))
			return
		}
		query = query.Where("run_id = ?", runID)
	}

	var models []artifactModel
	if err := query.Find(&models).Error; err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("list artifacts: %w", err))
		return
	}

	artifacts := make([]Artifact, 0, len(models))
	for _, m := range models {
		artifacts = append(artifacts, m.toAPI())
	}
	respondJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

// handleDownloadArtifact answers with a short-lived presigned GET URL for the
// artifact's bundle in object storage.
func (a *API) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid artifact id: %w", err))
		return
	}
	if a.store.S3 == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("object store unavailable"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model artifactModel
	err = a.store.ORM.WithContext(ctx).First(&model, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, errors.New("artifact not found"))
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, fmt.Errorf("get artifact: %w", err))
		return
	}

	bucket, key, err := gos3.ParseURL(model.URL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("artifact location: %w", err))
		return
	}

	url, err := a.store.S3.PresignGet(ctx, bucket, key, a.presignTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("presign artifact: %w", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"artifact_id": model.ID,
		"name":        model.Name,
		"sha256":      model.SHA256,
		"size":        model.Size,
		"url":         url,
		"expires_in":  int(a.presignTTL.Seconds()),
	})
}
