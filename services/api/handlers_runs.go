package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"shipd/pkg/db"
)

// runRow is the scany mapping for the runs table.
type runRow struct {
	ID             uuid.UUID  `db:"id"`
	TriggerEventID *uuid.UUID `db:"trigger_event_id"`
	Pipeline       string     `db:"pipeline"`
	Ref            string     `db:"ref"`
	RefType        string     `db:"ref_type"`
	CommitSHA      string     `db:"commit_sha"`
	Status         string     `db:"status"`
	State          string     `db:"state"`
	StartedAt      *time.Time `db:"started_at"`
	FinishedAt     *time.Time `db:"finished_at"`
	Logs           string     `db:"logs"`
}

const runColumns = `id, trigger_event_id, pipeline, ref, ref_type, commit_sha, status, state, started_at, finished_at, logs`

func (r runRow) toAPI() Run {
	return Run{
		ID:             r.ID,
		TriggerEventID: valueOrZero(r.TriggerEventID),
		Pipeline:       r.Pipeline,
		Ref:            r.Ref,
		RefType:        r.RefType,
		CommitSHA:      r.CommitSHA,
		Status:         r.Status,
		State:          r.State,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Logs:           r.Logs,
	}
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC NULLS LAST LIMIT $1`
	args := []any{limit}
	if status := r.URL.Query().Get("status"); status != "" {
		query = `SELECT ` + runColumns + ` FROM runs WHERE status = $2 ORDER BY started_at DESC NULLS LAST LIMIT $1`
		args = append(args, status)
	}

	var rows []runRow
	if err := db.Select(r.Context(), a.store.DB, &rows, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("list runs: %w", err))
		return
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toAPI())
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid run id: %w", err))
		return
	}

	var row runRow
	err = db.Get(r.Context(), a.store.DB, &row, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		respondError(w, http.StatusNotFound, errors.New("run not found"))
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, fmt.Errorf("get run: %w", err))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var artifacts []artifactModel
	if err := a.store.ORM.WithContext(ctx).Where("run_id = ?", id).Find(&artifacts).Error; err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("get run artifacts: %w", err))
		return
	}

	out := make([]Artifact, 0, len(artifacts))
	for _, m := range artifacts {
		out = append(out, m.toAPI())
	}
	respondJSON(w, http.StatusOK, map[string]any{"run": row.toAPI(), "artifacts": out})
}
