package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"shipd/pkg/bus"
	"shipd/pkg/db"
	"shipd/services/pipeline"
)

type triggerRequest struct {
	Kind      string         `json:"kind"`
	Ref       string         `json:"ref"`
	RefType   string         `json:"ref_type,omitempty"`
	CommitSHA string         `json:"commit_sha,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type dispatchRequest struct {
	Ref       string `json:"ref,omitempty"`
	RefType   string `json:"ref_type,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
}

type triggerResponse struct {
	Event TriggerEvent `json:"event"`
}

// handleTrigger ingests a webhook delivery for a push or pull_request event,
// persists it, and announces it on the bus for the runner to pick up.
func (a *API) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	evt, err := normalizeTrigger(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	a.acceptTrigger(w, r, evt)
}

// handleDispatch starts a run by hand. All fields are optional; an empty body
// runs the pipeline's default branch at its head.
func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
			return
		}
	}

	evt := pipeline.TriggerEvent{
		ID:        uuid.New(),
		Kind:      pipeline.TriggerManual,
		Ref:       req.Ref,
		RefType:   pipeline.RefType(req.RefType),
		CommitSHA: req.CommitSHA,
	}
	if evt.Ref == "" {
		evt.Ref = "master"
	}
	if evt.RefType == "" {
		evt.RefType = pipeline.RefBranch
	}
	if evt.RefType != pipeline.RefBranch && evt.RefType != pipeline.RefTag {
		respondError(w, http.StatusBadRequest, fmt.Errorf("unknown ref type %q", req.RefType))
		return
	}

	a.acceptTrigger(w, r, evt)
}

func (a *API) acceptTrigger(w http.ResponseWriter, r *http.Request, evt pipeline.TriggerEvent) {
	evt.ReceivedAt = time.Now().UTC()

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("encode payload: %w", err))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	_, err = db.Exec(ctx, a.store.DB,
		`INSERT INTO trigger_events (id, kind, ref, ref_type, commit_sha, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evt.ID, string(evt.Kind), evt.Ref, string(evt.RefType), evt.CommitSHA, payload, evt.ReceivedAt)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("persist trigger: %w", err))
		return
	}

	if a.store.Bus != nil {
		if err := a.store.Bus.Publish(ctx, bus.TriggersReceivedSubject, evt); err != nil {
			a.logger.Printf("level=error msg=\"publish trigger\" trigger_id=%s err=%v", evt.ID, err)
		}
	}

	respondJSON(w, http.StatusAccepted, triggerResponse{Event: TriggerEvent{
		ID:         evt.ID,
		Kind:       string(evt.Kind),
		Ref:        evt.Ref,
		RefType:    string(evt.RefType),
		CommitSHA:  evt.CommitSHA,
		Payload:    evt.Payload,
		ReceivedAt: evt.ReceivedAt,
	}})
}

// normalizeTrigger turns a webhook-shaped request into a TriggerEvent. Full
// git refs are accepted and classified; bare refs need an explicit ref_type.
func normalizeTrigger(req triggerRequest) (pipeline.TriggerEvent, error) {
	kind := pipeline.TriggerKind(req.Kind)
	switch kind {
	case pipeline.TriggerPush, pipeline.TriggerPullRequest:
	case pipeline.TriggerManual:
		return pipeline.TriggerEvent{}, errors.New("manual runs go through /v1/dispatch")
	default:
		return pipeline.TriggerEvent{}, fmt.Errorf("unknown trigger kind %q", req.Kind)
	}

	ref := req.Ref
	refType := pipeline.RefType(req.RefType)
	switch {
	case strings.HasPrefix(ref, "refs/heads/"):
		ref = strings.TrimPrefix(ref, "refs/heads/")
		refType = pipeline.RefBranch
	case strings.HasPrefix(ref, "refs/tags/"):
		ref = strings.TrimPrefix(ref, "refs/tags/")
		refType = pipeline.RefTag
	}
	if ref == "" {
		return pipeline.TriggerEvent{}, errors.New("ref is required")
	}

	if kind == pipeline.TriggerPullRequest {
		// PR deliveries target a branch regardless of what the hook sets.
		refType = pipeline.RefBranch
	}
	switch refType {
	case pipeline.RefBranch, pipeline.RefTag:
	case "":
		return pipeline.TriggerEvent{}, errors.New("ref_type is required for bare refs")
	default:
		return pipeline.TriggerEvent{}, fmt.Errorf("unknown ref type %q", req.RefType)
	}

	return pipeline.TriggerEvent{
		ID:        uuid.New(),
		Kind:      kind,
		Ref:       ref,
		RefType:   refType,
		CommitSHA: req.CommitSHA,
		Payload:   req.Payload,
	}, nil
}
