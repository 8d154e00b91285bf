package pipeline

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shipd/pkg/bus"
	"shipd/pkg/render"
)

// Engine executes pipeline runs: it persists run progress, captures the
// artifact, applies the tag-only publish guard, and emits lifecycle events.
type Engine struct {
	orm      *gorm.DB
	bus      *bus.Bus
	store    ObjectStore
	bucket   string
	signer   *Signer
	renderer *render.Engine
	runner   CommandRunner
	logger   *log.Logger
	workRoot string
}

// EngineConfig carries the optional knobs for NewEngine.
type EngineConfig struct {
	Bucket   string
	WorkRoot string
	Runner   CommandRunner
}

// NewEngine wires an Engine. orm, store, signer, and renderer are required;
// the bus may be nil, in which case lifecycle events are not emitted.
func NewEngine(orm *gorm.DB, b *bus.Bus, store ObjectStore, signer *Signer, renderer *render.Engine, logger *log.Logger, cfg EngineConfig) (*Engine, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("artifact bucket is required")
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		orm:      orm,
		bus:      b,
		store:    store,
		bucket:   cfg.Bucket,
		signer:   signer,
		renderer: renderer,
		runner:   cfg.Runner,
		logger:   logger,
		workRoot: cfg.WorkRoot,
	}, nil
}

// Execute runs the full pipeline for one trigger event and returns the run
// ID. The returned error is the first step failure, already recorded on the
// run row; callers retrying is not a thing — every failure is terminal.
func (e *Engine) Execute(ctx context.Context, def *Definition, evt TriggerEvent) (uuid.UUID, error) {
	if def == nil {
		return uuid.Nil, errors.New("nil definition")
	}
	if err := def.Validate(); err != nil {
		return uuid.Nil, err
	}

	runID := uuid.New()
	startedAt := time.Now().UTC()

	model := runModel{
		ID:        runID,
		Pipeline:  def.Name,
		Ref:       evt.Ref,
		RefType:   string(evt.RefType),
		CommitSHA: evt.CommitSHA,
		Status:    StatusRunning,
		State:     string(StateStart),
		StartedAt: &startedAt,
	}
	if evt.ID != uuid.Nil {
		id := evt.ID
		model.TriggerEventID = &id
	}
	if err := e.orm.WithContext(ctx).Create(&model).Error; err != nil {
		return uuid.Nil, err
	}

	e.publish(ctx, bus.RunsStartedSubject, map[string]any{
		"run_id":     runID,
		"pipeline":   def.Name,
		"ref":        evt.Ref,
		"ref_type":   evt.RefType,
		"status":     StatusRunning,
		"started_at": startedAt,
	})

	workDir, err := os.MkdirTemp(e.workRoot, "shipd-run-")
	if err != nil {
		return runID, e.finishRun(ctx, runID, def, nil, err)
	}
	defer os.RemoveAll(workDir)

	exec := NewExecution(runID, def, evt, workDir, e.logger)

	steps := []Step{
		checkoutStep{runner: e.runner},
		toolchainStep{runner: e.runner},
		compileStep{runner: e.runner},
		captureStep{store: e.store, bucket: e.bucket, signer: e.signer},
	}
	publish := publishStep{renderer: e.renderer}

	runErr := runPipeline(ctx, exec, steps, publish, e.persistProgress(ctx))
	return runID, e.finishRun(ctx, runID, def, exec, runErr)
}

// persistProgress records state transitions and, once the capture step has
// produced an artifact, inserts its row immediately so the artifact survives
// any later failure.
func (e *Engine) persistProgress(ctx context.Context) func(*Execution) error {
	return func(exec *Execution) error {
		orm := e.orm.WithContext(ctx)
		if err := orm.Model(&runModel{}).
			Where("id = ?", exec.RunID).
			Update("state", string(exec.State)).Error; err != nil {
			return err
		}

		if exec.Artifact == nil {
			return nil
		}
		runID := exec.RunID
		artifact := artifactModel{
			ID:     exec.Artifact.ID,
			RunID:  &runID,
			Name:   exec.Artifact.Name,
			Kind:   exec.Artifact.Kind,
			SHA256: exec.Artifact.SHA256,
			Size:   exec.Artifact.Size,
			URL:    exec.Artifact.URL,
			Meta: datatypes.JSONMap{
				"binary": exec.Artifact.BinaryName,
				"target": exec.Def.Toolchain.Target,
			},
		}
		return orm.Clauses(clause.OnConflict{DoNothing: true}).Create(&artifact).Error
	}
}

func (e *Engine) finishRun(ctx context.Context, runID uuid.UUID, def *Definition, exec *Execution, runErr error) error {
	finishedAt := time.Now().UTC()

	// The release row goes in before the final status update: a failed
	// insert (a tag published twice hits the unique index) is a terminal
	// run failure and the run row must say so.
	if runErr == nil && exec != nil && exec.Release != nil {
		if err := e.insertRelease(ctx, runID, exec); err != nil {
			runErr = err
		}
	}

	status := StatusSuccess
	state := StateSkippedPublish
	logs := ""
	if exec != nil {
		state = exec.State
		logs = exec.Logs()
	}
	if runErr != nil {
		status = StatusFailed
		state = StateFailed
	}

	updates := map[string]any{
		"status":      status,
		"state":       string(state),
		"finished_at": finishedAt,
		"logs":        logs,
	}
	if err := e.orm.WithContext(ctx).
		Model(&runModel{}).
		Where("id = ?", runID).
		Updates(updates).Error; err != nil && runErr == nil {
		runErr = err
	}

	runsTotal.WithLabelValues(status).Inc()

	payload := map[string]any{
		"run_id":      runID,
		"pipeline":    def.Name,
		"status":      status,
		"state":       state,
		"finished_at": finishedAt,
	}
	if runErr != nil {
		payload["status"] = StatusFailed
		payload["error"] = runErr.Error()
	}
	e.publish(ctx, bus.RunsFinishedSubject, payload)

	return runErr
}

func (e *Engine) insertRelease(ctx context.Context, runID uuid.UUID, exec *Execution) error {
	artifactID := exec.Release.ArtifactID
	release := releaseModel{
		ID:          exec.Release.ID,
		Tag:         exec.Release.Tag,
		RunID:       &runID,
		ArtifactID:  &artifactID,
		Notes:       exec.Release.Notes,
		PublishedAt: time.Now().UTC(),
	}
	if err := e.orm.WithContext(ctx).Create(&release).Error; err != nil {
		return err
	}

	releasesTotal.Inc()
	e.publish(ctx, bus.ReleasesPublishedSubject, map[string]any{
		"release_id":  release.ID,
		"tag":         release.Tag,
		"run_id":      runID,
		"artifact_id": artifactID,
	})
	return nil
}

func (e *Engine) publish(ctx context.Context, subject string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, subject, payload); err != nil {
		e.logger.Printf("ERROR publish %s: %v", subject, err)
	}
}
