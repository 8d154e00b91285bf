package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"shipd/pkg/render"
)

// publishStep creates the release record for a tag run. runPipeline only
// reaches it when the triggering ref is a tag, so the guard lives in one
// place.
type publishStep struct {
	renderer *render.Engine
}

func (publishStep) Name() string { return "publish" }
func (publishStep) Next() State  { return StatePublished }

func (s publishStep) Run(ctx context.Context, exec *Execution) error {
	if exec.Artifact == nil {
		return errors.New("no captured artifact to publish")
	}
	if s.renderer == nil {
		return errors.New("renderer not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	notes, err := s.renderer.ReleaseNotes(render.ReleaseNotes{
		Tag:          exec.Event.Ref,
		Pipeline:     exec.Def.Name,
		CommitSHA:    exec.Event.CommitSHA,
		ArtifactName: exec.Artifact.Name,
		BinaryName:   exec.Artifact.BinaryName,
		SHA256:       exec.Artifact.SHA256,
		Size:         exec.Artifact.Size,
	})
	if err != nil {
		return err
	}

	exec.Release = &ReleaseRecord{
		ID:         uuid.New(),
		Tag:        exec.Event.Ref,
		ArtifactID: exec.Artifact.ID,
		Notes:      notes,
	}
	exec.Logf("published release %s", exec.Release.Tag)
	return nil
}
