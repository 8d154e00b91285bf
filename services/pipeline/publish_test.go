package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"shipd/pkg/render"
)

func TestPublishStep(t *testing.T) {
	renderer, err := render.New()
	if err != nil {
		t.Fatalf("render.New() error = %v", err)
	}

	exec := newTestExecution(t, TriggerEvent{
		Kind:      TriggerPush,
		Ref:       "v1.2.3",
		RefType:   RefTag,
		CommitSHA: "0a1b2c3d",
	})
	exec.State = StateArtifactCaptured
	exec.Artifact = &CapturedArtifact{
		ID:         uuid.New(),
		Name:       "win64-satsuki",
		BinaryName: "satsuki.exe",
		SHA256:     "deadbeef",
		Size:       2048,
	}

	step := publishStep{renderer: renderer}
	if err := step.Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rel := exec.Release
	if rel == nil {
		t.Fatal("no release record")
	}
	if rel.Tag != "v1.2.3" {
		t.Errorf("tag = %q, want v1.2.3", rel.Tag)
	}
	if rel.ArtifactID != exec.Artifact.ID {
		t.Error("release not linked to captured artifact")
	}
	if !strings.Contains(rel.Notes, "satsuki.exe") {
		t.Errorf("notes missing asset name:\n%s", rel.Notes)
	}
}

func TestPublishStepRequiresArtifact(t *testing.T) {
	renderer, err := render.New()
	if err != nil {
		t.Fatalf("render.New() error = %v", err)
	}

	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "v1.2.3", RefType: RefTag})
	if err := (publishStep{renderer: renderer}).Run(context.Background(), exec); err == nil {
		t.Fatal("expected error without captured artifact")
	}
}
