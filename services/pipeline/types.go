package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind classifies the platform event that started a run.
type TriggerKind string

const (
	TriggerPush        TriggerKind = "push"
	TriggerPullRequest TriggerKind = "pull_request"
	TriggerManual      TriggerKind = "manual"
)

// RefType distinguishes branch refs from tag refs. A release is created iff
// the triggering ref is a tag.
type RefType string

const (
	RefBranch RefType = "branch"
	RefTag    RefType = "tag"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// TriggerEvent is the immutable record of the event that starts a run.
type TriggerEvent struct {
	ID         uuid.UUID      `json:"id"`
	Kind       TriggerKind    `json:"kind"`
	Ref        string         `json:"ref"`
	RefType    RefType        `json:"ref_type"`
	CommitSHA  string         `json:"commit_sha"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// CapturedArtifact describes the binary captured by a run, as stored in the
// artifact store.
type CapturedArtifact struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	BinaryName string    `json:"binary_name"`
	SHA256     string    `json:"sha256"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
}

// ReleaseRecord is the publish step's output: one release per tag, with
// exactly one asset attached.
type ReleaseRecord struct {
	ID         uuid.UUID `json:"id"`
	Tag        string    `json:"tag"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	Notes      string    `json:"notes"`
}
