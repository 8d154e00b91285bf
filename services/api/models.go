package api

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TriggerEvent is the platform event that starts a pipeline run.
type TriggerEvent struct {
	ID         uuid.UUID      `json:"id"`
	Kind       string         `json:"kind"`
	Ref        string         `json:"ref"`
	RefType    string         `json:"ref_type"`
	CommitSHA  string         `json:"commit_sha,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Run is one pipeline execution.
type Run struct {
	ID             uuid.UUID  `json:"id"`
	TriggerEventID uuid.UUID  `json:"trigger_event_id,omitempty"`
	Pipeline       string     `json:"pipeline"`
	Ref            string     `json:"ref"`
	RefType        string     `json:"ref_type"`
	CommitSHA      string     `json:"commit_sha,omitempty"`
	Status         string     `json:"status"`
	State          string     `json:"state"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Logs           string     `json:"logs,omitempty"`
}

// Artifact is a captured build output stored in the artifact store.
type Artifact struct {
	ID        uuid.UUID      `json:"id"`
	RunID     uuid.UUID      `json:"run_id,omitempty"`
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	SHA256    string         `json:"sha256"`
	Size      int64          `json:"size"`
	URL       string         `json:"url"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Release is a published tag with exactly one asset attached.
type Release struct {
	ID          uuid.UUID `json:"id"`
	Tag         string    `json:"tag"`
	RunID       uuid.UUID `json:"run_id,omitempty"`
	ArtifactID  uuid.UUID `json:"artifact_id,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

type artifactModel struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	RunID     *uuid.UUID        `gorm:"type:uuid"`
	Name      string            `gorm:"type:text;not null"`
	Kind      string            `gorm:"type:text;not null"`
	SHA256    string            `gorm:"type:text;not null"`
	Size      int64             `gorm:"type:bigint;not null"`
	URL       string            `gorm:"type:text;not null"`
	Meta      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (artifactModel) TableName() string { return "artifacts" }

func (a artifactModel) toAPI() Artifact {
	return Artifact{
		ID:        a.ID,
		RunID:     valueOrZero(a.RunID),
		Name:      a.Name,
		Kind:      a.Kind,
		SHA256:    a.SHA256,
		Size:      a.Size,
		URL:       a.URL,
		Meta:      mapFromJSONMap(a.Meta),
		CreatedAt: a.CreatedAt,
	}
}

type releaseModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Tag         string     `gorm:"type:text;uniqueIndex;not null"`
	RunID       *uuid.UUID `gorm:"type:uuid"`
	ArtifactID  *uuid.UUID `gorm:"type:uuid"`
	Notes       string     `gorm:"type:text"`
	PublishedAt time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (releaseModel) TableName() string { return "releases" }

func (r releaseModel) toAPI() Release {
	return Release{
		ID:          r.ID,
		Tag:         r.Tag,
		RunID:       valueOrZero(r.RunID),
		ArtifactID:  valueOrZero(r.ArtifactID),
		Notes:       r.Notes,
		PublishedAt: r.PublishedAt,
	}
}

func mapFromJSONMap(src datatypes.JSONMap) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func valueOrZero(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
