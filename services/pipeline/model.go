package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type runModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TriggerEventID *uuid.UUID `gorm:"type:uuid"`
	Pipeline       string     `gorm:"type:text;not null"`
	Ref            string     `gorm:"type:text;not null"`
	RefType        string     `gorm:"type:text;not null"`
	CommitSHA      string     `gorm:"type:text"`
	Status         string     `gorm:"type:text;not null"`
	State          string     `gorm:"type:text;not null"`
	StartedAt      *time.Time `gorm:"type:timestamptz"`
	FinishedAt     *time.Time `gorm:"type:timestamptz"`
	Logs           string     `gorm:"type:text"`
}

func (runModel) TableName() string { return "runs" }

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

type releaseModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Tag         string     `gorm:"type:text;uniqueIndex;not null"`
	RunID       *uuid.UUID `gorm:"type:uuid"`
	ArtifactID  *uuid.UUID `gorm:"type:uuid"`
	Notes       string     `gorm:"type:text"`
	PublishedAt time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (releaseModel) TableName() string { return "releases" }
