package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type TriggerEvent struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Kind       string            `gorm:"type:text;not null"`
	Ref        string            `gorm:"type:text;not null"`
	RefType    string            `gorm:"type:text;not null"`
	CommitSHA  string            `gorm:"type:text"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb"`
	ReceivedAt time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type Run struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey"`
	TriggerEventID *uuid.UUID   `gorm:"type:uuid"`
	Pipeline       string       `gorm:"type:text;not null"`
	Ref            string       `gorm:"type:text;not null"`
	RefType        string       `gorm:"type:text;not null"`
	CommitSHA      string       `gorm:"type:text"`
	Status         string       `gorm:"type:text;not null"`
	State          string       `gorm:"type:text;not null"`
	StartedAt      *time.Time   `gorm:"type:timestamptz"`
	FinishedAt     *time.Time   `gorm:"type:timestamptz"`
	Logs           string       `gorm:"type:text"`
	TriggerEvent   TriggerEvent `gorm:"foreignKey:TriggerEventID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

type Artifact struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	RunID     *uuid.UUID        `gorm:"type:uuid;index"`
	Name      string            `gorm:"type:text;not null"`
	Kind      string            `gorm:"type:text;not null"`
	SHA256    string            `gorm:"type:text;not null"`
	Size      int64             `gorm:"type:bigint;not null"`
	URL       string            `gorm:"type:text;not null"`
	Meta      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Run       Run               `gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

type Release struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Tag         string     `gorm:"type:text;uniqueIndex;not null"`
	RunID       *uuid.UUID `gorm:"type:uuid"`
	ArtifactID  *uuid.UUID `gorm:"type:uuid"`
	Notes       string     `gorm:"type:text"`
	PublishedAt time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Run         Run        `gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Artifact    Artifact   `gorm:"foreignKey:ArtifactID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&TriggerEvent{},
		&Run{},
		&Artifact{},
		&Release{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&Run{}, "TriggerEvent"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Artifact{}, "Run"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Release{}, "Run"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Release{}, "Artifact"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).Migrator().DropTable(
		&Release{},
		&Artifact{},
		&Run{},
		&TriggerEvent{},
	); err != nil {
		return err
	}

	return nil
}
