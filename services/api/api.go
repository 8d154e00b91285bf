package api

import (
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"shipd/pkg/bus"
	gos3 "shipd/pkg/s3"
)

// Store bundles the backing services the handlers reach.
type Store struct {
	DB  *pgxpool.Pool
	ORM *gorm.DB
	S3  *gos3.Client
	Bus *bus.Bus
}

type Config struct {
	Store      *Store
	Logger     *log.Logger
	PresignTTL time.Duration
}

type API struct {
	store      *Store
	logger     *log.Logger
	presignTTL time.Duration
}

func New(cfg Config) (*API, error) {
	if cfg.Store == nil || cfg.Store.ORM == nil {
		return nil, errors.New("api: store with gorm handle is required")
	}
	if cfg.Store.DB == nil {
		return nil, errors.New("api: store with pgx pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	return &API{
		store:      cfg.Store,
		logger:     cfg.Logger,
		presignTTL: cfg.PresignTTL,
	}, nil
}
