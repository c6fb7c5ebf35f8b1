// Package store persists finished simulation runs with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dclbond/dcl"
	"dclbond/internal/logger"
)

var ErrNotFound = errors.New("run not found")

const rowBatchSize = 500

type Store struct {
	db *gorm.DB
}

// RunInfo is the listing view of a stored run.
type RunInfo struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"`
	Params    dcl.BondParameters `json:"params"`
	Summary   dcl.Summary        `json:"summary"`
}

// StoredRun is a run with its full row table.
type StoredRun struct {
	RunInfo
	Rows []dcl.Row `json:"rows"`
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dial gorm.Dialector
	switch driver {
	case "sqlite":
		dial = sqlite.Open(dsn)
	case "postgres":
		dial = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Run{}, &RunRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Save stores res and its rows in one transaction and returns the new id.
func (s *Store) Save(ctx context.Context, res dcl.Result) (string, error) {
	ids, err := s.SaveAll(ctx, []dcl.Result{res})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SaveAll stores every result in a single transaction and returns their ids
// in input order. Either all runs are stored or none are.
func (s *Store) SaveAll(ctx context.Context, results []dcl.Result) ([]string, error) {
	ids := make([]string, len(results))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, res := range results {
			id, err := insertRun(tx, res)
			if err != nil {
				return fmt.Errorf("save run %q: %w", res.Name, err)
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Get().Debugw("runs stored", "ids", ids)
	return ids, nil
}

func insertRun(tx *gorm.DB, res dcl.Result) (string, error) {
	run := newRun(res)
	rows := run.Rows
	run.Rows = nil

	if err := tx.Create(run).Error; err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return run.ID, nil
	}
	for i := range rows {
		rows[i].RunID = run.ID
	}
	if err := tx.CreateInBatches(rows, rowBatchSize).Error; err != nil {
		return "", err
	}
	return run.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (StoredRun, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Preload("Rows", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoredRun{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return StoredRun{}, fmt.Errorf("get run %s: %w", id, err)
	}
	res := run.result()
	return StoredRun{RunInfo: run.info(), Rows: res.Rows}, nil
}

// List returns the most recent runs first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []Run
	if err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]RunInfo, len(runs))
	for i := range runs {
		out[i] = runs[i].info()
	}
	return out, nil
}

func (r *Run) info() RunInfo {
	return RunInfo{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		Params:    r.params(),
		Summary:   r.summary(),
	}
}
