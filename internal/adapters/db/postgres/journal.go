package postgres

import (
	"context"
	"fmt"
	"time"

	"golang-mq-relay/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// observationRow is the persisted form of domain.Observation.
type observationRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Destination      string    `gorm:"size:255;not null;index"`
	CorrelationToken string    `gorm:"size:36;index"`
	Payload          string    `gorm:"type:text;not null"`
	ReceivedAt       time.Time `gorm:"not null;index"`
}

func (observationRow) TableName() string { return "observations" }

func toRow(o domain.Observation) observationRow {
	return observationRow{
		ID:               o.ID,
		Destination:      o.Destination,
		CorrelationToken: o.CorrelationToken,
		Payload:          o.Payload,
		ReceivedAt:       o.ReceivedAt,
	}
}

func (r observationRow) toDomain() domain.Observation {
	return domain.Observation{
		ID:               r.ID,
		Destination:      r.Destination,
		CorrelationToken: r.CorrelationToken,
		Payload:          r.Payload,
		ReceivedAt:       r.ReceivedAt.UTC(),
	}
}

// Journal implements ports.ObservationJournal on PostgreSQL.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens a PostgreSQL connection and returns a Journal.
func NewJournal(dsn string) (*Journal, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Journal{db: db}, nil
}

// Migrate creates or updates the observations table.
func (j *Journal) Migrate() error {
	if err := j.db.AutoMigrate(&observationRow{}); err != nil {
		return fmt.Errorf("migrate observations: %w", err)
	}
	return nil
}

// Record inserts one observation.
func (j *Journal) Record(ctx context.Context, obs domain.Observation) error {
	row := toRow(obs)
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert observation %s: %w", obs.ID, err)
	}
	return nil
}

// Recent returns up to limit observations, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Observation, error) {
	var rows []observationRow
	err := j.db.WithContext(ctx).
		Order("received_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}

	out := make([]domain.Observation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Close closes the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
