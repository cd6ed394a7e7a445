// Package postgres implements storage.EmissionStore on PostgreSQL with gorm.
// Transitions and snapshots are rows of their own, inserted next to the
// record update in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

// Store implements storage.EmissionStore
type Store struct {
	db *gorm.DB
}

// artifact holds the nfeProc document of a record
type artifact struct {
	RecordID  string `gorm:"primaryKey;size:36"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// Config holds connection settings
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Debug logs every statement
	Debug bool
}

// NewStore connects and migrates the schema
func NewStore(cfg *Config) (*Store, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		NamingStrategy: schema.NamingStrategy{TablePrefix: "nfe_"},
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting database instance: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&storage.EmissionRecord{}, &storage.Transition{}, &storage.Snapshot{}, &artifact{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Create(ctx context.Context, rec *storage.EmissionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s/%s", storage.ErrDuplicate, rec.CompanyID, rec.AccessKey)
	}
	return err
}

func withHistory(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Transitions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Snapshots", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func find(db *gorm.DB, companyID, accessKey string) (*storage.EmissionRecord, error) {
	var rec storage.EmissionRecord
	err := withHistory(db).
		Where("company_id = ? AND access_key = ?", companyID, accessKey).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Get(ctx context.Context, companyID, accessKey string) (*storage.EmissionRecord, error) {
	return find(s.db.WithContext(ctx), companyID, accessKey)
}

// Transition locks the record row, updates its columns and inserts the
// history rows
func (s *Store) Transition(ctx context.Context, companyID, accessKey string, change storage.Change) (*storage.EmissionRecord, error) {
	var out *storage.EmissionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec storage.EmissionRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("company_id = ? AND access_key = ?", companyID, accessKey).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s/%s", storage.ErrNotFound, companyID, accessKey)
		}
		if err != nil {
			return err
		}

		rec.Apply(&change, time.Now().UTC())
		err = tx.Model(&storage.EmissionRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
			"status":          rec.Status,
			"status_code":     rec.StatusCode,
			"reason":          rec.Reason,
			"batch_id":        rec.BatchID,
			"receipt":         rec.Receipt,
			"protocol":        rec.Protocol,
			"cancel_protocol": rec.CancelProtocol,
			"attempts":        rec.Attempts,
			"last_error":      rec.LastError,
			"signed_xml":      rec.SignedXML,
			"authorized_at":   rec.AuthorizedAt,
			"updated_at":      rec.UpdatedAt,
		}).Error
		if err != nil {
			return fmt.Errorf("updating emission record: %w", err)
		}

		change.Transition.RecordID = rec.ID
		if err := tx.Create(&change.Transition).Error; err != nil {
			return fmt.Errorf("inserting transition: %w", err)
		}
		if len(change.Snapshots) > 0 {
			for i := range change.Snapshots {
				change.Snapshots[i].RecordID = rec.ID
			}
			if err := tx.Create(&change.Snapshots).Error; err != nil {
				return fmt.Errorf("inserting snapshots: %w", err)
			}
		}

		out, err = find(tx, companyID, accessKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListPending(ctx context.Context, statuses []storage.Status, updatedBefore time.Time, limit int) ([]*storage.EmissionRecord, error) {
	q := s.db.WithContext(ctx).
		Preload("Transitions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("status IN ? AND updated_at < ?", statuses, updatedBefore).
		Order("updated_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []*storage.EmissionRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) StoreArtifact(ctx context.Context, companyID, accessKey string, data []byte) error {
	rec, err := s.Get(ctx, companyID, accessKey)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s/%s", storage.ErrNotFound, companyID, accessKey)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&artifact{RecordID: rec.ID, Data: data}).Error
}

func (s *Store) GetArtifact(ctx context.Context, companyID, accessKey string) ([]byte, error) {
	var a artifact
	err := s.db.WithContext(ctx).
		Joins("JOIN nfe_emission_records r ON r.id = nfe_artifacts.record_id").
		Where("r.company_id = ? AND r.access_key = ?", companyID, accessKey).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	return a.Data, nil
}
