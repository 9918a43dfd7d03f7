package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/hackchat/internal/persist"
)

const DefaultKey = "default"

// SnapshotRecord holds one serialized chat state.
type SnapshotRecord struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)"`
	Payload   string    `gorm:"type:longtext;not null"`
	Revision  string    `gorm:"type:char(26);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SnapshotRecord) TableName() string { return "chat_snapshots" }

// Store is a persist.Backend over a single gorm row.
type Store struct {
	db  *gorm.DB
	key string
}

func New(db *gorm.DB, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{db: db, key: key}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&SnapshotRecord{})
}

func (s *Store) Read(ctx context.Context) ([]byte, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).Where(&SnapshotRecord{Key: s.key}).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persist.ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return []byte(rec.Payload), nil
}

func (s *Store) Write(ctx context.Context, payload []byte) error {
	rec := SnapshotRecord{
		Key:       s.key,
		Payload:   string(payload),
		Revision:  ulid.Make().String(),
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "revision", "updated_at"}),
	}).Create(&rec).Error
}

func (s *Store) Delete(ctx context.Context) error {
	return s.db.WithContext(ctx).Where(&SnapshotRecord{Key: s.key}).Delete(&SnapshotRecord{}).Error
}

// Revision returns the ULID of the last write, for dump output.
func (s *Store) Revision(ctx context.Context) (string, time.Time, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).Select("revision", "updated_at").Where(&SnapshotRecord{Key: s.key}).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", time.Time{}, persist.ErrNoSnapshot
	}
	return rec.Revision, rec.UpdatedAt, err
}
