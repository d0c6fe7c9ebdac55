package progress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

type progressRow struct {
	UserID     string `gorm:"primaryKey"`
	StorageKey string `gorm:"not null"`
	Payload    []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

func (progressRow) TableName() string { return "user_progress" }

// SQLiteStore is a single-file store for local and kiosk deployments.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" is accepted.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	if err := db.AutoMigrate(&progressRow{}); err != nil {
		return nil, fmt.Errorf("migrate user_progress: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, userID string) (reward.UserProgress, bool, error) {
	if err := checkUserID(userID); err != nil {
		return reward.UserProgress{}, false, err
	}
	var row progressRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reward.UserProgress{}, false, nil
	}
	if err != nil {
		return reward.UserProgress{}, false, err
	}
	p, err := reward.Decode(row.Payload)
	if err != nil {
		return reward.UserProgress{}, true, err
	}
	return p, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, userID string, p reward.UserProgress) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	data, err := reward.Encode(p)
	if err != nil {
		return err
	}
	row := progressRow{UserID: userID, StorageKey: reward.StorageKey, Payload: data, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&progressRow{}).Error
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
