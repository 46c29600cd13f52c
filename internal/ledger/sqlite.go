package ledger

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// mergedMessage is one provider message ID already merged into a
// conversation.
type mergedMessage struct {
	ID       string    `gorm:"primaryKey;size:128"`
	MergedAt time.Time `gorm:"index"`
}

// pollCursor persists the watermark as a single row.
type pollCursor struct {
	ID     uint `gorm:"primaryKey"`
	Cursor time.Time
}

// SQLite is a durable Ledger. It survives process restarts, so a crash
// mid-batch never re-merges the already-written half of the batch.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a sqlite-backed ledger at path.
// Use ":memory:" for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&mergedMessage{}, &pollCursor{}); err != nil {
		return nil, fmt.Errorf("ledger: migrate %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

// Seen reports whether id was already merged.
func (l *SQLite) Seen(id string) bool {
	var count int64
	l.db.Model(&mergedMessage{}).Where("id = ?", id).Count(&count)
	return count > 0
}

// Mark records id as merged. Marking an already-seen ID is a no-op.
func (l *SQLite) Mark(id string) error {
	row := mergedMessage{ID: id, MergedAt: time.Now()}
	err := l.db.Create(&row).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err != nil {
		// sqlite reports duplicate keys as a generic error on some driver
		// versions; a row that exists means the mark already succeeded.
		if l.Seen(id) {
			return nil
		}
		return fmt.Errorf("ledger: mark %s: %w", id, err)
	}
	return nil
}

// Cursor returns the persisted watermark, or the zero time before the
// first successful poll.
func (l *SQLite) Cursor() time.Time {
	var row pollCursor
	if err := l.db.First(&row, 1).Error; err != nil {
		return time.Time{}
	}
	return row.Cursor
}

// SetCursor persists the watermark.
func (l *SQLite) SetCursor(t time.Time) error {
	row := pollCursor{ID: 1, Cursor: t}
	if err := l.db.Save(&row).Error; err != nil {
		return fmt.Errorf("ledger: set cursor: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (l *SQLite) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
