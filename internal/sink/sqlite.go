package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Submission is one archived save offer.
type Submission struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Filename  string
	MimeType  string
	Data      []byte
	// Envelope holds the offer as a queryable JSON column when the
	// offered bytes are JSON.
	Envelope datatypes.JSON
}

// SQLite archives offered submissions as rows in a local SQLite
// database instead of loose files.
type SQLite struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewSQLite opens (or creates) the archive database at path and
// migrates its schema.
func NewSQLite(path string, log zerolog.Logger) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive db: %w", err)
	}
	if err := db.AutoMigrate(&Submission{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Using SQLite submission archive")
	return &SQLite{db: db, log: log}, nil
}

// Save archives the offer as a row.
func (s *SQLite) Save(ctx context.Context, filename, mimeType string, data []byte) error {
	sub := Submission{
		Filename: filename,
		MimeType: mimeType,
		Data:     data,
	}
	if mimeType == "application/json" && json.Valid(data) {
		sub.Envelope = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return fmt.Errorf("failed to archive submission: %w", err)
	}

	s.log.Debug().Str("filename", filename).Uint("id", sub.ID).Msg("Archived submission")
	return nil
}

// Count returns the number of archived submissions.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Submission{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
