package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FallbackRecord is one entry in the local fallback log: the full report
// payload, kept until an out-of-band replay lands it in the primary store
type FallbackRecord struct {
	ReportID     string     `json:"report_id" gorm:"size:36;primaryKey"`
	Payload      string     `json:"payload" gorm:"type:text;not null"`
	SavedToCloud bool       `json:"saved_to_cloud"`
	CreatedAt    time.Time  `json:"created_at"`
	ReplayedAt   *time.Time `json:"replayed_at,omitempty"`
}

// FallbackLog is a local durable store used when the primary report store
// is unreachable. It is single-writer: one finalization runs per controller
// instance, so sequential access is enough
type FallbackLog struct {
	db *gorm.DB
}

// NewFallbackLog opens (or creates) the fallback log at the given sqlite path
func NewFallbackLog(path string) (*FallbackLog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback log: %w", err)
	}

	if err := db.AutoMigrate(&FallbackRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate fallback log: %w", err)
	}

	return &FallbackLog{db: db}, nil
}

// Write records a report that could not reach the primary store. Keyed by
// report id, so a retried finalization overwrites rather than duplicates
func (l *FallbackLog) Write(ctx context.Context, r *Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report payload: %w", err)
	}

	record := &FallbackRecord{
		ReportID:     r.ID.String(),
		Payload:      string(payload),
		SavedToCloud: false,
	}

	result := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_id"}},
		UpdateAll: true,
	}).Create(record)
	if result.Error != nil {
		return fmt.Errorf("failed to write fallback record: %w", result.Error)
	}

	return nil
}

// Pending returns all records not yet replayed into the primary store
func (l *FallbackLog) Pending(ctx context.Context) ([]*FallbackRecord, error) {
	var records []*FallbackRecord
	result := l.db.WithContext(ctx).
		Where("saved_to_cloud = ?", false).
		Order("created_at").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query fallback records: %w", result.Error)
	}

	return records, nil
}

// MarkReplayed flags a record as successfully landed in the primary store
func (l *FallbackLog) MarkReplayed(ctx context.Context, reportID string) error {
	now := time.Now()
	result := l.db.WithContext(ctx).
		Model(&FallbackRecord{}).
		Where("report_id = ?", reportID).
		Updates(map[string]any{"saved_to_cloud": true, "replayed_at": &now})
	if result.Error != nil {
		return fmt.Errorf("failed to mark record replayed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("fallback record not found: %s", reportID)
	}

	return nil
}

// Decode unpacks the report payload stored in a fallback record
func (r *FallbackRecord) Decode() (*Report, error) {
	var report Report
	if err := json.Unmarshal([]byte(r.Payload), &report); err != nil {
		return nil, fmt.Errorf("failed to decode fallback payload: %w", err)
	}
	return &report, nil
}

// Close closes the fallback log
func (l *FallbackLog) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	return sqlDB.Close()
}
