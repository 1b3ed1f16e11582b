package report

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveResult carries the canonical storage reference back to the caller
type SaveResult struct {
	ReportID    uuid.UUID `json:"report_id"`
	StoragePath string    `json:"storage_path"`
}

// Store interface defines methods for durable report storage
type Store interface {
	Save(ctx context.Context, r *Report) (*SaveResult, error)
	Get(ctx context.Context, id uuid.UUID) (*Report, error)
	FindByProjectAndDate(ctx context.Context, projectID, date string) ([]*Report, error)
}

// MySqlStore handles report persistence using GORM
type MySqlStore struct {
	db *gorm.DB
}

// NewMySqlStore creates a new report store with GORM connection
func NewMySqlStore(databaseURL string) (*MySqlStore, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newStore(db)
}

// NewStoreWithDB wraps an existing GORM connection, running migrations
func NewStoreWithDB(db *gorm.DB) (*MySqlStore, error) {
	return newStore(db)
}

func newStore(db *gorm.DB) (*MySqlStore, error) {
	store := &MySqlStore{db: db}

	// Auto-migrate tables
	if err := db.AutoMigrate(&Report{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return store, nil
}

// Save upserts a report keyed by its deterministic id. Saving the same
// session's report twice updates the existing record rather than creating
// a duplicate
func (s *MySqlStore) Save(ctx context.Context, r *Report) (*SaveResult, error) {
	if r.ID == uuid.Nil {
		return nil, fmt.Errorf("report has no id")
	}

	r.Persisted = true
	r.StoragePath = fmt.Sprintf("reports/%s/%s", r.ReportDate, r.ID)

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(r)
	if result.Error != nil {
		r.Persisted = false
		r.StoragePath = ""
		return nil, fmt.Errorf("failed to save report: %w", result.Error)
	}

	return &SaveResult{ReportID: r.ID, StoragePath: r.StoragePath}, nil
}

// Get retrieves a report by ID
func (s *MySqlStore) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	var r Report
	result := s.db.WithContext(ctx).First(&r, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("report not found")
		}
		return nil, fmt.Errorf("failed to get report: %w", result.Error)
	}

	return &r, nil
}

// FindByProjectAndDate retrieves all reports for a project on a given date
func (s *MySqlStore) FindByProjectAndDate(ctx context.Context, projectID, date string) ([]*Report, error) {
	var reports []*Report
	result := s.db.WithContext(ctx).
		Where("project_id = ? AND report_date = ?", projectID, date).
		Order("created_at").
		Find(&reports)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query reports: %w", result.Error)
	}

	return reports, nil
}

// Close closes the database connection
func (s *MySqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	return sqlDB.Close()
}
