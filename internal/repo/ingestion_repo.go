package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

// CreateRun inserts a run together with its initial records in one
// transaction. Missing ids are generated.
func CreateRun(ctx context.Context, db *gorm.DB, run *domain.IngestionRun) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt, run.UpdatedAt = now, now
	for i := range run.Records {
		r := &run.Records[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.RunID = run.ID
		r.CreatedAt, r.UpdatedAt = now, now
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recs := run.Records
		run.Records = nil
		defer func() { run.Records = recs }()

		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(recs, 200).Error
	})
}

// RecordUpdate is the mutable part of an ingestion record.
type RecordUpdate struct {
	Status   string
	Message  string
	Attempts int
}

// UpdateRecord stores the latest state of the record at position within run.
func UpdateRecord(ctx context.Context, db *gorm.DB, runID string, position int, u RecordUpdate) error {
	res := db.WithContext(ctx).
		Model(&domain.IngestionRecord{}).
		Where("run_id = ? AND position = ?", runID, position).
		Updates(map[string]any{
			"status":     u.Status,
			"message":    u.Message,
			"attempts":   u.Attempts,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RunOutcome holds the final counters of a run.
type RunOutcome struct {
	Status    string
	Total     int
	Succeeded int
	Failed    int
	Error     string
}

// FinishRun marks a run finished with its outcome.
func FinishRun(ctx context.Context, db *gorm.DB, id string, o RunOutcome) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.IngestionRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      o.Status,
			"total":       o.Total,
			"succeeded":   o.Succeeded,
			"failed":      o.Failed,
			"error":       o.Error,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetRun fetches a run owned by userID. With withRecords the records are
// preloaded in position order.
func GetRun(ctx context.Context, db *gorm.DB, id, userID string, withRecords bool) (*domain.IngestionRun, error) {
	q := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID)
	if withRecords {
		q = q.Preload("Records", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") })
	}
	var run domain.IngestionRun
	if err := q.First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecords returns the records of a run in position order.
func ListRecords(ctx context.Context, db *gorm.DB, runID string) ([]domain.IngestionRecord, error) {
	var out []domain.IngestionRecord
	err := db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position asc").
		Find(&out).Error
	return out, err
}

// CountRuns returns the number of runs owned by userID.
func CountRuns(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.IngestionRun{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListRunsPage returns a page of runs owned by userID, newest first. Records
// are not loaded.
func ListRunsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.IngestionRun, error) {
	var out []domain.IngestionRun
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
