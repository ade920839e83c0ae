package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradevault/src/database"
	"tradevault/src/model"
)

// TradeJobRepository handles read/write operations for trade jobs.
type TradeJobRepository struct {
	db *gorm.DB
}

// NewTradeJobRepository creates a new repository instance using the main read/write database.
func NewTradeJobRepository() *TradeJobRepository {
	return &TradeJobRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TradeJobRepository) WithDB(db *gorm.DB) *TradeJobRepository {
	return &TradeJobRepository{db: db}
}

// Create inserts a new trade job.
func (r *TradeJobRepository) Create(
	ctx context.Context,
	job *model.TradeJob,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "TradeJobRepository",
		"op":     "Create",
		"symbol": job.Symbol,
		"side":   job.Side,
		"qty":    job.Quantity.String(),
	}).Debug("Creating new trade job")

	err := r.db.WithContext(ctx).Create(job).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeJobRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create trade job")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "TradeJobRepository",
		"op":     "Create",
		"job_id": job.ID,
	}).Info("Trade job created")

	return nil
}

// FindByID fetches a single job by its primary ID.
// Returns (nil, nil) if the job is not found.
func (r *TradeJobRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.TradeJob, error) {

	var job model.TradeJob

	err := r.db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "TradeJobRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trade job by ID")

		return nil, err
	}

	return &job, nil
}

// ClaimNextPending atomically picks the oldest pending job and marks it
// executing. Returns (nil, nil) when the queue is empty.
//
// The worker running this is the only writer system-wide, so the
// pick-and-mark does not need a distributed lock; the transaction only
// guards against a crash between the two statements.
func (r *TradeJobRepository) ClaimNextPending(
	ctx context.Context,
) (*model.TradeJob, error) {

	var job model.TradeJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ?", model.JobStatusPending).
			Order("id ASC").
			First(&job).Error; err != nil {
			return err
		}

		job.Status = model.JobStatusExecuting
		return tx.Save(&job).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "TradeJobRepository",
			"op":   "ClaimNextPending",
		}).WithError(err).Error("Failed to claim next pending trade job")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "TradeJobRepository",
		"op":     "ClaimNextPending",
		"job_id": job.ID,
		"symbol": job.Symbol,
		"side":   job.Side,
	}).Info("Trade job claimed for execution")

	return &job, nil
}

// Save persists the current state of a job.
func (r *TradeJobRepository) Save(
	ctx context.Context,
	job *model.TradeJob,
) error {

	err := r.db.WithContext(ctx).Save(job).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeJobRepository",
			"op":     "Save",
			"job_id": job.ID,
		}).WithError(err).Error("Failed to save trade job")
		return err
	}

	return nil
}

// FindByStatus returns jobs in a given status, oldest first.
func (r *TradeJobRepository) FindByStatus(
	ctx context.Context,
	status string,
	limit int,
) ([]model.TradeJob, error) {

	if limit <= 0 {
		limit = 50
	}

	var jobs []model.TradeJob

	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeJobRepository",
			"op":     "FindByStatus",
			"status": status,
		}).WithError(err).Error("Failed to fetch trade jobs by status")

		return nil, err
	}

	return jobs, nil
}

// FindLatest returns the latest jobs ordered from newest to oldest.
func (r *TradeJobRepository) FindLatest(
	ctx context.Context,
	limit int,
) ([]model.TradeJob, error) {

	if limit <= 0 {
		limit = 20
	}

	var jobs []model.TradeJob

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "TradeJobRepository",
			"op":    "FindLatest",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch latest trade jobs")

		return nil, err
	}

	return jobs, nil
}
