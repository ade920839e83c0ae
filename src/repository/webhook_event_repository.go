package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradevault/src/database"
	"tradevault/src/model"
)

// WebhookEventRepository handles read/write operations for ingested
// signal events.
type WebhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new repository instance using the main read/write database.
func NewWebhookEventRepository() *WebhookEventRepository {
	return &WebhookEventRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *WebhookEventRepository) WithDB(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// FindByDedupeKey fetches an event by its idempotency triple
// (source, target account, external event id).
// Returns (nil, nil) if no such event exists.
func (r *WebhookEventRepository) FindByDedupeKey(
	ctx context.Context,
	sourceID uint,
	targetAccountID uint,
	externalEventID string,
) (*model.WebhookEvent, error) {

	logger.WithFields(map[string]interface{}{
		"repo":              "WebhookEventRepository",
		"op":                "FindByDedupeKey",
		"source_id":         sourceID,
		"target_account_id": targetAccountID,
		"external_event_id": externalEventID,
	}).Debug("Fetching webhook event by dedupe key")

	var event model.WebhookEvent

	err := r.db.WithContext(ctx).
		Where("source_id = ? AND target_account_id = ? AND external_event_id = ?",
			sourceID, targetAccountID, externalEventID).
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":              "WebhookEventRepository",
			"op":                "FindByDedupeKey",
			"source_id":         sourceID,
			"external_event_id": externalEventID,
		}).WithError(err).Error("Failed to fetch webhook event by dedupe key")

		return nil, err
	}

	return &event, nil
}

// CountBySourceSince counts events ingested for a source after the
// given instant. Used for per-source rate limiting.
func (r *WebhookEventRepository) CountBySourceSince(
	ctx context.Context,
	sourceID uint,
	since time.Time,
) (int64, error) {

	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("source_id = ? AND created_at >= ?", sourceID, since).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "WebhookEventRepository",
			"op":        "CountBySourceSince",
			"source_id": sourceID,
		}).WithError(err).Error("Failed to count recent webhook events")

		return 0, err
	}

	return count, nil
}

// Create inserts a new webhook event.
func (r *WebhookEventRepository) Create(
	ctx context.Context,
	event *model.WebhookEvent,
) error {

	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "WebhookEventRepository",
			"op":        "Create",
			"source_id": event.SourceID,
		}).WithError(err).Error("Failed to create webhook event")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "WebhookEventRepository",
		"op":       "Create",
		"event_id": event.ID,
		"action":   event.Action,
	}).Info("Webhook event created")

	return nil
}

// Save persists the current state of an event.
func (r *WebhookEventRepository) Save(
	ctx context.Context,
	event *model.WebhookEvent,
) error {

	err := r.db.WithContext(ctx).Save(event).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WebhookEventRepository",
			"op":       "Save",
			"event_id": event.ID,
		}).WithError(err).Error("Failed to save webhook event")
		return err
	}

	return nil
}

// FindLatest returns the latest events ordered from newest to oldest.
func (r *WebhookEventRepository) FindLatest(
	ctx context.Context,
	limit int,
) ([]model.WebhookEvent, error) {

	if limit <= 0 {
		limit = 20
	}

	var events []model.WebhookEvent

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "WebhookEventRepository",
			"op":    "FindLatest",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch latest webhook events")

		return nil, err
	}

	return events, nil
}
