package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradevault/src/database"
	"tradevault/src/model"
)

// WebhookSourceRepository handles read operations for signal sources
// and their account bindings.
type WebhookSourceRepository struct {
	db *gorm.DB
}

// NewWebhookSourceRepository creates a new repository instance using the main read/write database.
func NewWebhookSourceRepository() *WebhookSourceRepository {
	return &WebhookSourceRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *WebhookSourceRepository) WithDB(db *gorm.DB) *WebhookSourceRepository {
	return &WebhookSourceRepository{db: db}
}

// FindByCode fetches a source by its opaque URL code, preloading the
// active bindings and their accounts. Returns (nil, nil) if not found.
func (r *WebhookSourceRepository) FindByCode(
	ctx context.Context,
	code string,
) (*model.WebhookSource, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "WebhookSourceRepository",
		"op":   "FindByCode",
		"code": code,
	}).Debug("Fetching webhook source by code")

	var source model.WebhookSource

	err := r.db.WithContext(ctx).
		Preload("Bindings", "active = ?", true).
		Preload("Bindings.Account").
		Where("code = ?", code).
		First(&source).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "WebhookSourceRepository",
				"op":   "FindByCode",
				"code": code,
			}).Info("Webhook source not found")
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "WebhookSourceRepository",
			"op":   "FindByCode",
			"code": code,
		}).WithError(err).Error("Failed to fetch webhook source by code")

		return nil, err
	}

	return &source, nil
}

// Create inserts a new webhook source.
func (r *WebhookSourceRepository) Create(
	ctx context.Context,
	source *model.WebhookSource,
) error {

	err := r.db.WithContext(ctx).Create(source).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WebhookSourceRepository",
			"op":   "Create",
			"code": source.Code,
		}).WithError(err).Error("Failed to create webhook source")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "WebhookSourceRepository",
		"op":        "Create",
		"source_id": source.ID,
	}).Info("Webhook source created")

	return nil
}
