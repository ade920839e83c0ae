package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradevault/src/model"
	"tradevault/src/repository"
)

// Rejections surfaced to the webhook endpoint. None of them persist an
// event: validation happens before any write.
var (
	ErrUnknownSource  = errors.New("ingest: unknown source code")
	ErrSourceInactive = errors.New("ingest: source is inactive")
	ErrIPNotAllowed   = errors.New("ingest: source IP not in allow-list")
	ErrBadSignature   = errors.New("ingest: signature verification failed")
	ErrRateLimited    = errors.New("ingest: source rate limit exceeded")
)

const normScale = 8

// Service validates, parses, deduplicates incoming signals and fans
// them out into trade jobs per bound account. It is safe to run on
// multiple instances: the unique event key in the store is what
// enforces idempotency, not in-process state.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Result reports the ingested event and how many jobs it spawned.
// A duplicate delivery returns the original event with JobsCreated=0.
type Result struct {
	Event       *model.WebhookEvent
	JobsCreated int
	Duplicate   bool
}

// Ingest processes one webhook delivery end to end. The event and all
// jobs it spawns are written in a single transaction.
func (s *Service) Ingest(
	ctx context.Context,
	sourceCode string,
	payload []byte,
	signature string,
	sourceIP string,
) (*Result, error) {

	source, err := repository.NewWebhookSourceRepository().WithDB(s.db).FindByCode(ctx, sourceCode)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrUnknownSource
	}
	if !source.Active {
		return nil, ErrSourceInactive
	}

	if !source.AllowsIP(sourceIP) {
		logger.WithFields(map[string]interface{}{
			"source_id": source.ID,
			"source_ip": sourceIP,
		}).Warn("webhook rejected: IP not allowed")
		return nil, ErrIPNotAllowed
	}

	if source.SigningSecret != "" {
		if !verifySignature(payload, signature, source.SigningSecret) {
			logger.WithField("source_id", source.ID).Warn("webhook rejected: bad signature")
			return nil, ErrBadSignature
		}
	}

	eventRepo := repository.NewWebhookEventRepository().WithDB(s.db)

	if source.RateLimitPerMinute > 0 {
		since := s.now().Add(-60 * time.Second)
		count, err := eventRepo.CountBySourceSince(ctx, source.ID, since)
		if err != nil {
			return nil, err
		}
		if count >= int64(source.RateLimitPerMinute) {
			logger.WithFields(map[string]interface{}{
				"source_id": source.ID,
				"count":     count,
				"limit":     source.RateLimitPerMinute,
			}).Warn("webhook rejected: rate limit exceeded")
			return nil, ErrRateLimited
		}
	}

	signal := ParsePayload(payload)

	externalID := signal.ExternalID
	if externalID == "" {
		// no id from the sender: every delivery is distinct
		externalID = uuid.NewString()
	}

	existing, err := eventRepo.FindByDedupeKey(ctx, source.ID, signal.TargetAccountID, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.WithFields(map[string]interface{}{
			"source_id":         source.ID,
			"external_event_id": externalID,
			"event_id":          existing.ID,
		}).Info("duplicate webhook delivery, returning original event")
		return &Result{Event: existing, JobsCreated: 0, Duplicate: true}, nil
	}

	event := &model.WebhookEvent{
		SourceID:         source.ID,
		TargetAccountID:  signal.TargetAccountID,
		ExternalEventID:  externalID,
		TradeMode:        source.TradeMode,
		SymbolRaw:        signal.SymbolRaw,
		SymbolNormalized: signal.Symbol,
		Action:           signal.Action,
		Timeframe:        signal.Timeframe,
		PriceReference:   signal.Price,
		Quantity:         signal.Quantity,
		RawPayload:       string(payload),
		SourceIP:         sourceIP,
		Status:           model.EventStatusReceived,
	}

	jobsCreated := 0

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txEventRepo := repository.NewWebhookEventRepository().WithDB(tx)
		txJobRepo := repository.NewTradeJobRepository().WithDB(tx)

		if err := txEventRepo.Create(ctx, event); err != nil {
			return err
		}

		if event.Action != model.SignalActionUnknown {
			for _, binding := range source.Bindings {
				job, ok := s.buildJob(source, &binding, event)
				if !ok {
					continue
				}
				if err := txJobRepo.Create(ctx, job); err != nil {
					return err
				}
				jobsCreated++
			}
		}

		if jobsCreated > 0 {
			event.Status = model.EventStatusJobCreated
		} else {
			event.Status = model.EventStatusSkipped
		}
		return txEventRepo.Save(ctx, event)
	})

	if err != nil {
		// a concurrent instance may have won the unique-index race;
		// surface the original event as a duplicate in that case
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := eventRepo.FindByDedupeKey(ctx, source.ID, signal.TargetAccountID, externalID)
			if findErr == nil && existing != nil {
				return &Result{Event: existing, JobsCreated: 0, Duplicate: true}, nil
			}
		}
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"source_id":    source.ID,
		"event_id":     event.ID,
		"action":       event.Action,
		"symbol":       event.SymbolNormalized,
		"jobs_created": jobsCreated,
		"status":       event.Status,
	}).Info("webhook event ingested")

	return &Result{Event: event, JobsCreated: jobsCreated}, nil
}

// buildJob derives one trade job from an event for a binding, or
// reports that the binding is not eligible.
func (s *Service) buildJob(
	source *model.WebhookSource,
	binding *model.AccountBinding,
	event *model.WebhookEvent,
) (*model.TradeJob, bool) {

	if !binding.Active || binding.Account == nil {
		return nil, false
	}

	// simulation accounts only receive simulation signals and vice versa
	if binding.Account.TradeMode() != event.TradeMode {
		return nil, false
	}

	if event.TargetAccountID != 0 && event.TargetAccountID != binding.AccountID {
		return nil, false
	}

	side := model.JobSideBuy
	if event.Action == model.SignalActionSell {
		side = model.JobSideSell
	}

	weight := binding.Weight
	if weight.LessThanOrEqual(decimal.Zero) {
		weight = decimal.NewFromInt(1)
	}

	return &model.TradeJob{
		EventID:       event.ID,
		AccountID:     binding.AccountID,
		Symbol:        event.SymbolNormalized,
		Side:          side,
		TradeMode:     event.TradeMode,
		Quantity:      event.Quantity.Mul(weight).Truncate(normScale),
		ClientOrderID: "tv-" + uuid.NewString(),
		Status:        model.JobStatusPending,
	}, true
}

// verifySignature checks an HMAC-SHA256 hex signature over the raw
// body. A "sha256=" prefix is tolerated. Comparison is constant time.
func verifySignature(body []byte, signature string, secret string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
