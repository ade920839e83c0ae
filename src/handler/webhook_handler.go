package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradevault/src/database"
	"tradevault/src/ingest"
)

func defaultIngestService() *ingest.Service {
	return ingest.NewService(database.MainDB)
}

// Incoming webhook bodies are capped well above any realistic signal.
const maxWebhookBody = 64 * 1024

type signalIngester interface {
	Ingest(ctx context.Context, sourceCode string, payload []byte, signature string, sourceIP string) (*ingest.Result, error)
}

type webhookResponse struct {
	EventID     uint   `json:"event_id"`
	Status      string `json:"status"`
	JobsCreated int    `json:"jobs_created"`
	Duplicate   bool   `json:"duplicate"`
}

// WebhookHandler receives one signal delivery on /webhook/{code}. The
// raw body is handed to the ingestion service untouched so the HMAC
// covers exactly the bytes the sender signed.
func WebhookHandler(svc signalIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if code == "" {
			http.Error(w, "missing source code", http.StatusBadRequest)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		signature := r.Header.Get("X-Signature")
		sourceIP := peerIP(r)

		result, err := svc.Ingest(r.Context(), code, payload, signature, sourceIP)
		if err != nil {
			writeIngestError(w, code, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		response := webhookResponse{
			EventID:     result.Event.ID,
			Status:      result.Event.Status,
			JobsCreated: result.JobsCreated,
			Duplicate:   result.Duplicate,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.WithError(err).Error("failed to encode webhook response")
		}
	}
}

func writeIngestError(w http.ResponseWriter, code string, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnknownSource):
		http.Error(w, "unknown source", http.StatusNotFound)
	case errors.Is(err, ingest.ErrSourceInactive):
		http.Error(w, "source is inactive", http.StatusForbidden)
	case errors.Is(err, ingest.ErrIPNotAllowed):
		http.Error(w, "source IP not allowed", http.StatusForbidden)
	case errors.Is(err, ingest.ErrBadSignature):
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	case errors.Is(err, ingest.ErrRateLimited):
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	default:
		logger.WithError(err).WithField("source_code", code).Error("webhook ingestion failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// peerIP resolves the caller's address, honoring the first entry of
// X-Forwarded-For when a proxy sits in front.
func peerIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
