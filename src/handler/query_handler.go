package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"tradevault/src/model"
	"tradevault/src/repository"
)

type jobLister interface {
	FindLatest(ctx context.Context, limit int) ([]model.TradeJob, error)
	FindByStatus(ctx context.Context, status string, limit int) ([]model.TradeJob, error)
}

// ListJobsHandler lists trade jobs, newest first, optionally filtered
// by status.
func ListJobsHandler(repo jobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 50)

		var (
			jobs []model.TradeJob
			err  error
		)
		if status := r.URL.Query().Get("status"); status != "" {
			jobs, err = repo.FindByStatus(r.Context(), status, limit)
		} else {
			jobs, err = repo.FindLatest(r.Context(), limit)
		}

		if err != nil {
			logger.WithError(err).Error("failed to list trade jobs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, jobs)
	}
}

type positionLister interface {
	FindOpenByAccount(ctx context.Context, accountID uint, tradeMode string) ([]model.TradePosition, error)
}

// ListPositionsHandler lists the open positions of one account.
func ListPositionsHandler(repo positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := queryUint(w, r, "accountId")
		if !ok {
			return
		}

		tradeMode := r.URL.Query().Get("tradeMode")
		if tradeMode == "" {
			tradeMode = model.TradeModeSimulation
		}

		positions, err := repo.FindOpenByAccount(r.Context(), accountID, tradeMode)
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, positions)
	}
}

type vaultReader interface {
	ListBalances(ctx context.Context, vaultID uint) ([]model.VaultBalance, error)
	ListTransactions(ctx context.Context, vaultID uint, limit int) ([]model.VaultTransaction, error)
}

// VaultBalancesHandler lists the per-asset balances of one vault.
func VaultBalancesHandler(repo vaultReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vaultID, ok := queryUint(w, r, "vaultId")
		if !ok {
			return
		}

		balances, err := repo.ListBalances(r.Context(), vaultID)
		if err != nil {
			logger.WithError(err).Error("failed to list vault balances")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, balances)
	}
}

// VaultTransactionsHandler lists the newest ledger entries of one vault.
func VaultTransactionsHandler(repo vaultReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vaultID, ok := queryUint(w, r, "vaultId")
		if !ok {
			return
		}

		transactions, err := repo.ListTransactions(r.Context(), vaultID, queryInt(r, "limit", 100))
		if err != nil {
			logger.WithError(err).Error("failed to list vault transactions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, transactions)
	}
}

type eventLister interface {
	FindLatest(ctx context.Context, limit int) ([]model.WebhookEvent, error)
}

// ListEventsHandler lists recent webhook events, newest first.
func ListEventsHandler(repo eventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := repo.FindLatest(r.Context(), queryInt(r, "limit", 50))
		if err != nil {
			logger.WithError(err).Error("failed to list webhook events")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, events)
	}
}

// Default wiring against the production repositories.

func DefaultWebhookHandler() http.HandlerFunc {
	return WebhookHandler(defaultIngestService())
}

func DefaultListJobsHandler() http.HandlerFunc {
	return ListJobsHandler(repository.NewTradeJobRepository())
}

func DefaultListPositionsHandler() http.HandlerFunc {
	return ListPositionsHandler(repository.NewPositionRepository())
}

func DefaultVaultBalancesHandler() http.HandlerFunc {
	return VaultBalancesHandler(repository.NewVaultRepository())
}

func DefaultVaultTransactionsHandler() http.HandlerFunc {
	return VaultTransactionsHandler(repository.NewVaultRepository())
}

func DefaultListEventsHandler() http.HandlerFunc {
	return ListEventsHandler(repository.NewWebhookEventRepository())
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func queryUint(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, "missing "+name, http.StatusBadRequest)
		return 0, false
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return uint(parsed), true
}
