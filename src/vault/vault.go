package vault

import (
	"context"
	"errors"
	"sync"

	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradevault/src/model"
	"tradevault/src/repository"
)

var (
	// ErrInsufficientBalance is a hard failure: the reserve or withdraw
	// is never partially applied.
	ErrInsufficientBalance = errors.New("vault: insufficient balance")

	// ErrReservationUnderflow means a confirm or cancel asked for more
	// than is currently reserved.
	ErrReservationUnderflow = errors.New("vault: amount exceeds reserved funds")

	ErrInvalidAmount = errors.New("vault: amount must be positive")
)

// Quantity arithmetic is truncated to 8 decimal places (the usual
// crypto precision) to keep residual precision error out of the ledger.
const normScale = 8

func normalize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(normScale)
}

// Service is the reservation-based balance ledger. Every mutation and
// its append-only VaultTransaction entry commit in one database
// transaction; the mutex serializes mutations inside the single
// execution-worker process that owns all vault writes.
type Service struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Reserve moves amount from balance to reserved for a pending buy.
func (s *Service) Reserve(ctx context.Context, vaultID uint, asset string, amount decimal.Decimal, jobID *uint) error {
	return s.mutate(ctx, vaultID, asset, amount, jobID, model.VaultTxBuyReserve, "")
}

// Confirm clears a hold after the buy executed. Funds already left
// balance at reserve time, so only reserved shrinks.
func (s *Service) Confirm(ctx context.Context, vaultID uint, asset string, amount decimal.Decimal, jobID *uint) error {
	return s.mutate(ctx, vaultID, asset, amount, jobID, model.VaultTxBuyConfirm, "")
}

// Cancel restores reserved funds when a reserved buy did not execute.
func (s *Service) Cancel(ctx context.Context, vaultID uint, asset string, amount decimal.Decimal, jobID *uint) error {
	return s.mutate(ctx, vaultID, asset, amount, jobID, model.VaultTxBuyCancel, "")
}

// CreditSellReturn adds sell proceeds directly to balance.
func (s *Service) CreditSellReturn(ctx context.Context, vaultID uint, asset string, amount decimal.Decimal, jobID *uint) error {
	return s.mutate(ctx, vaultID, asset, amount, jobID, model.VaultTxSellReturn, "")
}

// Deposit adds external funds directly to balance.
func (s *Service) Deposit(ctx context.Context, vaultID uint, asset string, amount decimal.Decimal, comment string) error {
	return s.mutate(ctx, vaultID, asset, amount, nil, model.VaultTxDeposit, comment)
}

// Withdraw removes available funds.
func (s *Service) Withdraw(ctx context.Context, vaultID uint, asset string, amount decimal.Decimal, comment string) error {
	return s.mutate(ctx, vaultID, asset, amount, nil, model.VaultTxWithdrawal, comment)
}

func (s *Service) mutate(
	ctx context.Context,
	vaultID uint,
	asset string,
	amount decimal.Decimal,
	jobID *uint,
	txType string,
	comment string,
) error {

	amount = normalize(amount)
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewVaultRepository().WithDB(tx)

		balance, err := repo.FindOrCreateBalance(ctx, vaultID, asset)
		if err != nil {
			return err
		}

		switch txType {
		case model.VaultTxBuyReserve:
			if balance.Balance.LessThan(amount) {
				return ErrInsufficientBalance
			}
			balance.Balance = normalize(balance.Balance.Sub(amount))
			balance.Reserved = normalize(balance.Reserved.Add(amount))

		case model.VaultTxBuyConfirm:
			if balance.Reserved.LessThan(amount) {
				return ErrReservationUnderflow
			}
			balance.Reserved = normalize(balance.Reserved.Sub(amount))

		case model.VaultTxBuyCancel:
			if balance.Reserved.LessThan(amount) {
				return ErrReservationUnderflow
			}
			balance.Reserved = normalize(balance.Reserved.Sub(amount))
			balance.Balance = normalize(balance.Balance.Add(amount))

		case model.VaultTxSellReturn, model.VaultTxDeposit:
			balance.Balance = normalize(balance.Balance.Add(amount))

		case model.VaultTxWithdrawal:
			if balance.Balance.LessThan(amount) {
				return ErrInsufficientBalance
			}
			balance.Balance = normalize(balance.Balance.Sub(amount))

		default:
			return errors.New("vault: unknown transaction type " + txType)
		}

		if err := repo.SaveBalance(ctx, balance); err != nil {
			return err
		}

		entry := &model.VaultTransaction{
			VaultID:  vaultID,
			Asset:    asset,
			Type:     txType,
			Amount:   amount,
			Balance:  balance.Balance,
			Reserved: balance.Reserved,
			JobID:    jobID,
			Comment:  comment,
		}
		return repo.AppendTransaction(ctx, entry)
	})

	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrReservationUnderflow) {
			logger.WithFields(map[string]interface{}{
				"vault_id": vaultID,
				"asset":    asset,
				"type":     txType,
				"amount":   amount.String(),
			}).Warn("vault mutation rejected")
		} else {
			logger.WithFields(map[string]interface{}{
				"vault_id": vaultID,
				"asset":    asset,
				"type":     txType,
			}).WithError(err).Error("vault mutation failed")
		}
		return err
	}

	logger.WithFields(map[string]interface{}{
		"vault_id": vaultID,
		"asset":    asset,
		"type":     txType,
		"amount":   amount.String(),
	}).Info("vault mutation applied")

	return nil
}

// Balance returns the current (balance, reserved) pair for an asset,
// lazily creating the zero row on first reference.
func (s *Service) Balance(ctx context.Context, vaultID uint, asset string) (*model.VaultBalance, error) {
	return repository.NewVaultRepository().WithDB(s.db).FindOrCreateBalance(ctx, vaultID, asset)
}
