package vault

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradevault/src/database"
	"tradevault/src/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection so every session sees the same in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedVault(t *testing.T, svc *Service, funds string) uint {
	t.Helper()
	ctx := context.Background()

	vaultRow := model.Vault{AccountID: 1, Name: "main"}
	require.NoError(t, svc.db.Create(&vaultRow).Error)
	require.NoError(t, svc.Deposit(ctx, vaultRow.ID, "USDT", dec(funds), "seed"))
	return vaultRow.ID
}

func TestReserveMovesBalanceToReserved(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "100")

	require.NoError(t, svc.Reserve(ctx, vaultID, "USDT", dec("40"), nil))

	bal, err := svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("60")), "balance = %s", bal.Balance)
	assert.True(t, bal.Reserved.Equal(dec("40")), "reserved = %s", bal.Reserved)
}

func TestReserveRejectsOverdraw(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "50")

	err := svc.Reserve(ctx, vaultID, "USDT", dec("50.00000001"), nil)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// rejection must leave the row untouched
	bal, err := svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("50")))
	assert.True(t, bal.Reserved.IsZero())
}

// reserve → cancel keeps balance+reserved invariant and restores funds.
func TestReserveCancelConservation(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "100")

	require.NoError(t, svc.Reserve(ctx, vaultID, "USDT", dec("30"), nil))

	bal, err := svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Add(bal.Reserved).Equal(dec("100")))

	require.NoError(t, svc.Cancel(ctx, vaultID, "USDT", dec("30"), nil))

	bal, err = svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("100")))
	assert.True(t, bal.Reserved.IsZero())
}

// confirm only clears the hold: balance after confirm equals balance
// right after reserve.
func TestReserveConfirmLeavesBalanceUntouched(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "100")

	require.NoError(t, svc.Reserve(ctx, vaultID, "USDT", dec("25"), nil))

	afterReserve, err := svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)

	require.NoError(t, svc.Confirm(ctx, vaultID, "USDT", dec("25"), nil))

	afterConfirm, err := svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)
	assert.True(t, afterConfirm.Balance.Equal(afterReserve.Balance))
	assert.True(t, afterConfirm.Reserved.IsZero())
}

func TestConfirmRejectsMoreThanReserved(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "100")

	require.NoError(t, svc.Reserve(ctx, vaultID, "USDT", dec("10"), nil))
	require.ErrorIs(t, svc.Confirm(ctx, vaultID, "USDT", dec("11"), nil), ErrReservationUnderflow)
}

func TestWithdrawAndCredit(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "10")

	require.NoError(t, svc.CreditSellReturn(ctx, vaultID, "USDT", dec("5.5"), nil))
	require.NoError(t, svc.Withdraw(ctx, vaultID, "USDT", dec("15"), "payout"))

	bal, err := svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("0.5")), "balance = %s", bal.Balance)

	require.ErrorIs(t, svc.Withdraw(ctx, vaultID, "USDT", dec("1"), "too much"), ErrInsufficientBalance)
}

func TestEveryMutationAppendsLedgerEntry(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "100")

	require.NoError(t, svc.Reserve(ctx, vaultID, "USDT", dec("20"), nil))
	require.NoError(t, svc.Confirm(ctx, vaultID, "USDT", dec("20"), nil))
	require.NoError(t, svc.CreditSellReturn(ctx, vaultID, "USDT", dec("7"), nil))

	var txs []model.VaultTransaction
	require.NoError(t, svc.db.Where("vault_id = ?", vaultID).Order("id ASC").Find(&txs).Error)

	require.Len(t, txs, 4) // deposit seed + three mutations
	assert.Equal(t, model.VaultTxDeposit, txs[0].Type)
	assert.Equal(t, model.VaultTxBuyReserve, txs[1].Type)
	assert.Equal(t, model.VaultTxBuyConfirm, txs[2].Type)
	assert.Equal(t, model.VaultTxSellReturn, txs[3].Type)

	// snapshots track row state after each mutation
	assert.True(t, txs[1].Balance.Equal(dec("80")))
	assert.True(t, txs[1].Reserved.Equal(dec("20")))
	assert.True(t, txs[3].Balance.Equal(dec("87")))
}

// Two concurrent reserves of 60 against a balance of 100: exactly one
// succeeds, and balance+reserved never exceeds the original 100.
func TestConcurrentReserveNoDoubleSpend(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	vaultID := seedVault(t, svc, "100")

	var wg sync.WaitGroup
	results := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Reserve(ctx, vaultID, "USDT", dec("60"), nil)
		}(i)
	}
	wg.Wait()

	var failures, successes int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientBalance):
			failures++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)

	bal, err := svc.Balance(ctx, vaultID, "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Add(bal.Reserved).LessThanOrEqual(dec("100")))
	assert.True(t, bal.Balance.Equal(dec("40")))
	assert.True(t, bal.Reserved.Equal(dec("60")))
}
