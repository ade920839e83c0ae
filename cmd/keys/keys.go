package keys

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"tradevault/src/database"
	"tradevault/src/repository"
	"tradevault/src/security"
)

// Keys encrypts exchange credentials and stores them on an account.
// Plaintext only ever exists in this process's environment.
type Keys struct{}

func (k *Keys) Start() error {
	config := GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if config.AccountID == 0 {
		return errors.New("ACCOUNT_ID not set")
	}
	if config.APIKey == "" || config.APISecret == "" {
		return errors.New("API_KEY and API_SECRET must both be set")
	}

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	accountRepo := repository.NewExchangeAccountRepository()

	account, err := accountRepo.FindByID(ctx, config.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return errors.New("exchange account not found")
	}

	encryptedKey, err := security.EncryptString(config.APIKey)
	if err != nil {
		logger.WithError(err).Error("Failed to encrypt API key")
		return err
	}
	encryptedSecret, err := security.EncryptString(config.APISecret)
	if err != nil {
		logger.WithError(err).Error("Failed to encrypt API secret")
		return err
	}

	account.APIKeyEncrypted = encryptedKey
	account.APISecretEncrypted = encryptedSecret

	if err := accountRepo.Save(ctx, account); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"exchange":   account.ExchangeType,
	}).Info("Exchange credentials stored")

	return nil
}
