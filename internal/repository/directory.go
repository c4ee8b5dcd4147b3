package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

func (db *PostgresDB) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	var worker models.Worker
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&worker).Error; err != nil {
		return nil, notFound(err, "worker")
	}
	return &worker, nil
}

func (db *PostgresDB) GetDefaultOrganizationWallet(ctx context.Context, organizationID string, currency models.CurrencyType) (*models.OrganizationWallet, error) {
	var wallet models.OrganizationWallet
	err := db.Conn.WithContext(ctx).
		Where("organization_id = ? AND currency_type = ? AND is_default = ? AND is_active = ?", organizationID, currency, true, true).
		First(&wallet).Error
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return &wallet, nil
}

func (db *PostgresDB) GetDefaultCryptoAddress(ctx context.Context, workerID string) (*models.CryptoAddress, error) {
	var addr models.CryptoAddress
	err := db.Conn.WithContext(ctx).
		Where("worker_id = ? AND is_default = ? AND is_active = ?", workerID, true, true).
		First(&addr).Error
	if err != nil {
		return nil, notFound(err, "crypto_address")
	}
	return &addr, nil
}

func (db *PostgresDB) GetTokenIssuerConfig(ctx context.Context, currency models.CurrencyType) (*models.TokenIssuerConfig, error) {
	var cfg models.TokenIssuerConfig
	if err := db.Conn.WithContext(ctx).Where("currency_type = ? AND active = ?", currency, true).First(&cfg).Error; err != nil {
		return nil, notFound(err, "token_issuer")
	}
	return &cfg, nil
}

// AddCryptoAddress stores a payout address. The worker's first address
// becomes the default.
func (db *PostgresDB) AddCryptoAddress(ctx context.Context, addr *models.CryptoAddress) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CryptoAddress{}).Where("worker_id = ?", addr.WorkerID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count crypto addresses: %w", err)
		}
		if count == 0 {
			addr.IsDefault = true
		}
		if addr.IsDefault && count > 0 {
			if err := tx.Model(&models.CryptoAddress{}).Where("worker_id = ?", addr.WorkerID).Update("is_default", false).Error; err != nil {
				return fmt.Errorf("failed to clear default crypto address: %w", err)
			}
		}
		if err := tx.Create(addr).Error; err != nil {
			return fmt.Errorf("failed to create crypto address: %w", err)
		}
		return nil
	})
}

func (db *PostgresDB) ListCryptoAddresses(ctx context.Context, workerID string) ([]*models.CryptoAddress, error) {
	var addrs []*models.CryptoAddress
	if err := db.Conn.WithContext(ctx).Where("worker_id = ?", workerID).Order("created_at").Find(&addrs).Error; err != nil {
		return nil, fmt.Errorf("failed to list crypto addresses: %w", err)
	}
	return addrs, nil
}

func (db *PostgresDB) SetDefaultCryptoAddress(ctx context.Context, workerID, id string) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var addr models.CryptoAddress
		if err := tx.Where("id = ? AND worker_id = ?", id, workerID).First(&addr).Error; err != nil {
			return notFound(err, "crypto_address")
		}
		if !addr.IsActive {
			return apperr.Conflict("address_inactive", "an inactive address cannot be the default")
		}
		if err := tx.Model(&models.CryptoAddress{}).Where("worker_id = ? AND id <> ?", workerID, id).Update("is_default", false).Error; err != nil {
			return fmt.Errorf("failed to clear default crypto address: %w", err)
		}
		if err := tx.Model(&addr).Update("is_default", true).Error; err != nil {
			return fmt.Errorf("failed to set default crypto address: %w", err)
		}
		return nil
	})
}

// DeleteCryptoAddress removes an address. Deleting the default promotes the
// oldest remaining active address; the sole address cannot be deleted.
func (db *PostgresDB) DeleteCryptoAddress(ctx context.Context, workerID, id string) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var addr models.CryptoAddress
		if err := tx.Where("id = ? AND worker_id = ?", id, workerID).First(&addr).Error; err != nil {
			return notFound(err, "crypto_address")
		}
		if addr.IsDefault {
			var next models.CryptoAddress
			err := tx.Where("worker_id = ? AND id <> ? AND is_active = ?", workerID, id, true).Order("created_at").First(&next).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Conflict("sole_default_address", "the only default address cannot be deleted")
			}
			if err != nil {
				return fmt.Errorf("failed to find replacement address: %w", err)
			}
			if err := tx.Model(&next).Update("is_default", true).Error; err != nil {
				return fmt.Errorf("failed to promote crypto address: %w", err)
			}
		}
		if err := tx.Delete(&addr).Error; err != nil {
			return fmt.Errorf("failed to delete crypto address: %w", err)
		}
		return nil
	})
}

// AddOrganizationWallet stores a funding wallet. The first wallet of an
// organization and currency becomes the default.
func (db *PostgresDB) AddOrganizationWallet(ctx context.Context, wallet *models.OrganizationWallet) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := tx.Model(&models.OrganizationWallet{}).
			Where("organization_id = ? AND currency_type = ?", wallet.OrganizationID, wallet.CurrencyType)
		var count int64
		if err := scope.Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count wallets: %w", err)
		}
		if count == 0 {
			wallet.IsDefault = true
		}
		if wallet.IsDefault && count > 0 {
			err := tx.Model(&models.OrganizationWallet{}).
				Where("organization_id = ? AND currency_type = ?", wallet.OrganizationID, wallet.CurrencyType).
				Update("is_default", false).Error
			if err != nil {
				return fmt.Errorf("failed to clear default wallet: %w", err)
			}
		}
		if err := tx.Create(wallet).Error; err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
		return nil
	})
}
