package salarium

import (
	"context"

	"github.com/google/uuid"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
	"github.com/core-coin/salarium/pkg/validation"
)

// AddCryptoAddress registers a payout address of the calling worker. The
// first address becomes the default.
func (s *Salarium) AddCryptoAddress(ctx context.Context, caller models.Caller, in models.AddressInput) (*models.CryptoAddress, error) {
	if err := requireWorker(caller); err != nil {
		return nil, err
	}
	if err := validation.ValidateAddress(in.Address); err != nil {
		return nil, apperr.Validation("address", err.Error())
	}
	if _, err := s.loadWorker(ctx, caller); err != nil {
		return nil, err
	}

	addr := &models.CryptoAddress{
		ID:             uuid.NewString(),
		WorkerID:       caller.WorkerID,
		Address:        in.Address,
		DestinationTag: in.DestinationTag,
		IsDefault:      in.MakeDefault,
		IsActive:       true,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AddCryptoAddress(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (s *Salarium) ListCryptoAddresses(ctx context.Context, caller models.Caller) ([]*models.CryptoAddress, error) {
	if err := requireWorker(caller); err != nil {
		return nil, err
	}
	return s.repo.ListCryptoAddresses(ctx, caller.WorkerID)
}

func (s *Salarium) SetDefaultCryptoAddress(ctx context.Context, caller models.Caller, id string) error {
	if err := requireWorker(caller); err != nil {
		return err
	}
	return s.repo.SetDefaultCryptoAddress(ctx, caller.WorkerID, id)
}

func (s *Salarium) DeleteCryptoAddress(ctx context.Context, caller models.Caller, id string) error {
	if err := requireWorker(caller); err != nil {
		return err
	}
	return s.repo.DeleteCryptoAddress(ctx, caller.WorkerID, id)
}

// AddOrganizationWallet registers a funding wallet. Custodial wallets carry a
// secret which is stored encrypted; manual-signing wallets carry none.
func (s *Salarium) AddOrganizationWallet(ctx context.Context, caller models.Caller, in models.WalletInput) (*models.OrganizationWallet, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validation.ValidateAddress(in.Address); err != nil {
		return nil, apperr.Validation("address", err.Error())
	}
	if !in.CurrencyType.Valid() {
		return nil, apperr.Validation("currency_type", "currency must be XRP or RLUSD")
	}
	switch {
	case in.ManualSigning && in.Secret != "":
		return nil, apperr.Validation("secret", "manual-signing wallets must not carry a secret")
	case !in.ManualSigning && in.Secret == "":
		return nil, apperr.Validation("secret", "custodial wallets require a secret")
	}

	wallet := &models.OrganizationWallet{
		ID:             uuid.NewString(),
		OrganizationID: caller.OrganizationID,
		Address:        in.Address,
		CurrencyType:   in.CurrencyType,
		IsDefault:      in.MakeDefault,
		IsActive:       true,
		ManualSigning:  in.ManualSigning,
		CreatedAt:      s.now(),
	}
	if in.Secret != "" {
		envelope, err := s.cipher.Encrypt(in.Secret)
		if err != nil {
			return nil, apperr.Internal("failed to encrypt wallet secret", err)
		}
		wallet.EncryptedSecret = envelope
	}
	if err := s.repo.AddOrganizationWallet(ctx, wallet); err != nil {
		return nil, err
	}
	s.logger.Info("Organization wallet added", "organization_id", wallet.OrganizationID, "address", wallet.Address,
		"currency", wallet.CurrencyType, "manual_signing", wallet.ManualSigning)
	return wallet, nil
}
