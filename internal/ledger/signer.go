package ledger

import (
	"fmt"
	"strings"

	"github.com/Peersyst/xrpl-go/xrpl/wallet"

	"github.com/core-coin/salarium/internal/models"
)

// WalletSigner signs transactions locally from the wallet seed. The seed
// never leaves the process.
type WalletSigner struct{}

// Sign signs tx with the key derived from seed. tx must be complete and its
// Account must be the seed's address.
func (WalletSigner) Sign(seed string, tx map[string]interface{}) (*models.SignedTx, error) {
	w, err := wallet.FromSeed(seed, "")
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet from seed: %w", err)
	}
	if account, _ := tx["Account"].(string); account != string(w.ClassicAddress) {
		return nil, fmt.Errorf("seed belongs to %s, not to %v", w.ClassicAddress, tx["Account"])
	}
	blob, hash, err := w.Sign(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return &models.SignedTx{TxBlob: blob, Hash: strings.ToUpper(hash)}, nil
}
