package crypto

import (
	"github.com/jcarville/intelsync/internal/kv"
)

// Vault persists the remote submission credential encrypted at rest. The
// engine only ever sees the plaintext value handed to runSync.
type Vault struct {
	store kv.Store
	key   []byte
}

// NewVault creates a vault bound to a machine identifier.
func NewVault(store kv.Store, machineID string) *Vault {
	return &Vault{store: store, key: DeriveKey(machineID)}
}

// StoreCredential encrypts and persists the credential.
func (v *Vault) StoreCredential(credential string) error {
	sealed, err := Encrypt([]byte(credential), v.key)
	if err != nil {
		return err
	}
	return v.store.Set(kv.KeyCredential, []byte(sealed))
}

// LoadCredential returns the persisted credential, or false when none is
// stored. A credential sealed under a different machine key fails with
// ErrInvalidCiphertext.
func (v *Vault) LoadCredential() (string, bool, error) {
	raw, ok, err := v.store.Get(kv.KeyCredential)
	if err != nil || !ok {
		return "", false, err
	}
	plaintext, err := Decrypt(string(raw), v.key)
	if err != nil {
		return "", false, err
	}
	return string(plaintext), true, nil
}

// ClearCredential removes the persisted credential.
func (v *Vault) ClearCredential() error {
	return v.store.Remove(kv.KeyCredential)
}
