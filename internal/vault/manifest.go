// Package vault implements the on-disk credential store for Steam Guard
// authenticator accounts: the versioned manifest, the encrypted secret
// files it references, and the migration engine that upgrades older
// layouts to the current one.
package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/steamguard/internal/cryptox"
	"github.com/dmitrijs2005/steamguard/internal/models"
)

const (
	// CurrentManifestVersion is the only manifest schema this code writes.
	CurrentManifestVersion = 1

	// SecretFileExt is the extension of account secret files referenced
	// by manifest entries.
	SecretFileExt = ".maFile"
)

// Manifest indexes the known authenticator accounts and where their
// secret files live.
type Manifest struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Entry points at one secret file. Encryption is nil for plaintext files.
type Entry struct {
	Filename    string            `json:"filename"`
	AccountName string            `json:"account_name"`
	SteamID     uint64            `json:"steam_id"`
	Encryption  *EncryptionParams `json:"encryption,omitempty"`
}

// EncryptionParams carries the key-derivation inputs for one secret file.
// The migration engine passes them through verbatim; only the entry loader
// interprets them. Salt and IV are base64. Iterations of zero means the
// format default.
type EncryptionParams struct {
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Iterations int    `json:"iterations,omitempty"`
}

// NewEncryptionParams generates fresh key-derivation inputs for encrypting
// a secret file.
func NewEncryptionParams() (*EncryptionParams, error) {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return nil, err
	}
	iv, err := cryptox.GenerateIV()
	if err != nil {
		return nil, err
	}
	return &EncryptionParams{
		Salt:       encodeB64(salt),
		IV:         encodeB64(iv),
		Iterations: cryptox.DefaultIterations,
	}, nil
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// SaveAccount writes an account as a plaintext secret file under dir,
// named after the given entry.
func SaveAccount(dir string, entry Entry, account *models.SteamGuardAccount) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", account.AccountName, err)
	}
	path := filepath.Join(dir, entry.Filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write account file: %w", err)
	}
	return nil
}

// SaveAccountEncrypted writes an account encrypted with the passkey and the
// entry's encryption params. The entry must carry non-nil params.
func SaveAccountEncrypted(dir string, entry Entry, account *models.SteamGuardAccount, passkey []byte) error {
	if entry.Encryption == nil {
		return fmt.Errorf("entry %s has no encryption params", entry.Filename)
	}
	salt, iv, err := entry.Encryption.decode()
	if err != nil {
		return fmt.Errorf("entry %s: %w", entry.Filename, err)
	}
	plaintext, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", account.AccountName, err)
	}
	key := cryptox.DeriveKey(passkey, salt, entry.Encryption.Iterations)
	payload, err := cryptox.Encrypt(plaintext, key, iv)
	if err != nil {
		return fmt.Errorf("encrypt account %s: %w", account.AccountName, err)
	}
	path := filepath.Join(dir, entry.Filename)
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		return fmt.Errorf("write account file: %w", err)
	}
	return nil
}
