package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/steamguard/internal/filex"
	"github.com/dmitrijs2005/steamguard/internal/logging"
	"github.com/dmitrijs2005/steamguard/internal/models"
)

// Migrator upgrades an on-disk store of unknown (bounded) schema version
// to the current one. It never writes; the caller persists the result.
type Migrator struct {
	loader EntryLoader
	log    logging.Logger
}

// NewMigrator constructs a Migrator. A nil loader gets the production
// FileLoader; a nil logger is replaced with a no-op one.
func NewMigrator(loader EntryLoader, log logging.Logger) *Migrator {
	if loader == nil {
		loader = FileLoader{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Migrator{loader: loader, log: log}
}

// LoadAndMigrate reads the manifest at manifestPath, decrypts every
// referenced secret file, and upgrades manifest and accounts in lockstep to
// the current version. Before touching anything it backs up the manifest
// and every sibling secret file; a failed backup aborts the whole operation
// with no files altered.
//
// On success every entry's account name has been overwritten (lower-cased)
// from the corresponding decrypted account: the account, not the manifest,
// is authoritative for identity.
func (m *Migrator) LoadAndMigrate(ctx context.Context, manifestPath string, passkey []byte) (*Manifest, []models.SteamGuardAccount, error) {
	if err := m.backupAll(ctx, manifestPath); err != nil {
		return nil, nil, err
	}
	return m.migrate(ctx, manifestPath, passkey)
}

// backupAll copies the manifest and every sibling secret file to
// "<name>.bak" in the same directory.
func (m *Migrator) backupAll(ctx context.Context, manifestPath string) error {
	if err := filex.Backup(manifestPath); err != nil {
		return fmt.Errorf("backup manifest: %w", err)
	}
	dir := filepath.Dir(manifestPath)
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read store directory: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), SecretFileExt) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		if err := filex.Backup(path); err != nil {
			return fmt.Errorf("backup %s: %w", f.Name(), err)
		}
		m.log.Debug(ctx, "backed up secret file", "file", f.Name())
	}
	return nil
}

func (m *Migrator) migrate(ctx context.Context, manifestPath string, passkey []byte) (*Manifest, []models.SteamGuardAccount, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}
	migrating, err := parseManifest(raw)
	if err != nil {
		return nil, nil, err
	}

	if migrating.isEncrypted() && len(passkey) == 0 {
		return nil, nil, ErrMissingPasskey
	}
	if !migrating.isEncrypted() && len(passkey) > 0 {
		return nil, nil, ErrUnexpectedPasskey
	}

	// Decryption happens exactly once, against the pre-upgrade params.
	dir := filepath.Dir(manifestPath)
	accounts, err := migrating.loadAllAccounts(m.loader, dir, passkey)
	if err != nil {
		return nil, nil, err
	}

	for !migrating.isLatest() {
		migrating = migrating.upgrade()
		for i := range accounts {
			accounts[i] = accounts[i].upgrade()
		}
		m.log.Debug(ctx, "upgraded manifest one step", "entries", len(accounts))
	}

	manifest := migrating.toManifest()
	result := make([]models.SteamGuardAccount, len(accounts))
	for i := range accounts {
		result[i] = accounts[i].toAccount()
		manifest.Entries[i].AccountName = strings.ToLower(result[i].AccountName)
	}
	return &manifest, result, nil
}

// LoadAndUpgradeLegacyAccount imports a lone legacy secret file, without
// manifest context, and upgrades it to the current shape. The file must be
// unencrypted.
func LoadAndUpgradeLegacyAccount(path string) (*models.SteamGuardAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	var legacy sdaAccount
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("parse secret file: %w", err)
	}
	account := migratingAccount{legacy: &legacy}
	for !account.isLatest() {
		account = account.upgrade()
	}
	result := account.toAccount()
	return &result, nil
}

// migratingManifest is the version-tagged union the upgrade loop walks.
// Exactly one field is set. The current shape is the fixed point.
type migratingManifest struct {
	legacy  *sdaManifest
	current *Manifest
}

func parseManifest(raw []byte) (migratingManifest, error) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return migratingManifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	switch {
	case probe.Version == nil:
		var legacy sdaManifest
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return migratingManifest{}, fmt.Errorf("parse legacy manifest: %w", err)
		}
		return migratingManifest{legacy: &legacy}, nil
	case *probe.Version == CurrentManifestVersion:
		var current Manifest
		if err := json.Unmarshal(raw, &current); err != nil {
			return migratingManifest{}, fmt.Errorf("parse manifest: %w", err)
		}
		return migratingManifest{current: &current}, nil
	default:
		return migratingManifest{}, fmt.Errorf("%w: %d", ErrUnknownManifestVersion, *probe.Version)
	}
}

func (m migratingManifest) isLatest() bool { return m.current != nil }

func (m migratingManifest) isEncrypted() bool {
	if m.legacy != nil {
		for _, e := range m.legacy.Entries {
			if e.encryptionParams() != nil {
				return true
			}
		}
		return false
	}
	for _, e := range m.current.Entries {
		if e.Encryption != nil {
			return true
		}
	}
	return false
}

func (m migratingManifest) upgrade() migratingManifest {
	if m.legacy != nil {
		current := m.legacy.toCurrent()
		return migratingManifest{current: &current}
	}
	return m
}

// toManifest converts to the canonical shape. Calling it on a non-canonical
// value means the upgrade chain is broken, which is a bug, not bad input.
func (m migratingManifest) toManifest() Manifest {
	if m.current == nil {
		panic("vault: manifest is not at the latest version")
	}
	return *m.current
}

// loadAllAccounts decrypts every entry's secret file. All entries are
// attempted; if any fail, the whole call fails with an error naming every
// bad entry. Results stay in manifest order.
func (m migratingManifest) loadAllAccounts(loader EntryLoader, dir string, passkey []byte) ([]migratingAccount, error) {
	var accounts []migratingAccount
	var errs []error

	if m.legacy != nil {
		for _, e := range m.legacy.Entries {
			raw, err := loader.Load(filepath.Join(dir, e.Filename), passkey, e.encryptionParams())
			if err != nil {
				errs = append(errs, fmt.Errorf("entry %s: %w", e.Filename, err))
				continue
			}
			var account sdaAccount
			if err := json.Unmarshal(raw, &account); err != nil {
				errs = append(errs, fmt.Errorf("entry %s: %w", e.Filename, err))
				continue
			}
			accounts = append(accounts, migratingAccount{legacy: &account})
		}
	} else {
		for _, e := range m.current.Entries {
			raw, err := loader.Load(filepath.Join(dir, e.Filename), passkey, e.Encryption)
			if err != nil {
				errs = append(errs, fmt.Errorf("entry %s: %w", e.Filename, err))
				continue
			}
			account := new(models.SteamGuardAccount)
			if err := json.Unmarshal(raw, account); err != nil {
				errs = append(errs, fmt.Errorf("entry %s: %w", e.Filename, err))
				continue
			}
			accounts = append(accounts, migratingAccount{current: account})
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load some accounts: %w", errors.Join(errs...))
	}
	return accounts, nil
}

// migratingAccount mirrors migratingManifest for the per-entry secrets.
// entries[i] and accounts[i] stay positionally aligned at every version.
type migratingAccount struct {
	legacy  *sdaAccount
	current *models.SteamGuardAccount
}

func (a migratingAccount) isLatest() bool { return a.current != nil }

func (a migratingAccount) upgrade() migratingAccount {
	if a.legacy != nil {
		current := a.legacy.toCurrent()
		return migratingAccount{current: &current}
	}
	return a
}

func (a migratingAccount) toAccount() models.SteamGuardAccount {
	if a.current == nil {
		panic("vault: account is not at the latest version")
	}
	return *a.current
}
