package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/steamguard/internal/cryptox"
	"github.com/dmitrijs2005/steamguard/internal/models"
)

// ---- fixtures ----

type fixtureAccount struct {
	Name    string
	SteamID uint64
}

func legacyAccountJSON(t *testing.T, a fixtureAccount) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"shared_secret":   "c2hhcmVk",
		"serial_number":   "SN-1",
		"revocation_code": "R12345",
		"uri":             "otpauth://totp/Steam:" + a.Name,
		"server_time":     1628813000,
		"account_name":    a.Name,
		"token_gid":       "gid-1",
		"identity_secret": "aWRlbnRpdHk=",
		"secret_1":        "c2VjcmV0MQ==",
		"device_id":       "android:00000000-0000-0000-0000-000000000000",
		"fully_enrolled":  true,
		"Session": map[string]any{
			"SessionID":        "sid",
			"SteamLogin":       fmt.Sprintf("%d%%7C%%7CA", a.SteamID),
			"SteamLoginSecure": fmt.Sprintf("%d%%7C%%7CB", a.SteamID),
			"WebCookie":        "wc",
			"OAuthToken":       "tok",
			"SteamID":          a.SteamID,
		},
	})
	require.NoError(t, err)
	return data
}

// writeLegacyStore lays out a pre-versioning store in dir. With a passkey
// the secret files are encrypted the way the old desktop authenticator did.
func writeLegacyStore(t *testing.T, dir string, passkey []byte, accounts ...fixtureAccount) string {
	t.Helper()

	entries := make([]map[string]any, len(accounts))
	for i, a := range accounts {
		filename := fmt.Sprintf("%d%s", a.SteamID, SecretFileExt)
		payload := legacyAccountJSON(t, a)
		entry := map[string]any{
			"filename": filename,
			"steamid":  a.SteamID,
		}
		if len(passkey) > 0 {
			salt, err := cryptox.GenerateSalt()
			require.NoError(t, err)
			iv, err := cryptox.GenerateIV()
			require.NoError(t, err)
			key := cryptox.DeriveKey(passkey, salt, 0)
			encrypted, err := cryptox.Encrypt(payload, key, iv)
			require.NoError(t, err)
			payload = []byte(encrypted)
			entry["encryption_salt"] = encodeB64(salt)
			entry["encryption_iv"] = encodeB64(iv)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, filename), payload, 0o600))
		entries[i] = entry
	}

	manifest, err := json.Marshal(map[string]any{
		"encrypted":         len(passkey) > 0,
		"first_run":         false,
		"periodic_checking": false,
		"entries":           entries,
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, manifest, 0o600))
	return path
}

func writeCurrentStore(t *testing.T, dir string, accounts ...fixtureAccount) string {
	t.Helper()

	entries := make([]Entry, len(accounts))
	for i, a := range accounts {
		filename := fmt.Sprintf("%d%s", a.SteamID, SecretFileExt)
		account := models.SteamGuardAccount{
			AccountName:    a.Name,
			SteamID:        a.SteamID,
			RevocationCode: "R12345",
			SharedSecret:   "c2hhcmVk",
			IdentitySecret: "aWRlbnRpdHk=",
		}
		data, err := json.Marshal(account)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, filename), data, 0o600))
		entries[i] = Entry{Filename: filename, AccountName: a.Name, SteamID: a.SteamID}
	}

	m := Manifest{Version: CurrentManifestVersion, Entries: entries}
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, m.Save(path))
	return path
}

// ---- fake loader ----

type loaderCall struct {
	Path    string
	Passkey []byte
	Params  *EncryptionParams
}

type fakeLoader struct {
	Calls   []loaderCall
	FailFor map[string]error // filename (base) -> error
}

func (f *fakeLoader) Load(path string, passkey []byte, params *EncryptionParams) ([]byte, error) {
	f.Calls = append(f.Calls, loaderCall{Path: path, Passkey: passkey, Params: params})
	if err, ok := f.FailFor[filepath.Base(path)]; ok {
		return nil, err
	}
	return (FileLoader{}).Load(path, passkey, params)
}

// ---- tests ----

func TestLoadAndMigrate_LegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacyStore(t, dir, nil,
		fixtureAccount{Name: "example", SteamID: 1234},
		fixtureAccount{Name: "Second", SteamID: 5678},
	)

	manifest, accounts, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, nil)
	require.NoError(t, err)

	require.Equal(t, CurrentManifestVersion, manifest.Version)
	require.Len(t, manifest.Entries, 2)
	require.Len(t, accounts, 2)

	// order preserved, names backfilled lower-cased from the accounts
	require.Equal(t, "example", manifest.Entries[0].AccountName)
	require.Equal(t, uint64(1234), manifest.Entries[0].SteamID)
	require.Equal(t, "second", manifest.Entries[1].AccountName)
	require.Equal(t, uint64(5678), manifest.Entries[1].SteamID)
	require.Equal(t, "Second", accounts[1].AccountName)
	require.Equal(t, uint64(5678), accounts[1].SteamID)
}

func TestLoadAndMigrate_LegacyEncrypted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	passkey := []byte("password")
	path := writeLegacyStore(t, dir, passkey, fixtureAccount{Name: "example", SteamID: 1234})

	manifest, accounts, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, passkey)
	require.NoError(t, err)

	require.Equal(t, CurrentManifestVersion, manifest.Version)
	require.Equal(t, "example", manifest.Entries[0].AccountName)
	require.Equal(t, uint64(1234), manifest.Entries[0].SteamID)
	require.Equal(t, "example", accounts[0].AccountName)
	require.Equal(t, uint64(1234), accounts[0].SteamID)
}

func TestLoadAndMigrate_CurrentManifestIsNoOp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeCurrentStore(t, dir, fixtureAccount{Name: "example", SteamID: 1234})

	manifest, accounts, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, nil)
	require.NoError(t, err)

	require.Equal(t, CurrentManifestVersion, manifest.Version)
	require.Len(t, accounts, 1)
	require.Equal(t, "example", manifest.Entries[0].AccountName)
	require.Equal(t, "example", accounts[0].AccountName)
}

func TestLoadAndMigrate_BackfillsAccountNameLowercased(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacyStore(t, dir, nil, fixtureAccount{Name: "ExAmPlE", SteamID: 1234})

	manifest, accounts, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, nil)
	require.NoError(t, err)

	// The decrypted account is authoritative; the entry gets its name
	// lower-cased while the account keeps the original casing.
	require.Equal(t, "example", manifest.Entries[0].AccountName)
	require.Equal(t, "ExAmPlE", accounts[0].AccountName)
}

func TestLoadAndMigrate_MissingPasskey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacyStore(t, dir, []byte("password"), fixtureAccount{Name: "example", SteamID: 1234})

	_, _, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, nil)
	require.ErrorIs(t, err, ErrMissingPasskey)
}

func TestLoadAndMigrate_UnexpectedPasskey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacyStore(t, dir, nil, fixtureAccount{Name: "example", SteamID: 1234})

	_, _, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, []byte("password"))
	require.ErrorIs(t, err, ErrUnexpectedPasskey)
	require.NotErrorIs(t, err, ErrMissingPasskey)
}

func TestLoadAndMigrate_UnknownVersion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":2,"entries":[]}`), 0o600))

	_, _, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, nil)
	require.ErrorIs(t, err, ErrUnknownManifestVersion)
}

func TestLoadAndMigrate_OneBadEntryFailsWholeLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacyStore(t, dir, nil,
		fixtureAccount{Name: "good", SteamID: 1234},
		fixtureAccount{Name: "bad", SteamID: 5678},
	)

	loader := &fakeLoader{FailFor: map[string]error{
		"5678" + SecretFileExt: fmt.Errorf("garbled file"),
	}}
	_, _, err := NewMigrator(loader, nil).LoadAndMigrate(ctx, path, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "5678"+SecretFileExt)
	require.Contains(t, err.Error(), "garbled file")
}

func TestLoadAndMigrate_DecryptsOnceWithPreUpgradeParams(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	passkey := []byte("password")
	path := writeLegacyStore(t, dir, passkey,
		fixtureAccount{Name: "one", SteamID: 1},
		fixtureAccount{Name: "two", SteamID: 2},
	)

	// read back the raw legacy manifest to know the pre-upgrade params
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var legacy struct {
		Entries []struct {
			Filename       string `json:"filename"`
			EncryptionIV   string `json:"encryption_iv"`
			EncryptionSalt string `json:"encryption_salt"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(raw, &legacy))

	loader := &fakeLoader{}
	_, _, err = NewMigrator(loader, nil).LoadAndMigrate(ctx, path, passkey)
	require.NoError(t, err)

	require.Len(t, loader.Calls, 2, "each entry is decrypted exactly once")
	for i, call := range loader.Calls {
		require.Equal(t, filepath.Join(dir, legacy.Entries[i].Filename), call.Path)
		require.NotNil(t, call.Params)
		require.Equal(t, legacy.Entries[i].EncryptionSalt, call.Params.Salt)
		require.Equal(t, legacy.Entries[i].EncryptionIV, call.Params.IV)
	}
}

func TestLoadAndMigrate_CreatesBackups(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacyStore(t, dir, nil,
		fixtureAccount{Name: "one", SteamID: 1},
		fixtureAccount{Name: "two", SteamID: 2},
	)

	_, _, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, path, nil)
	require.NoError(t, err)

	require.FileExists(t, path+".bak")
	require.FileExists(t, filepath.Join(dir, "1"+SecretFileExt+".bak"))
	require.FileExists(t, filepath.Join(dir, "2"+SecretFileExt+".bak"))
}

func TestLoadAndMigrate_BackupFailureAborts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, _, err := NewMigrator(nil, nil).LoadAndMigrate(ctx, filepath.Join(dir, "manifest.json"), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "backup manifest")
}

func TestLoadAndUpgradeLegacyAccount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "example"+SecretFileExt)
	require.NoError(t, os.WriteFile(path, legacyAccountJSON(t, fixtureAccount{Name: "example", SteamID: 1234}), 0o600))

	account, err := LoadAndUpgradeLegacyAccount(path)
	require.NoError(t, err)
	require.Equal(t, "example", account.AccountName)
	require.Equal(t, uint64(1234), account.SteamID)
	require.Equal(t, "R12345", account.RevocationCode)
	require.NotNil(t, account.Session)
	require.Equal(t, "tok", account.Session.Token)
}

func TestConvertNonCanonicalIsAFault(t *testing.T) {
	require.Panics(t, func() {
		migratingManifest{legacy: &sdaManifest{}}.toManifest()
	})
	require.Panics(t, func() {
		migratingAccount{legacy: &sdaAccount{}}.toAccount()
	})
}

func TestParseManifest_Malformed(t *testing.T) {
	_, err := parseManifest([]byte("not json"))
	require.Error(t, err)
}
