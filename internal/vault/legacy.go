package vault

import (
	"encoding/json"

	"github.com/dmitrijs2005/steamguard/internal/models"
)

// Legacy (pre-versioning) manifest and account shapes, as written by the
// original desktop authenticator. Semantically equivalent to the current
// shapes, with renamed fields: steamid instead of steam_id, encryption
// salt/iv inline on the entry instead of a nested object, PascalCase
// session keys on the account.

type sdaManifest struct {
	Encrypted bool       `json:"encrypted"`
	Entries   []sdaEntry `json:"entries"`
}

type sdaEntry struct {
	Filename       string `json:"filename"`
	SteamID        uint64 `json:"steamid"`
	AccountName    string `json:"account_name"`
	EncryptionIV   string `json:"encryption_iv"`
	EncryptionSalt string `json:"encryption_salt"`
}

func (e sdaEntry) encryptionParams() *EncryptionParams {
	if e.EncryptionIV == "" && e.EncryptionSalt == "" {
		return nil
	}
	return &EncryptionParams{Salt: e.EncryptionSalt, IV: e.EncryptionIV}
}

func (m sdaManifest) toCurrent() Manifest {
	entries := make([]Entry, len(m.Entries))
	for i, e := range m.Entries {
		entries[i] = Entry{
			Filename:    e.Filename,
			AccountName: e.AccountName,
			SteamID:     e.SteamID,
			Encryption:  e.encryptionParams(),
		}
	}
	return Manifest{Version: CurrentManifestVersion, Entries: entries}
}

type sdaAccount struct {
	SharedSecret   string      `json:"shared_secret"`
	SerialNumber   string      `json:"serial_number"`
	RevocationCode string      `json:"revocation_code"`
	URI            string      `json:"uri"`
	ServerTime     json.Number `json:"server_time"`
	AccountName    string      `json:"account_name"`
	TokenGID       string      `json:"token_gid"`
	IdentitySecret string      `json:"identity_secret"`
	Secret1        string      `json:"secret_1"`
	DeviceID       string      `json:"device_id"`
	FullyEnrolled  bool        `json:"fully_enrolled"`
	Session        *sdaSession `json:"Session"`
}

type sdaSession struct {
	SessionID        string `json:"SessionID"`
	SteamLogin       string `json:"SteamLogin"`
	SteamLoginSecure string `json:"SteamLoginSecure"`
	WebCookie        string `json:"WebCookie"`
	OAuthToken       string `json:"OAuthToken"`
	SteamID          uint64 `json:"SteamID"`
}

func (a sdaAccount) toCurrent() models.SteamGuardAccount {
	// Legacy files carried the steam id only inside the session blob.
	serverTime, _ := a.ServerTime.Int64()
	account := models.SteamGuardAccount{
		AccountName:    a.AccountName,
		SerialNumber:   a.SerialNumber,
		RevocationCode: a.RevocationCode,
		SharedSecret:   a.SharedSecret,
		TokenGID:       a.TokenGID,
		IdentitySecret: a.IdentitySecret,
		Secret1:        a.Secret1,
		URI:            a.URI,
		ServerTime:     uint64(serverTime),
		DeviceID:       a.DeviceID,
		FullyEnrolled:  a.FullyEnrolled,
	}
	if a.Session != nil {
		account.SteamID = a.Session.SteamID
		account.Session = &models.Session{
			SessionID:        a.Session.SessionID,
			SteamLogin:       a.Session.SteamLogin,
			SteamLoginSecure: a.Session.SteamLoginSecure,
			WebCookie:        a.Session.WebCookie,
			Token:            a.Session.OAuthToken,
			SteamID:          a.Session.SteamID,
		}
	}
	return account
}
