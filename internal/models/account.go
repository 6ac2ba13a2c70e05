// Package models defines the domain types shared by the credential vault
// and the Steam API client: the decrypted authenticator account and the
// web session attached to it.
package models

// SteamGuardAccount is the decrypted secret bundle for one mobile
// authenticator, in the canonical (version 1) on-disk shape.
//
// FullyEnrolled is false between AddAuthenticator and the user confirming
// the authenticator with an SMS code; an account saved in that state still
// carries a valid revocation code.
type SteamGuardAccount struct {
	AccountName    string   `json:"account_name"`
	SteamID        uint64   `json:"steam_id"`
	SerialNumber   string   `json:"serial_number"`
	RevocationCode string   `json:"revocation_code"`
	SharedSecret   string   `json:"shared_secret"`
	TokenGID       string   `json:"token_gid"`
	IdentitySecret string   `json:"identity_secret"`
	Secret1        string   `json:"secret_1"`
	URI            string   `json:"uri"`
	ServerTime     uint64   `json:"server_time"`
	DeviceID       string   `json:"device_id"`
	FullyEnrolled  bool     `json:"fully_enrolled"`
	Session        *Session `json:"session,omitempty"`
}
