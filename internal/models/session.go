package models

// Session carries the authenticated tokens and cookies needed to act as a
// logged-in Steam user. It is produced by the steamapi client after a
// successful login (or transfer login) and persisted alongside the account.
//
// JSON keys use the PascalCase names the mobile authenticator file format
// has always used, so sessions round-trip through old maFiles unchanged.
type Session struct {
	SessionID        string `json:"SessionID"`
	SteamLogin       string `json:"SteamLogin"`
	SteamLoginSecure string `json:"SteamLoginSecure"`
	WebCookie        string `json:"WebCookie"`
	Token            string `json:"OAuthToken"`
	SteamID          uint64 `json:"SteamID"`
}
