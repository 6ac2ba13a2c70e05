package steamapi

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/steamguard/internal/models"
)

// OAuthData is the ephemeral token bundle a successful login yields. It is
// consumed immediately to build a models.Session and never persisted.
type OAuthData struct {
	OAuthToken    string `json:"oauth_token"`
	SteamID       string `json:"steamid"`
	WGToken       string `json:"wgtoken"`
	WGTokenSecure string `json:"wgtoken_secure"`
	WebCookie     string `json:"webcookie"`
}

// LoginTransferParameters is the redirect payload some login responses
// carry instead of an inline OAuth bundle.
type LoginTransferParameters struct {
	SteamID       string `json:"steamid"`
	TokenSecure   string `json:"token_secure"`
	Auth          string `json:"auth"`
	RememberLogin bool   `json:"remember_login"`
	WebCookie     string `json:"webcookie"`
}

// LoginResponse is the transient result of the dologin endpoint. Exactly
// one of three things is true of it: OAuth is set (session built already),
// NeedsTransferLogin() (caller must run TransferLogin), or one of the
// challenge flags is set and the caller must retry with more codes.
type LoginResponse struct {
	Success            bool                     `json:"success"`
	LoginComplete      bool                     `json:"login_complete"`
	CaptchaNeeded      bool                     `json:"captcha_needed"`
	CaptchaGID         string                   `json:"captcha_gid"`
	EmailSteamID       uint64                   `json:"emailsteamid"`
	EmailAuthNeeded    bool                     `json:"emailauth_needed"`
	RequiresTwoFactor  bool                     `json:"requires_twofactor"`
	Message            string                   `json:"message"`
	OAuth              *OAuthData               `json:"-"`
	TransferURLs       []string                 `json:"transfer_urls"`
	TransferParameters *LoginTransferParameters `json:"transfer_parameters"`
}

// UnmarshalJSON handles the quirk that the oauth field arrives as a string
// of JSON nested inside the JSON response, needing a second decode pass.
func (r *LoginResponse) UnmarshalJSON(data []byte) error {
	type loginResponse LoginResponse
	aux := struct {
		*loginResponse
		OAuth string `json:"oauth"`
	}{loginResponse: (*loginResponse)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.OAuth != "" {
		r.OAuth = new(OAuthData)
		if err := json.Unmarshal([]byte(aux.OAuth), r.OAuth); err != nil {
			return fmt.Errorf("decode nested oauth payload: %w", err)
		}
	}
	return nil
}

// NeedsTransferLogin reports whether the secondary transfer step is
// required to finish this login.
func (r *LoginResponse) NeedsTransferLogin() bool {
	return r.TransferURLs != nil || r.TransferParameters != nil
}

// RsaResponse is the public key material for encrypting a login password.
type RsaResponse struct {
	Success      bool   `json:"success"`
	PublickeyExp string `json:"publickey_exp"`
	PublickeyMod string `json:"publickey_mod"`
	Timestamp    string `json:"timestamp"`
	TokenGID     string `json:"token_gid"`
}

// AddAuthenticatorResponse wraps the secret bundle the enrollment endpoint
// returns.
type AddAuthenticatorResponse struct {
	Response AddAuthenticatorResponseInner `json:"response"`
}

type AddAuthenticatorResponseInner struct {
	SharedSecret   string `json:"shared_secret"`
	SerialNumber   string `json:"serial_number"`
	RevocationCode string `json:"revocation_code"`
	URI            string `json:"uri"`
	ServerTime     uint64 `json:"server_time"`
	AccountName    string `json:"account_name"`
	TokenGID       string `json:"token_gid"`
	IdentitySecret string `json:"identity_secret"`
	Secret1        string `json:"secret_1"`
	Status         string `json:"status"`
}

// ToAccount converts the enrollment response to a canonical account.
// FullyEnrolled stays false until the user confirms the authenticator;
// the caller fills in DeviceID, SteamID, and Session.
func (r *AddAuthenticatorResponse) ToAccount() models.SteamGuardAccount {
	inner := r.Response
	return models.SteamGuardAccount{
		AccountName:    inner.AccountName,
		SerialNumber:   inner.SerialNumber,
		RevocationCode: inner.RevocationCode,
		SharedSecret:   inner.SharedSecret,
		TokenGID:       inner.TokenGID,
		IdentitySecret: inner.IdentitySecret,
		Secret1:        inner.Secret1,
		URI:            inner.URI,
		ServerTime:     inner.ServerTime,
		FullyEnrolled:  false,
	}
}
