// Package steamapi implements the client side of Valve's undocumented web
// login, two-factor, and authenticator-enrollment protocol.
package steamapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/steamguard/internal/logging"
	"github.com/dmitrijs2005/steamguard/internal/models"
)

const (
	defaultCommunityBase = "https://steamcommunity.com"
	defaultAPIBase       = "https://api.steampowered.com"

	// The protocol only answers correctly when impersonating the mobile app.
	userAgent      = "Mozilla/5.0 (Linux; U; Android 4.1.1; en-us; Google Nexus 4 - 4.1.1 - API 16 - 768x1280 Build/JRO03S) AppleWebKit/534.30 (KHTML, like Gecko) Version/4.0 Mobile Safari/534.30"
	xRequestedWith = "com.valvesoftware.android.steam.community"

	mobileClientVersion = "0 (2.1.3)"
	oauthClientID       = "DE45CD61"
	oauthScope          = "read_profile write_profile read_client write_client"
)

var (
	// ErrNotAuthenticated means an operation that needs a session was
	// called on a client that has none.
	ErrNotAuthenticated = errors.New("client has no session, log in first")

	// Transfer-login failures, one per combination of missing redirect data.
	ErrNoTransferData            = errors.New("login response carries neither transfer_urls nor transfer_parameters")
	ErrMissingTransferURLs       = errors.New("login response is missing transfer_urls")
	ErrMissingTransferParameters = errors.New("login response is missing transfer_parameters")
)

// Config carries construction options for Client. Base URLs default to the
// live Steam hosts; tests point them at an httptest server. Timeouts are
// the HTTPClient's business.
type Config struct {
	CommunityBase string
	APIBase       string
	HTTPClient    *http.Client
	Logger        logging.Logger
}

// Client drives the login, verification, and enrollment endpoints. It owns
// one cookie jar and at most one Session; it is not safe for concurrent
// use. Construct a new Client per logical identity.
type Client struct {
	http          *http.Client
	jar           *cookiejar.Jar
	communityBase string
	apiBase       string
	communityURL  *url.URL
	log           logging.Logger

	// Session is set after a successful Login or TransferLogin and is a
	// precondition for enrollment and the phoneajax checks.
	Session *models.Session
}

// New constructs a Client with the fixed mobile-client cookies already in
// its jar.
func New(cfg Config) (*Client, error) {
	if cfg.CommunityBase == "" {
		cfg.CommunityBase = defaultCommunityBase
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	communityURL, err := url.Parse(cfg.CommunityBase)
	if err != nil {
		return nil, fmt.Errorf("parse community base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	httpClient.Jar = jar

	c := &Client{
		http:          httpClient,
		jar:           jar,
		communityBase: strings.TrimRight(cfg.CommunityBase, "/"),
		apiBase:       strings.TrimRight(cfg.APIBase, "/"),
		communityURL:  communityURL,
		log:           cfg.Logger,
	}
	c.setFixedCookies()
	return c, nil
}

func (c *Client) setFixedCookies() {
	c.jar.SetCookies(c.communityURL, []*http.Cookie{
		{Name: "mobileClientVersion", Value: mobileClientVersion},
		{Name: "mobileClient", Value: "android"},
		{Name: "Steam_Language", Value: "english"},
	})
}

// do sends a request with the fixed mobile headers. The jar folds every
// Set-Cookie from the response back in, and the body is returned in full.
func (c *Client) do(ctx context.Context, method, urlStr, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Requested-With", xRequestedWith)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.log.Debug(ctx, "steam response", "method", method, "url", urlStr, "status", resp.StatusCode, "bytes", len(data))
	return data, nil
}

func (c *Client) postForm(ctx context.Context, urlStr string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, urlStr, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// UpdateSession pings the anonymous login page so the jar picks up the
// baseline cookies (most importantly sessionid). Idempotent; callable
// anytime.
func (c *Client) UpdateSession(ctx context.Context) error {
	probe := c.communityBase + "/login?oauth_client_id=" + oauthClientID + "&oauth_scope=" + url.QueryEscape(oauthScope)
	if _, err := c.do(ctx, http.MethodGet, probe, "", nil); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// LoginRequest carries the credentials and any challenge answers for one
// dologin attempt. EncryptedPassword is the RSA-encrypted, base64 form
// (see GetRSAKey and cryptox.EncryptPassword); RSATimestamp is the
// timestamp the RSA key came with.
type LoginRequest struct {
	Username          string
	EncryptedPassword string
	TwoFactorCode     string
	EmailCode         string
	CaptchaGID        string
	CaptchaText       string
	RSATimestamp      string
}

// Login posts the credentials. Three outcomes: the response embeds an
// OAuth payload and the Session is built immediately; the response demands
// a transfer step (NeedsTransferLogin, see TransferLogin); or a challenge
// flag is set and the caller retries with the missing code filled in.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	form := url.Values{
		"donotcache":      {strconv.FormatInt(time.Now().UnixMilli(), 10)},
		"username":        {req.Username},
		"password":        {req.EncryptedPassword},
		"twofactorcode":   {req.TwoFactorCode},
		"emailauth":       {req.EmailCode},
		"captchagid":      {req.CaptchaGID},
		"captcha_text":    {req.CaptchaText},
		"rsatimestamp":    {req.RSATimestamp},
		"remember_login":  {"true"},
		"oauth_client_id": {oauthClientID},
		"oauth_scope":     {oauthScope},
	}

	data, err := c.postForm(ctx, c.communityBase+"/login/dologin", form)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var resp LoginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}

	if resp.OAuth != nil {
		session, err := c.buildSession(resp.OAuth)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		c.Session = session
	}
	return &resp, nil
}

// TransferLogin finishes a login whose response demanded the secondary
// transfer step. The transfer parameters are posted to every transfer URL,
// accumulating cookies from each, and an OAuth payload is synthesized from
// the parameters to build the Session.
//
// The synthesized payload reuses the secure token as the plain web-login
// token as well; upstream marks this as an unverified guess against live
// traffic, and it is preserved here unchanged.
func (c *Client) TransferLogin(ctx context.Context, resp *LoginResponse) (*OAuthData, error) {
	switch {
	case resp.TransferURLs == nil && resp.TransferParameters == nil:
		return nil, ErrNoTransferData
	case resp.TransferParameters == nil:
		return nil, ErrMissingTransferParameters
	case resp.TransferURLs == nil:
		return nil, ErrMissingTransferURLs
	}

	body, err := json.Marshal(resp.TransferParameters)
	if err != nil {
		return nil, fmt.Errorf("encode transfer parameters: %w", err)
	}
	for _, transferURL := range resp.TransferURLs {
		c.log.Debug(ctx, "relaying transfer parameters", "url", transferURL)
		if _, err := c.do(ctx, http.MethodPost, transferURL, "application/json", bytes.NewReader(body)); err != nil {
			return nil, fmt.Errorf("transfer to %s: %w", transferURL, err)
		}
	}

	params := resp.TransferParameters
	oauth := &OAuthData{
		OAuthToken:    params.Auth,
		SteamID:       params.SteamID,
		WGToken:       params.TokenSecure,
		WGTokenSecure: params.TokenSecure,
		WebCookie:     params.WebCookie,
	}
	session, err := c.buildSession(oauth)
	if err != nil {
		return nil, fmt.Errorf("transfer login: %w", err)
	}
	c.Session = session
	return oauth, nil
}

// buildSession derives a Session from an OAuth payload plus the sessionid
// cookie currently in the jar. The web-login tokens embed a literal
// percent-encoded double pipe between steamid and token.
func (c *Client) buildSession(data *OAuthData) (*models.Session, error) {
	steamID, err := strconv.ParseUint(data.SteamID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse steamid %q: %w", data.SteamID, err)
	}
	sessionID, ok := c.sessionID()
	if !ok {
		return nil, errors.New("no sessionid cookie in jar")
	}
	return &models.Session{
		SessionID:        sessionID,
		SteamLogin:       data.SteamID + "%7C%7C" + data.WGToken,
		SteamLoginSecure: data.SteamID + "%7C%7C" + data.WGTokenSecure,
		WebCookie:        data.WebCookie,
		Token:            data.OAuthToken,
		SteamID:          steamID,
	}, nil
}

// sessionID scans the jar for the cookie literally named "sessionid".
func (c *Client) sessionID() (string, bool) {
	for _, cookie := range c.jar.Cookies(c.communityURL) {
		if cookie.Name == "sessionid" {
			return cookie.Value, true
		}
	}
	return "", false
}

// AddAuthenticator starts enrollment of a new mobile authenticator. It
// does not verify prerequisites (phone or email confirmations) and needs
// an existing Session.
func (c *Client) AddAuthenticator(ctx context.Context, deviceID string) (*AddAuthenticatorResponse, error) {
	if c.Session == nil {
		return nil, ErrNotAuthenticated
	}
	form := url.Values{
		"access_token":       {c.Session.Token},
		"steamid":            {strconv.FormatUint(c.Session.SteamID, 10)},
		"authenticator_type": {"1"},
		"device_identifier":  {deviceID},
		"sms_phone_id":       {"1"},
	}

	data, err := c.postForm(ctx, c.apiBase+"/ITwoFactorService/AddAuthenticator/v0001", form)
	if err != nil {
		return nil, fmt.Errorf("add authenticator: %w", err)
	}
	var resp AddAuthenticatorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode add authenticator response: %w", err)
	}
	return &resp, nil
}

// phoneajax posts one operation to the phone verification endpoint and
// reads back a boolean: has_phone first, then success, false if neither
// field is present.
func (c *Client) phoneajax(ctx context.Context, op, arg string) (bool, error) {
	if c.Session == nil {
		return false, ErrNotAuthenticated
	}
	form := url.Values{
		"op":        {op},
		"arg":       {arg},
		"sessionid": {c.Session.SessionID},
	}
	if op == "check_sms_code" {
		form.Set("checkfortos", "0")
		form.Set("skipvoip", "1")
	}

	data, err := c.postForm(ctx, c.communityBase+"/steamguard/phoneajax", form)
	if err != nil {
		return false, fmt.Errorf("phoneajax %s: %w", op, err)
	}

	var result struct {
		HasPhone *bool `json:"has_phone"`
		Success  *bool `json:"success"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return false, fmt.Errorf("decode phoneajax response: %w", err)
	}
	switch {
	case result.HasPhone != nil:
		return *result.HasPhone, nil
	case result.Success != nil:
		return *result.Success, nil
	default:
		c.log.Debug(ctx, "phoneajax response has no expected field", "op", op)
		return false, nil
	}
}

// HasPhone reports whether the logged-in account has a phone number.
func (c *Client) HasPhone(ctx context.Context) (bool, error) {
	return c.phoneajax(ctx, "has_phone", "null")
}

// CheckSMSCode verifies the SMS code sent during phone confirmation.
func (c *Client) CheckSMSCode(ctx context.Context, smsCode string) (bool, error) {
	return c.phoneajax(ctx, "check_sms_code", smsCode)
}

// CheckEmailConfirmation reports whether the email confirmation completed.
func (c *Client) CheckEmailConfirmation(ctx context.Context) (bool, error) {
	return c.phoneajax(ctx, "email_confirmation", "")
}

// AddPhoneNumber starts adding the given phone number to the account.
func (c *Client) AddPhoneNumber(ctx context.Context, phoneNumber string) (bool, error) {
	return c.phoneajax(ctx, "add_phone_number", phoneNumber)
}

// GetRSAKey fetches the RSA public key for encrypting the login password.
func (c *Client) GetRSAKey(ctx context.Context, username string) (*RsaResponse, error) {
	form := url.Values{
		"donotcache": {strconv.FormatInt(time.Now().UnixMilli(), 10)},
		"username":   {username},
	}
	data, err := c.postForm(ctx, c.communityBase+"/login/getrsakey", form)
	if err != nil {
		return nil, fmt.Errorf("get rsa key: %w", err)
	}
	var resp RsaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode rsa key response: %w", err)
	}
	return &resp, nil
}

// GetServerTime queries Steam's authoritative time, for aligning TOTP
// windows on machines with skewed clocks.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	data, err := c.do(ctx, http.MethodPost, c.apiBase+"/ITwoFactorService/QueryTime/v0001", "application/x-www-form-urlencoded", strings.NewReader("steamid=0"))
	if err != nil {
		return 0, fmt.Errorf("query server time: %w", err)
	}
	var resp struct {
		Response struct {
			ServerTime string `json:"server_time"`
		} `json:"response"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("decode server time response: %w", err)
	}
	serverTime, err := strconv.ParseInt(resp.Response.ServerTime, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse server time %q: %w", resp.Response.ServerTime, err)
	}
	return serverTime, nil
}
