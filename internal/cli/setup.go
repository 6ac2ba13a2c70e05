package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/steamguard/internal/cryptox"
	"github.com/dmitrijs2005/steamguard/internal/shared"
	"github.com/dmitrijs2005/steamguard/internal/steamapi"
)

// setup logs into Steam and enrolls a new mobile authenticator for the
// account, saving the resulting secrets into the store. The account is
// left pending confirmation; the revocation code is printed and must be
// written down before anything else.
func (a *App) setup(ctx context.Context) {
	username, err := GetSimpleText(a.reader, "Steam username: ", os.Stdout)
	if err != nil {
		fmt.Printf("setup failed: %v\n", err)
		return
	}
	password, err := GetPassword(a.reader, "Steam password: ", os.Stdout)
	if err != nil {
		fmt.Printf("setup failed: %v\n", err)
		return
	}
	defer shared.WipeByteArray(password)

	if err := a.client.UpdateSession(ctx); err != nil {
		fmt.Printf("setup failed: %v\n", err)
		return
	}

	if err := a.login(ctx, username, password); err != nil {
		fmt.Printf("login failed: %v\n", err)
		return
	}

	if err := a.ensurePhone(ctx); err != nil {
		fmt.Printf("setup failed: %v\n", err)
		return
	}

	deviceID := "android:" + uuid.NewString()
	resp, err := a.client.AddAuthenticator(ctx, deviceID)
	if err != nil {
		fmt.Printf("enrollment failed: %v\n", err)
		return
	}

	account := resp.ToAccount()
	account.DeviceID = deviceID
	account.SteamID = a.client.Session.SteamID
	account.Session = a.client.Session

	if err := a.saveAccount(&account); err != nil {
		fmt.Printf("could not save account: %v\n", err)
		fmt.Printf("WRITE DOWN THIS REVOCATION CODE NOW: %s\n", account.RevocationCode)
		return
	}

	fmt.Printf("authenticator added for %s\n", account.AccountName)
	fmt.Printf("revocation code: %s (write it down, it is the only way to remove the authenticator without the secrets)\n", account.RevocationCode)
	fmt.Println("confirm the authenticator with the SMS code sent to your phone to finish enrollment")
}

// login drives the dologin challenge loop: each failed attempt tells us
// which code is missing, we prompt for it and retry.
func (a *App) login(ctx context.Context, username string, password []byte) error {
	rsa, err := a.client.GetRSAKey(ctx, username)
	if err != nil {
		return err
	}
	encrypted, err := cryptox.EncryptPassword(rsa.PublickeyMod, rsa.PublickeyExp, password)
	if err != nil {
		return err
	}

	req := steamapi.LoginRequest{
		Username:          username,
		EncryptedPassword: encrypted,
		RSATimestamp:      rsa.Timestamp,
	}

	for attempt := 0; attempt < 5; attempt++ {
		resp, err := a.client.Login(ctx, req)
		if err != nil {
			return err
		}

		switch {
		case resp.Success && resp.OAuth != nil:
			return nil
		case resp.Success && resp.NeedsTransferLogin():
			if _, err := a.client.TransferLogin(ctx, resp); err != nil {
				return err
			}
			return nil
		case resp.RequiresTwoFactor:
			code, err := GetSimpleText(a.reader, "Steam Guard code: ", os.Stdout)
			if err != nil {
				return err
			}
			req.TwoFactorCode = code
		case resp.EmailAuthNeeded:
			code, err := GetSimpleText(a.reader, "Email code: ", os.Stdout)
			if err != nil {
				return err
			}
			req.EmailCode = code
		case resp.CaptchaNeeded:
			fmt.Printf("solve the captcha: https://steamcommunity.com/public/captcha.php?gid=%s\n", resp.CaptchaGID)
			text, err := GetSimpleText(a.reader, "Captcha text: ", os.Stdout)
			if err != nil {
				return err
			}
			req.CaptchaGID = resp.CaptchaGID
			req.CaptchaText = text
		default:
			return fmt.Errorf("login rejected: %s", resp.Message)
		}
	}
	return fmt.Errorf("too many failed login attempts")
}

// ensurePhone checks the account has a phone number, walking the user
// through adding one when it does not.
func (a *App) ensurePhone(ctx context.Context) error {
	hasPhone, err := a.client.HasPhone(ctx)
	if err != nil {
		return err
	}
	if hasPhone {
		return nil
	}

	number, err := GetSimpleText(a.reader, "No phone on the account. Phone number (+11234567890): ", os.Stdout)
	if err != nil {
		return err
	}
	ok, err := a.client.AddPhoneNumber(ctx, number)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("steam rejected the phone number %s", number)
	}

	if _, err := GetSimpleText(a.reader, "Click the link in the confirmation email, then press Enter", os.Stdout); err != nil {
		return err
	}
	confirmed, err := a.client.CheckEmailConfirmation(ctx)
	if err != nil {
		return err
	}
	if !confirmed {
		return fmt.Errorf("email confirmation is still pending")
	}
	return nil
}
