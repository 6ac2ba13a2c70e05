// Package cli implements the interactive steamguard command loop.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/steamguard/internal/config"
	"github.com/dmitrijs2005/steamguard/internal/logging"
	"github.com/dmitrijs2005/steamguard/internal/models"
	"github.com/dmitrijs2005/steamguard/internal/steamapi"
	"github.com/dmitrijs2005/steamguard/internal/vault"
)

type App struct {
	config   *config.Config
	client   *steamapi.Client
	migrator *vault.Migrator
	log      logging.Logger
	reader   *bufio.Reader

	manifest *vault.Manifest
	accounts []models.SteamGuardAccount
	passkey  []byte
}

func NewApp(c *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	client, err := steamapi.New(steamapi.Config{
		HTTPClient: &http.Client{Timeout: c.RequestTimeout},
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("create steam client: %w", err)
	}

	return &App{
		config:   c,
		client:   client,
		migrator: vault.NewMigrator(nil, log),
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) Run(ctx context.Context) {
	fmt.Println("steamguard CLI (type 'help' for commands)")

	if err := a.loadStore(ctx); err != nil {
		fmt.Printf("could not load account store: %v\n", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("steamguard> ")
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands: list, setup, import <maFile>, time, exit")
		case "list":
			a.list()
		case "setup":
			a.setup(ctx)
		case "import":
			if len(args) != 1 {
				fmt.Println("usage: import <path to legacy maFile>")
				continue
			}
			a.importLegacy(args[0])
		case "time":
			a.serverTime(ctx)
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

// loadStore migrates the on-disk store into memory. When the store is
// encrypted the user is asked for the passkey and the migration is retried.
func (a *App) loadStore(ctx context.Context) error {
	path := a.config.ManifestPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.manifest = &vault.Manifest{Version: vault.CurrentManifestVersion}
		return nil
	}

	manifest, accounts, err := a.migrator.LoadAndMigrate(ctx, path, nil)
	if errors.Is(err, vault.ErrMissingPasskey) {
		passkey, perr := GetPassword(a.reader, "Enter passkey: ", os.Stdout)
		if perr != nil {
			return perr
		}
		a.passkey = passkey
		manifest, accounts, err = a.migrator.LoadAndMigrate(ctx, path, passkey)
	}
	if err != nil {
		return err
	}

	a.manifest = manifest
	a.accounts = accounts
	a.log.Debug(ctx, "loaded account store", "accounts", len(accounts))
	return nil
}

func (a *App) list() {
	if len(a.accounts) == 0 {
		fmt.Println("no accounts in the store")
		return
	}
	for _, account := range a.accounts {
		state := "enrolled"
		if !account.FullyEnrolled {
			state = "pending confirmation"
		}
		fmt.Printf("%s\t%d\t%s\n", account.AccountName, account.SteamID, state)
	}
}

func (a *App) serverTime(ctx context.Context) {
	serverTime, err := a.client.GetServerTime(ctx)
	if err != nil {
		fmt.Printf("query server time: %v\n", err)
		return
	}
	fmt.Printf("steam server time: %d\n", serverTime)
}

func (a *App) importLegacy(path string) {
	account, err := vault.LoadAndUpgradeLegacyAccount(path)
	if err != nil {
		fmt.Printf("import failed: %v\n", err)
		return
	}
	if err := a.saveAccount(account); err != nil {
		fmt.Printf("import failed: %v\n", err)
		return
	}
	fmt.Printf("imported account %s\n", account.AccountName)
}

// saveAccount appends the account to the manifest and persists both. The
// secret file is encrypted when the store has a passkey.
func (a *App) saveAccount(account *models.SteamGuardAccount) error {
	if err := os.MkdirAll(a.config.MafilesDir, 0o700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	entry := vault.Entry{
		Filename:    fmt.Sprintf("%d%s", account.SteamID, vault.SecretFileExt),
		AccountName: strings.ToLower(account.AccountName),
		SteamID:     account.SteamID,
	}

	if len(a.passkey) > 0 {
		params, err := vault.NewEncryptionParams()
		if err != nil {
			return err
		}
		entry.Encryption = params
		if err := vault.SaveAccountEncrypted(a.config.MafilesDir, entry, account, a.passkey); err != nil {
			return err
		}
	} else {
		if err := vault.SaveAccount(a.config.MafilesDir, entry, account); err != nil {
			return err
		}
	}

	a.manifest.Entries = append(a.manifest.Entries, entry)
	a.accounts = append(a.accounts, *account)
	return a.manifest.Save(a.config.ManifestPath())
}
