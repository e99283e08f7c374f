package email

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/auth"
	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/graph"
	"github.com/brandon/outlook-email/internal/remote"
)

// Account is the connected remote mailbox
type Account struct {
	Client    remote.Client
	Refresher remote.Refresher
	closer    func() error
}

// NewAccount wraps an already constructed backend
func NewAccount(client remote.Client, refresher remote.Refresher) *Account {
	return &Account{Client: client, Refresher: refresher}
}

// Close closes the backend connection, if any
func (a *Account) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer()
}

// AccountOpener builds the account on first remote use
type AccountOpener func() (*Account, error)

// OpenAccount returns an opener for the configured backend
func OpenAccount(cfg *config.Config, logger *logrus.Logger) AccountOpener {
	return func() (*Account, error) {
		switch cfg.Backend {
		case config.BackendIMAP:
			client := NewIMAPClient(&cfg.IMAP, logger)
			return &Account{Client: client, Refresher: client, closer: client.Close}, nil
		case config.BackendGraph, "":
			return openGraphAccount(cfg, logger)
		default:
			return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
		}
	}
}

func openGraphAccount(cfg *config.Config, logger *logrus.Logger) (*Account, error) {
	var source auth.Source
	switch {
	case cfg.Auth.AccessToken != "":
		source = auth.StaticSource(cfg.Auth.AccessToken)
	case cfg.Auth.TokenCommand != "":
		source = auth.CommandSource{Command: cfg.Auth.TokenCommand}
	default:
		return nil, fmt.Errorf("auth.token_command or auth.access_token is required for the graph backend")
	}

	var store auth.Store
	if cfg.Auth.AccessToken == "" {
		ring, err := auth.OpenKeyringStore(auth.KeyringConfig{
			Service: cfg.Auth.KeyringService,
			FileDir: cfg.Auth.KeyringDir,
		})
		if err != nil {
			logger.WithError(err).Warn("Token cache unavailable, tokens will not be reused")
		} else {
			store = ring
		}
	}

	session := auth.NewSession(source, store, cfg.Auth.ExpiryBuffer, logger)
	client := graph.NewClient(cfg.Graph.BaseURL, session, &http.Client{Timeout: cfg.Graph.Timeout}, logger)
	return &Account{Client: client, Refresher: session}, nil
}
