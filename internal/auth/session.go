package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// opaqueTokenLifetime bounds how long a token without an exp claim is reused
const opaqueTokenLifetime = 30 * time.Minute

// Session holds the token used for remote calls. Init loads a cached
// token or fetches one; Invalidate drops it and fetches a new one.
type Session struct {
	source Source
	store  Store
	buffer time.Duration
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.Mutex
	token Token
}

// NewSession creates a session. store may be nil to disable caching.
func NewSession(source Source, store Store, buffer time.Duration, logger *logrus.Logger) *Session {
	return &Session{
		source: source,
		store:  store,
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// Init loads a usable cached token or fetches a fresh one
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid(s.now(), s.buffer) {
		return nil
	}

	if s.store != nil {
		token, err := s.store.Load()
		switch {
		case err == nil && token.Valid(s.now(), s.buffer):
			s.token = token
			s.logger.WithField("expires_at", token.ExpiresAt).Debug("Using cached token")
			return nil
		case err != nil && !errors.Is(err, ErrNoToken):
			s.logger.WithError(err).Warn("Could not load token cache")
		}
	}

	return s.fetch(ctx)
}

// AccessToken returns the current token, initializing the session if needed
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.AccessToken, nil
}

// Invalidate clears the cached token and acquires a new one
func (s *Session) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = Token{}
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			s.logger.WithError(err).Warn("Could not clear token cache")
		}
	}
	s.logger.Info("Refreshing access token")
	return s.fetch(ctx)
}

// fetch must be called with mu held
func (s *Session) fetch(ctx context.Context) error {
	raw, err := s.source.FetchToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	now := s.now().UTC()
	token := Token{AccessToken: raw, CachedAt: now}

	expiry, err := ExpiryFromJWT(raw)
	if err != nil {
		s.logger.WithError(err).Debug("Token expiry unknown, not caching")
		token.ExpiresAt = now.Add(opaqueTokenLifetime)
		s.token = token
		return nil
	}
	token.ExpiresAt = expiry
	s.token = token

	if s.store != nil {
		if err := s.store.Save(token); err != nil {
			s.logger.WithError(err).Warn("Could not cache token")
		}
	}
	return nil
}
