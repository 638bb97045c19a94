package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type LoginResult struct {
	RedirectURL  string
	SessionID    uuid.UUID
	SessionToken string
}

// CallbackParams are the query parameters the provider sends back
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

type EducationService struct {
	store    SessionStore
	config   *Config
	crypto   *CryptoService
	provider RecordsProvider
	metrics  *Metrics
	logger   zerolog.Logger
}

func NewEducationService(store SessionStore, config *Config, provider RecordsProvider, crypto *CryptoService, metrics *Metrics, logger zerolog.Logger) *EducationService {
	return &EducationService{
		store:    store,
		config:   config,
		crypto:   crypto,
		provider: provider,
		metrics:  metrics,
		logger:   logger.With().Str("provider", string(provider.Provider())).Logger(),
	}
}

func pendingKey(sessionID uuid.UUID) string {
	return "pending:" + sessionID.String()
}

func tokenKey(sessionID uuid.UUID) string {
	return "token:" + sessionID.String()
}

// BeginAuthorization starts a login under a freshly minted session id. The
// previous session, when not uuid.Nil, is discarded along with its data.
func (s *EducationService) BeginAuthorization(ctx context.Context, previous uuid.UUID) (*LoginResult, error) {
	if previous != uuid.Nil {
		if err := s.Logout(ctx, previous); err != nil {
			return nil, fmt.Errorf("failed to discard previous session: %w", err)
		}
	}
	sessionID := uuid.New()

	// 1. Build the provider URL with a fresh verifier and state
	authReq, err := s.provider.AuthorizationURL()
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization url: %w", err)
	}

	// 2. Keep verifier and state until the callback
	pending := PendingAuthorization{
		CodeVerifier: authReq.CodeVerifier,
		State:        authReq.State,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.putSealed(ctx, pendingKey(sessionID), pending, s.config.VerifierLifetime()); err != nil {
		return nil, fmt.Errorf("failed to store pending authorization: %w", err)
	}

	// 3. Sign the session cookie
	sessionToken, err := GenerateSessionToken(sessionID, s.crypto.SigningKey(), s.config.TokenLifetime())
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	s.metrics.IncAuthorizationStarted()
	s.logger.Debug().Str("session_id", sessionID.String()).Msg("authorization started")

	return &LoginResult{
		RedirectURL:  authReq.RedirectURL,
		SessionID:    sessionID,
		SessionToken: sessionToken,
	}, nil
}

// CompleteAuthorization consumes the pending authorization of the session
// and stores the provider token on success. The pending entry is single use.
func (s *EducationService) CompleteAuthorization(ctx context.Context, sessionID uuid.UUID, params CallbackParams) error {
	if params.Error != "" {
		_ = s.store.Delete(ctx, pendingKey(sessionID))
		if params.ErrorDescription != "" {
			return fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, params.Error, params.ErrorDescription)
		}
		return fmt.Errorf("%w: %s", ErrAuthorizationDenied, params.Error)
	}

	// 1. Load and consume the pending authorization
	var pending PendingAuthorization
	if sessionID == uuid.Nil {
		return ErrMissingVerifier
	}
	if err := s.takeSealed(ctx, pendingKey(sessionID), &pending); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrMissingVerifier
		}
		return fmt.Errorf("failed to consume pending authorization: %w", err)
	}

	// 2. Check the state echoed by the provider
	if !s.config.Session.SkipStateValidation && params.State != pending.State {
		return ErrStateMismatch
	}

	if params.Code == "" {
		return ErrMissingCode
	}

	// 3. Exchange the code
	tokens, err := s.provider.ExchangeCode(ctx, params.Code, pending.CodeVerifier)
	s.metrics.IncTokenExchange(err)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}

	// 4. Store the token for the rest of the session
	if err := s.putSealed(ctx, tokenKey(sessionID), tokens, s.config.TokenLifetime()); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Info().Str("session_id", sessionID.String()).Msg("authorization completed")
	return nil
}

// Education assembles the person profile from the provider, fetching the
// user profile and the education records concurrently.
func (s *EducationService) Education(ctx context.Context, sessionID uuid.UUID) (profile *PersonProfile, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveEducation(start, err) }()

	tokens, err := s.loadTokens(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var (
		user    *Profile
		records []EducationRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.provider.FetchProfile(gctx, tokens)
		if err != nil {
			return err
		}
		user = p
		return nil
	})
	g.Go(func() error {
		r, err := s.provider.FetchEducationRecords(gctx, tokens)
		if err != nil {
			return err
		}
		records = r
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("education request failed")
		return nil, err
	}

	return &PersonProfile{
		Name:             user.Name,
		DateOfBirth:      user.DateOfBirth,
		EducationRecords: records,
	}, nil
}

// Status reports whether the session holds a provider token
func (s *EducationService) Status(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	if _, err := s.loadTokens(ctx, sessionID); err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *EducationService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	for _, key := range []string{tokenKey(sessionID), pendingKey(sessionID)} {
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to delete session data: %w", err)
		}
	}
	return nil
}

func (s *EducationService) loadTokens(ctx context.Context, sessionID uuid.UUID) (*TokenSet, error) {
	if sessionID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}

	var tokens TokenSet
	if err := s.getSealed(ctx, tokenKey(sessionID), &tokens); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return &tokens, nil
}

func (s *EducationService) putSealed(ctx context.Context, key string, v any, ttl time.Duration) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := s.crypto.EncryptToken(plaintext)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, key, []byte(sealed), ttl)
}

func (s *EducationService) getSealed(ctx context.Context, key string, v any) error {
	sealed, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return s.openSealed(sealed, v)
}

// takeSealed is getSealed that also removes the key, atomically
func (s *EducationService) takeSealed(ctx context.Context, key string, v any) error {
	sealed, err := s.store.Take(ctx, key)
	if err != nil {
		return err
	}
	return s.openSealed(sealed, v)
}

func (s *EducationService) openSealed(sealed []byte, v any) error {
	plaintext, err := s.crypto.DecryptToken(string(sealed))
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
