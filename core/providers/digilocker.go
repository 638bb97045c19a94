package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eduauthd/core"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDigilockerAuthURL    = "https://api.digitallocker.gov.in/public/oauth2/1/authorize"
	DefaultDigilockerTokenURL   = "https://api.digitallocker.gov.in/public/oauth2/1/token"
	DefaultDigilockerAPIBaseURL = "https://api.digitallocker.gov.in/public"

	// DigilockerScope is the only permission this client ever requests
	DigilockerScope = "avs_parent"

	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

var ErrIncompleteConfig = errors.New("digilocker client_id, client_secret and redirect_uri are required")

type DigilockerConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	APIBaseURL   string `yaml:"api_base_url"`
	Timeout      int    `yaml:"timeout"` // Upstream request timeout in seconds
}

func (c *DigilockerConfig) SetDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = DefaultDigilockerAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultDigilockerTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultDigilockerAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
}

func (c *DigilockerConfig) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURI == "" {
		return ErrIncompleteConfig
	}
	return nil
}

// DigilockerProvider talks to DigiLocker's OAuth2 and document APIs. It keeps
// no per-user state; tokens are passed into every call.
type DigilockerProvider struct {
	config     *DigilockerConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	metrics    *core.Metrics
	logger     zerolog.Logger
}

type Option func(*DigilockerProvider)

// WithHTTPClient replaces the default client used for every upstream call
func WithHTTPClient(client *http.Client) Option {
	return func(d *DigilockerProvider) {
		d.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *DigilockerProvider) {
		d.logger = logger
	}
}

func WithMetrics(metrics *core.Metrics) Option {
	return func(d *DigilockerProvider) {
		d.metrics = metrics
	}
}

func NewDigilockerProvider(config *DigilockerConfig, opts ...Option) *DigilockerProvider {
	config.SetDefaults()

	timeout := defaultTimeout
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}

	d := &DigilockerProvider{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       []string{DigilockerScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *DigilockerProvider) Provider() core.Provider {
	return core.ProviderDigilocker
}

// AuthorizationURL builds the redirect to DigiLocker's consent page. The
// returned verifier and state must be kept by the caller until the callback.
func (d *DigilockerProvider) AuthorizationURL() (*core.AuthorizationRequest, error) {
	verifier := GenerateVerifier()

	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &core.AuthorizationRequest{
		RedirectURL:  d.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		CodeVerifier: verifier,
		State:        state,
	}, nil
}

func (d *DigilockerProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*core.TokenSet, error) {
	if codeVerifier == "" {
		return nil, core.ErrMissingVerifier
	}
	if code == "" {
		return nil, core.ErrMissingCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.tokenClient())
	tok, err := d.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, exchangeError(err)
	}

	return tokenSetFromOAuth2(tok)
}

// tokenClient is the configured client with token responses always read as
// JSON. x/oauth2 would otherwise parse text/plain bodies as a query string.
func (d *DigilockerProvider) tokenClient() *http.Client {
	next := d.httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	client := *d.httpClient
	client.Transport = jsonTokenTransport{next: next}
	return &client
}

type jsonTokenTransport struct {
	next http.RoundTripper
}

func (t jsonTokenTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &core.TokenExchangeError{
			StatusCode: status,
			Body:       string(retrieveErr.Body),
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", core.ErrTransport, err)
	}

	return fmt.Errorf("%w: %v", core.ErrMalformedTokenResponse, err)
}

func tokenSetFromOAuth2(tok *oauth2.Token) (*core.TokenSet, error) {
	expiresIn, ok := expiresInSeconds(tok.Extra("expires_in"))

	var missing []string
	if tok.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if tok.TokenType == "" {
		missing = append(missing, "token_type")
	}
	if !ok {
		missing = append(missing, "expires_in")
	}
	if tok.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", core.ErrMalformedTokenResponse, strings.Join(missing, ", "))
	}

	return &core.TokenSet{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    expiresIn,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// expiresInSeconds accepts expires_in as a JSON number or a numeric string
func expiresInSeconds(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n <= 0 {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || i <= 0 {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func (d *DigilockerProvider) FetchProfile(ctx context.Context, token *core.TokenSet) (*core.Profile, error) {
	if !hasAccessToken(token) {
		return nil, core.ErrNotAuthenticated
	}

	body, err := d.getJSON(ctx, token, d.config.APIBaseURL+"/oauth2/1/user", core.ErrProfileFetchFailed)
	if err != nil {
		return nil, err
	}

	return NormalizeProfile(body)
}

// FetchDocument looks the document up in the user's issued list by uri or
// doctype, then fetches and normalizes its detail payload.
func (d *DigilockerProvider) FetchDocument(ctx context.Context, token *core.TokenSet, spec core.DocumentSpec) (*core.EducationRecord, error) {
	if !hasAccessToken(token) {
		return nil, core.ErrNotAuthenticated
	}

	issued, err := d.getJSON(ctx, token, d.config.APIBaseURL+"/oauth2/1/file/issued", core.ErrDocumentFetchFailed)
	if err != nil {
		return nil, err
	}

	uri, ok := findIssued(issued, spec.Identifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, spec.Identifier)
	}

	detail, err := d.getJSON(ctx, token, d.config.APIBaseURL+"/oauth2/1/xml/"+url.PathEscape(uri), core.ErrDocumentFetchFailed)
	if err != nil {
		return nil, err
	}

	return NormalizeRecord(detail, spec, uri)
}

// FetchEducationRecords fetches every education document concurrently. A
// failed document is logged and skipped; the call fails only when none
// succeeded.
func (d *DigilockerProvider) FetchEducationRecords(ctx context.Context, token *core.TokenSet) ([]core.EducationRecord, error) {
	if !hasAccessToken(token) {
		return nil, core.ErrNotAuthenticated
	}

	results := make([]core.DocumentResult, len(core.EducationDocuments))

	var g errgroup.Group
	for i, spec := range core.EducationDocuments {
		g.Go(func() error {
			record, err := d.FetchDocument(ctx, token, spec)
			d.metrics.IncDocumentFetch(spec.Identifier, err)
			if err != nil {
				d.logger.Warn().Err(err).Str("document", spec.Identifier).Msg("document fetch failed")
			}
			results[i] = core.DocumentResult{Spec: spec, Record: record, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return core.CollectRecords(results)
}

func findIssued(issued []byte, identifier string) (string, bool) {
	var uri string
	gjson.GetBytes(issued, "items").ForEach(func(_, item gjson.Result) bool {
		itemURI := item.Get("uri").String()
		if itemURI != "" && (itemURI == identifier || item.Get("doctype").String() == identifier) {
			uri = itemURI
			return false
		}
		return true
	})
	return uri, uri != ""
}

func (d *DigilockerProvider) getJSON(ctx context.Context, token *core.TokenSet, endpoint string, failure error) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", failure, err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", failure, maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", failure, resp.StatusCode, string(body))
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", failure)
	}

	return body, nil
}

func hasAccessToken(token *core.TokenSet) bool {
	return token != nil && token.AccessToken != ""
}
