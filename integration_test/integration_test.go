package integration_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"eduauthd/core"
	"eduauthd/core/providers"
	"eduauthd/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type IntegrationTestSuite struct {
	suite.Suite
	digilocker *MockDigilocker
	app        *httptest.Server
	store      *storage.SQLiteStore
	baseURL    string
	dbPath     string
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.dbPath = filepath.Join(s.T().TempDir(), "eduauthd-integration.db")
	s.digilocker = NewMockDigilocker()

	store, err := storage.NewSQLiteStore(s.dbPath)
	s.Require().NoError(err)
	s.store = store

	// The redirect URI must name the app before its handler exists
	var handler http.Handler
	s.app = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	s.baseURL = s.app.URL

	config := &core.Config{Session: core.SessionConfig{Secret: testSessionSecret}}
	config.SetDefaults()

	crypto, err := core.NewCryptoService(config.Session.Secret)
	s.Require().NoError(err)

	reg := prometheus.NewRegistry()
	metrics := core.NewMetrics(reg)

	provider := providers.NewDigilockerProvider(&providers.DigilockerConfig{
		ClientID:     "mock_client_id",
		ClientSecret: "mock_client_secret",
		RedirectURI:  s.baseURL + "/api/auth/callback",
		AuthURL:      s.digilocker.URL() + "/public/oauth2/1/authorize",
		TokenURL:     s.digilocker.URL() + "/public/oauth2/1/token",
		APIBaseURL:   s.digilocker.URL() + "/public",
		Timeout:      5,
	}, providers.WithMetrics(metrics))

	service := core.NewEducationService(store, config, provider, crypto, metrics, zerolog.Nop())
	handler = core.NewServer(service, config, crypto, reg, zerolog.Nop()).Routes()
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.app != nil {
		s.app.Close()
	}
	if s.digilocker != nil {
		s.digilocker.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	s.digilocker.Reset()
	if err := cleanDatabase(s.dbPath); err != nil {
		s.T().Fatalf("Failed to clean database: %v", err)
	}
}

// signIn walks login, consent and callback and returns where the app sent
// the browser at the end
func (s *IntegrationTestSuite) signIn(browser *http.Client) string {
	status, consentURL, err := follow(browser, s.baseURL+"/api/auth/login")
	s.Require().NoError(err)
	s.Require().Equal(http.StatusFound, status)
	s.Require().True(strings.HasPrefix(consentURL, s.digilocker.URL()))

	status, callbackURL, err := follow(browser, consentURL)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusFound, status)
	s.Require().True(strings.HasPrefix(callbackURL, s.baseURL+"/api/auth/callback"))

	status, landing, err := follow(browser, callbackURL)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusFound, status)
	return landing
}

func (s *IntegrationTestSuite) TestHealthCheck() {
	var resp map[string]string
	status, err := getJSON(newBrowser(), s.baseURL+"/health", &resp)
	s.NoError(err)
	s.Equal(http.StatusOK, status)
	s.Equal("ok", resp["status"])
}

func (s *IntegrationTestSuite) TestFullAuthFlow() {
	browser := newBrowser()

	var statusResp StatusResponse
	_, err := getJSON(browser, s.baseURL+"/api/auth/status", &statusResp)
	s.NoError(err)
	s.False(statusResp.Authenticated)

	s.Equal("/dashboard", s.signIn(browser))
	s.Equal(1, s.digilocker.TokenRequests())

	pending, _ := countSessionsWithPrefix(s.dbPath, "pending:")
	s.Equal(0, pending)
	tokens, _ := countSessionsWithPrefix(s.dbPath, "token:")
	s.Equal(1, tokens)

	_, err = getJSON(browser, s.baseURL+"/api/auth/status", &statusResp)
	s.NoError(err)
	s.True(statusResp.Authenticated)

	var education EducationResponse
	status, err := getJSON(browser, s.baseURL+"/api/education", &education)
	s.NoError(err)
	s.Equal(http.StatusOK, status)

	s.Equal("Asha Verma", education.Name)
	s.Equal("2002-03-14", education.DateOfBirth)
	s.Require().Len(education.EducationRecords, 2)

	tenth := education.EducationRecords[0]
	s.Equal("SSC-2018-4471", tenth.ID)
	s.Equal(string(core.RecordSecondary), tenth.Type)
	s.Equal("Kendriya Vidyalaya", tenth.Institution)
	s.Equal("CBSE", tenth.Board)
	s.Equal(2018, tenth.YearOfPassing)
	s.Equal(91.4, tenth.Percentage)
	s.Equal([]string{"English", "Science"}, tenth.Subjects)
	s.Equal(string(core.StatusCompleted), tenth.Status)

	twelfth := education.EducationRecords[1]
	s.Equal("HSC-2020-9902", twelfth.ID)
	s.Equal(string(core.RecordHigherSecondary), twelfth.Type)
	s.Equal(2020, twelfth.YearOfPassing)
	s.Equal(88.2, twelfth.Percentage)
	s.Equal("9902", twelfth.RollNumber)
	s.Equal("CBSE/2020/9902", twelfth.CertificateNumber)
	s.Equal([]string{"Physics", "Chemistry"}, twelfth.Subjects)

	var logoutResp StatusResponse
	status, err = postJSON(browser, s.baseURL+"/api/auth/logout", &logoutResp)
	s.NoError(err)
	s.Equal(http.StatusOK, status)
	s.Equal("logged_out", logoutResp.Status)

	count, _ := countSessions(s.dbPath)
	s.Equal(0, count)

	var errResp ErrorResponse
	status, err = getJSON(browser, s.baseURL+"/api/education", &errResp)
	s.NoError(err)
	s.Equal(http.StatusUnauthorized, status)
	s.Equal("not_authenticated", errResp.Error)
}

func (s *IntegrationTestSuite) TestTokenIsStoredEncrypted() {
	browser := newBrowser()
	s.Equal("/dashboard", s.signIn(browser))

	u, _ := url.Parse(s.baseURL)
	cookies := browser.Jar.Cookies(u)
	s.Require().Len(cookies, 1)

	sessionID, err := core.ValidateSessionToken(cookies[0].Value, mustSigningKey(s.T()))
	s.Require().NoError(err)

	raw, err := s.store.Get(s.T().Context(), "token:"+sessionID.String())
	s.Require().NoError(err)
	s.NotContains(string(raw), "access-code-")
	s.NotContains(string(raw), "refresh-code-")
}

func (s *IntegrationTestSuite) TestPartialDocuments() {
	s.digilocker.SignInAs("partial")
	browser := newBrowser()
	s.Equal("/dashboard", s.signIn(browser))

	var education EducationResponse
	status, err := getJSON(browser, s.baseURL+"/api/education", &education)
	s.NoError(err)
	s.Equal(http.StatusOK, status)

	s.Equal("Ravi Kumar", education.Name)
	s.Equal("2003-07-01", education.DateOfBirth)
	s.Require().Len(education.EducationRecords, 1)
	s.Equal("SSC-2019-1200", education.EducationRecords[0].ID)
	s.Equal(float64(77), education.EducationRecords[0].Percentage)
	s.Equal([]string{}, education.EducationRecords[0].Subjects)
}

func (s *IntegrationTestSuite) TestNoRecordsAvailable() {
	s.digilocker.SignInAs("fresher")
	browser := newBrowser()
	s.Equal("/dashboard", s.signIn(browser))

	var errResp ErrorResponse
	status, err := getJSON(browser, s.baseURL+"/api/education", &errResp)
	s.NoError(err)
	s.Equal(http.StatusNotFound, status)
	s.Equal("no_records_available", errResp.Error)
}

func (s *IntegrationTestSuite) TestConsentDenied() {
	s.digilocker.Deny(true)
	browser := newBrowser()

	s.Equal("/error?message=authorization_denied", s.signIn(browser))
	s.Equal(0, s.digilocker.TokenRequests())

	count, _ := countSessions(s.dbPath)
	s.Equal(0, count)
}

func (s *IntegrationTestSuite) TestCallbackReplay() {
	browser := newBrowser()

	_, consentURL, err := follow(browser, s.baseURL+"/api/auth/login")
	s.Require().NoError(err)
	_, callbackURL, err := follow(browser, consentURL)
	s.Require().NoError(err)

	_, landing, err := follow(browser, callbackURL)
	s.Require().NoError(err)
	s.Equal("/dashboard", landing)

	_, landing, err = follow(browser, callbackURL)
	s.Require().NoError(err)
	s.Equal("/error?message=session_expired", landing)
	s.Equal(1, s.digilocker.TokenRequests())
}

func (s *IntegrationTestSuite) TestForgedState() {
	browser := newBrowser()

	_, consentURL, err := follow(browser, s.baseURL+"/api/auth/login")
	s.Require().NoError(err)
	_, callbackURL, err := follow(browser, consentURL)
	s.Require().NoError(err)

	u, err := url.Parse(callbackURL)
	s.Require().NoError(err)
	query := u.Query()
	query.Set("state", "forged")
	u.RawQuery = query.Encode()

	_, landing, err := follow(browser, u.String())
	s.Require().NoError(err)
	s.Equal("/error?message=invalid_state", landing)
	s.Equal(0, s.digilocker.TokenRequests())
}

func (s *IntegrationTestSuite) TestCallbackFromAnotherBrowser() {
	_, consentURL, err := follow(newBrowser(), s.baseURL+"/api/auth/login")
	s.Require().NoError(err)
	_, callbackURL, err := follow(newBrowser(), consentURL)
	s.Require().NoError(err)

	_, landing, err := follow(newBrowser(), callbackURL)
	s.Require().NoError(err)
	s.Equal("/error?message=session_expired", landing)
}

func (s *IntegrationTestSuite) TestExpiredSessionsAreSwept() {
	browser := newBrowser()
	s.Equal("/dashboard", s.signIn(browser))

	removed, err := s.store.DeleteExpired(s.T().Context())
	s.NoError(err)
	s.Zero(removed)

	count, _ := countSessions(s.dbPath)
	s.Equal(1, count)
}

func (s *IntegrationTestSuite) TestMetrics() {
	browser := newBrowser()
	s.Equal("/dashboard", s.signIn(browser))

	var education EducationResponse
	_, err := getJSON(browser, s.baseURL+"/api/education", &education)
	s.Require().NoError(err)

	resp, err := browser.Get(s.baseURL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	body := readAll(s.T(), resp)
	s.Contains(body, `eduauthd_document_fetches_total{document="CBSE/MARKS10",result="success"}`)
	s.Contains(body, `eduauthd_education_requests_total{result="success"}`)
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
