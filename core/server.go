package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Messages passed to the frontend error page
const (
	MessageSessionExpired      = "session_expired"
	MessageAuthorizationDenied = "authorization_denied"
	MessageInvalidState        = "invalid_state"
	MessageMissingCode         = "missing_code"
	MessageAuthFailed          = "authentication_failed"
)

type Server struct {
	service  *EducationService
	config   *Config
	crypto   *CryptoService
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

// NewServer wires the HTTP surface. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(service *EducationService, config *Config, crypto *CryptoService, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	return &Server{
		service:  service,
		config:   config,
		crypto:   crypto,
		gatherer: gatherer,
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", s.HandleLogin)
		r.Get("/callback", s.HandleCallback)
		r.Get("/status", s.HandleStatus)
		r.Post("/logout", s.HandleLogout)
	})
	r.Get("/api/education", s.HandleEducation)
	r.Get("/health", s.HandleHealth)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	login, err := s.service.BeginAuthorization(ctx, s.sessionID(r))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to start authorization")
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to start authorization")
		return
	}

	s.setSessionCookie(w, login.SessionToken)
	http.Redirect(w, r, login.RedirectURL, http.StatusFound)
}

func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := CallbackParams{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	ctx := r.Context()
	if err := s.service.CompleteAuthorization(ctx, s.sessionID(r), params); err != nil {
		message := callbackMessage(err)
		hlog.FromRequest(r).Warn().Err(err).Str("message", message).Msg("authorization callback failed")
		http.Redirect(w, r, s.errorRedirect(message), http.StatusFound)
		return
	}

	http.Redirect(w, r, s.config.Session.SuccessRedirect, http.StatusFound)
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authenticated, err := s.service.Status(ctx, s.sessionID(r))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to read session")
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to read session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{
		"authenticated": authenticated,
	})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(r)
	if sessionID != uuid.Nil {
		ctx := r.Context()
		if err := s.service.Logout(ctx, sessionID); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("failed to logout")
			respondError(w, http.StatusInternalServerError, "internal_error", "Failed to logout")
			return
		}
	}

	s.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "logged_out",
	})
}

func (s *Server) HandleEducation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := s.service.Education(ctx, s.sessionID(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAuthenticated):
			respondError(w, http.StatusUnauthorized, "not_authenticated", "Not authenticated")
		case errors.Is(err, ErrNoRecordsFound):
			respondError(w, http.StatusNotFound, "no_records_available", "No education records available")
		default:
			hlog.FromRequest(r).Error().Err(err).Msg("failed to fetch education data")
			respondError(w, http.StatusBadGateway, "upstream_error", "Failed to fetch education data")
		}
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Helper functions

func callbackMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuthorizationDenied):
		return MessageAuthorizationDenied
	case errors.Is(err, ErrMissingVerifier):
		return MessageSessionExpired
	case errors.Is(err, ErrStateMismatch):
		return MessageInvalidState
	case errors.Is(err, ErrMissingCode):
		return MessageMissingCode
	default:
		return MessageAuthFailed
	}
}

// errorRedirect adds message to the configured error page, keeping any
// query it already has
func (s *Server) errorRedirect(message string) string {
	target, err := url.Parse(s.config.Session.ErrorRedirect)
	if err != nil {
		target = &url.URL{Path: DefaultErrorRedirect}
	}

	query := target.Query()
	query.Set("message", message)
	target.RawQuery = query.Encode()
	return target.String()
}

// sessionID returns the session from the cookie, or uuid.Nil when the cookie
// is missing or does not verify.
func (s *Server) sessionID(r *http.Request) uuid.UUID {
	cookie, err := r.Cookie(s.config.Session.CookieName)
	if err != nil || cookie.Value == "" {
		return uuid.Nil
	}

	sessionID, err := ValidateSessionToken(cookie.Value, s.crypto.SigningKey())
	if err != nil {
		return uuid.Nil
	}
	return sessionID
}

func (s *Server) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Session.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   s.config.Session.TokenTTL,
		HttpOnly: true,
		Secure:   s.config.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
