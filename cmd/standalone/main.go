package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"eduauthd/core"
	"eduauthd/core/providers"
	"eduauthd/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Core       *core.Config                `yaml:",inline"`
	Provider   string                      `yaml:"provider"`
	Digilocker *providers.DigilockerConfig `yaml:"digilocker,omitempty"`

	Log   LogConfig   `yaml:"log"`
	Store StoreConfig `yaml:"store"`
	Port  string      `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type StoreConfig struct {
	Type            string              `yaml:"type"`
	SQLitePath      string              `yaml:"sqlite_path"`
	Redis           storage.RedisConfig `yaml:"redis"`
	YDB             storage.YDBConfig   `yaml:"ydb"`
	CleanupInterval int                 `yaml:"cleanup_interval"` // Seconds between expired session sweeps
}

const (
	defaultPort            = "8080"
	defaultCleanupInterval = 300
	shutdownTimeout        = 10 * time.Second
)

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")
	appConfig, err := loadConfigFromYAML(configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	logger := core.NewLogger(appConfig.Log.Level, appConfig.Log.Pretty)

	if err := appConfig.Core.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid session config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := initStore(ctx, appConfig.Store, logger)
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(reg)

	provider := initProvider(appConfig, metrics, logger)
	crypto, err := core.NewCryptoService(appConfig.Core.Session.Secret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize crypto service")
	}

	service := core.NewEducationService(store, appConfig.Core, provider, crypto, metrics, logger)
	server := core.NewServer(service, appConfig.Core, crypto, reg, logger)

	if sweeps(appConfig.Store.Type) {
		go runCleanup(ctx, store, time.Duration(appConfig.Store.CleanupInterval)*time.Second, logger)
	}

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	logger.Info().
		Str("port", appConfig.Port).
		Str("provider", string(provider.Provider())).
		Str("store", appConfig.Store.Type).
		Msg("starting eduauthd")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
	logger.Info().Msg("server stopped")
}

func loadConfigFromYAML(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := AppConfig{Core: &core.Config{}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	applyEnvOverrides(&config)
	config.SetDefaults()
	return &config, nil
}

func applyEnvOverrides(config *AppConfig) {
	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		config.Core.Session.Secret = secret
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Port = port
	}

	clientID := os.Getenv("DIGILOCKER_CLIENT_ID")
	clientSecret := os.Getenv("DIGILOCKER_CLIENT_SECRET")
	redirectURI := os.Getenv("DIGILOCKER_REDIRECT_URI")
	if clientID == "" && clientSecret == "" && redirectURI == "" {
		return
	}
	if config.Digilocker == nil {
		config.Digilocker = &providers.DigilockerConfig{}
	}
	if clientID != "" {
		config.Digilocker.ClientID = clientID
	}
	if clientSecret != "" {
		config.Digilocker.ClientSecret = clientSecret
	}
	if redirectURI != "" {
		config.Digilocker.RedirectURI = redirectURI
	}
}

func (c *AppConfig) SetDefaults() {
	c.Core.SetDefaults()
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Provider == "" {
		c.Provider = string(core.ProviderDigilocker)
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.CleanupInterval <= 0 {
		c.Store.CleanupInterval = defaultCleanupInterval
	}
}

func initStore(ctx context.Context, config StoreConfig, logger zerolog.Logger) core.SessionStore {
	switch strings.ToLower(config.Type) {
	case "memory":
		logger.Info().Msg("using in-memory session store")
		return storage.NewMemoryStore()

	case "redis":
		store, err := storage.NewRedisStore(ctx, config.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize redis store")
		}
		logger.Info().Str("addr", config.Redis.Addr).Msg("using redis session store")
		return store

	case "sqlite":
		store, err := storage.NewSQLiteStore(config.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize sqlite store")
		}
		logger.Info().Str("path", config.SQLitePath).Msg("using sqlite session store")
		return store

	case "ydb":
		store, err := storage.NewYDBStore(ctx, config.YDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize ydb store")
		}
		logger.Info().Msg("using ydb session store")
		return store

	default:
		logger.Fatal().Str("type", config.Type).Msg("unsupported store type (supported: memory, redis, sqlite, ydb)")
		return nil
	}
}

func initProvider(cfg *AppConfig, metrics *core.Metrics, logger zerolog.Logger) core.RecordsProvider {
	switch core.Provider(strings.ToLower(cfg.Provider)) {
	case core.ProviderDigilocker:
		if cfg.Digilocker == nil {
			logger.Fatal().Msg("digilocker section is required")
		}
		if err := cfg.Digilocker.Validate(); err != nil {
			logger.Fatal().Err(err).Msg("invalid digilocker config")
		}
		return providers.NewDigilockerProvider(cfg.Digilocker,
			providers.WithLogger(logger.With().Str("component", "digilocker").Logger()),
			providers.WithMetrics(metrics),
		)

	case providers.ProviderMock:
		redirectURI := "http://localhost:" + cfg.Port + "/api/auth/callback"
		if cfg.Digilocker != nil && cfg.Digilocker.RedirectURI != "" {
			redirectURI = cfg.Digilocker.RedirectURI
		}
		logger.Warn().Msg("using mock provider with demo data")
		return providers.NewMockProvider(redirectURI)

	default:
		logger.Fatal().Str("provider", cfg.Provider).Msg("unsupported provider (supported: digilocker, mock)")
		return nil
	}
}

// sweeps reports whether the store needs explicit removal of expired rows
func sweeps(storeType string) bool {
	switch strings.ToLower(storeType) {
	case "sqlite", "ydb":
		return true
	}
	return false
}

func runCleanup(ctx context.Context, store core.SessionStore, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteExpired(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("expired session sweep failed")
				continue
			}
			if removed > 0 {
				logger.Debug().Int64("removed", removed).Msg("expired sessions removed")
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
