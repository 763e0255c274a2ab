// Package config provides configuration management for orthomate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWorkerHost keeps the dashboard on loopback; patient data never
	// leaves the machine unless configured otherwise.
	DefaultWorkerHost = "127.0.0.1"
	// DefaultWorkerPort is the dashboard HTTP port.
	DefaultWorkerPort = 37880

	// Store backends.
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	// SQLite drivers registered with database/sql.
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"

	// Transcription providers.
	ProviderWhisper = "whisper"
	ProviderGemini  = "gemini"

	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultWhisperModel  = "whisper-1"
	DefaultGeminiModel   = "gemini-2.5-flash"

	dirName          = ".orthomate"
	settingsFileName = "settings.json"
	dbFileName       = "orthomate.db"
	templatesFile    = "templates.yaml"
)

// StoreConfig carries record store credentials and endpoints. It is built
// once at startup and passed to the store constructor.
type StoreConfig struct {
	Backend      string
	SQLitePath   string
	SQLiteDriver string
	PostgresDSN  string
	RedisURL     string
	RedisPrefix  string
	MaxConns     int
}

// TranscriptionConfig selects and configures the speech-to-text provider.
type TranscriptionConfig struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	WhisperModel  string
	GeminiAPIKey  string
	GeminiModel   string
}

// Config is the full worker configuration.
type Config struct {
	WorkerHost     string
	TemplatesPath  string
	Store          StoreConfig
	Transcription  TranscriptionConfig
	WorkerPort     int
	WatchSettings  bool
	WatchTemplates bool
}

// settings mirrors settings.json. Pointers distinguish "absent" from zero.
type settings struct {
	WorkerHost     *string `json:"ORTHOMATE_WORKER_HOST"`
	WorkerPort     *int    `json:"ORTHOMATE_WORKER_PORT"`
	TemplatesPath  *string `json:"ORTHOMATE_TEMPLATES_PATH"`
	WatchSettings  *bool   `json:"ORTHOMATE_WATCH_SETTINGS"`
	WatchTemplates *bool   `json:"ORTHOMATE_WATCH_TEMPLATES"`

	StoreBackend *string `json:"ORTHOMATE_STORE_BACKEND"`
	SQLitePath   *string `json:"ORTHOMATE_SQLITE_PATH"`
	SQLiteDriver *string `json:"ORTHOMATE_SQLITE_DRIVER"`
	PostgresDSN  *string `json:"ORTHOMATE_POSTGRES_DSN"`
	RedisURL     *string `json:"ORTHOMATE_REDIS_URL"`
	RedisPrefix  *string `json:"ORTHOMATE_REDIS_PREFIX"`
	MaxConns     *int    `json:"ORTHOMATE_MAX_CONNS"`

	TranscriptionProvider *string `json:"ORTHOMATE_TRANSCRIPTION_PROVIDER"`
	OpenAIAPIKey          *string `json:"ORTHOMATE_OPENAI_API_KEY"`
	OpenAIBaseURL         *string `json:"ORTHOMATE_OPENAI_BASE_URL"`
	WhisperModel          *string `json:"ORTHOMATE_WHISPER_MODEL"`
	GeminiAPIKey          *string `json:"ORTHOMATE_GEMINI_API_KEY"`
	GeminiModel           *string `json:"ORTHOMATE_GEMINI_MODEL"`
}

// DataDir returns the data directory: ORTHOMATE_DATA_DIR when set,
// otherwise ~/.orthomate.
func DataDir() string {
	if dir := strings.TrimSpace(os.Getenv("ORTHOMATE_DATA_DIR")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, dirName)
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFileName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// TemplatesPath returns the default templates YAML path.
func TemplatesPath() string {
	return filepath.Join(DataDir(), templatesFile)
}

// Default returns the configuration used when no settings exist.
func Default() *Config {
	return &Config{
		WorkerHost:     DefaultWorkerHost,
		WorkerPort:     DefaultWorkerPort,
		TemplatesPath:  TemplatesPath(),
		WatchSettings:  true,
		WatchTemplates: true,
		Store: StoreConfig{
			Backend:      BackendSQLite,
			SQLitePath:   DBPath(),
			SQLiteDriver: DriverCGO,
			RedisPrefix:  "orthomate",
			MaxConns:     4,
		},
		Transcription: TranscriptionConfig{
			Provider:      ProviderWhisper,
			OpenAIBaseURL: DefaultOpenAIBaseURL,
			WhisperModel:  DefaultWhisperModel,
			GeminiModel:   DefaultGeminiModel,
		},
	}
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes an empty settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte("{}\n"), 0600)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}

// Load reads settings.json, then applies environment overrides.
// A missing or malformed settings file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		var s settings
		if jsonErr := json.Unmarshal(data, &s); jsonErr != nil {
			log.Warn().Err(jsonErr).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
		} else {
			s.apply(cfg)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// GetWorkerPort returns ORTHOMATE_WORKER_PORT when it holds a valid port,
// otherwise the configured port.
func GetWorkerPort() int {
	if p, ok := envPort(); ok {
		return p
	}
	cfg, err := Load()
	if err != nil {
		return DefaultWorkerPort
	}
	return cfg.WorkerPort
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.WorkerHost + ":" + strconv.Itoa(c.WorkerPort)
}

// Validate checks backend and provider names.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLiteDriver != DriverCGO && c.Store.SQLiteDriver != DriverPureGo {
			return fmt.Errorf("unknown sqlite driver %q", c.Store.SQLiteDriver)
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("postgres backend requires ORTHOMATE_POSTGRES_DSN")
		}
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return errors.New("redis backend requires ORTHOMATE_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Transcription.Provider {
	case ProviderWhisper, ProviderGemini:
	default:
		return fmt.Errorf("unknown transcription provider %q", c.Transcription.Provider)
	}
	return nil
}

func (s *settings) apply(cfg *Config) {
	setString(&cfg.WorkerHost, s.WorkerHost)
	if s.WorkerPort != nil && *s.WorkerPort > 0 {
		cfg.WorkerPort = *s.WorkerPort
	}
	setString(&cfg.TemplatesPath, s.TemplatesPath)
	if s.WatchSettings != nil {
		cfg.WatchSettings = *s.WatchSettings
	}
	if s.WatchTemplates != nil {
		cfg.WatchTemplates = *s.WatchTemplates
	}

	setString(&cfg.Store.Backend, s.StoreBackend)
	setString(&cfg.Store.SQLitePath, s.SQLitePath)
	setString(&cfg.Store.SQLiteDriver, s.SQLiteDriver)
	setString(&cfg.Store.PostgresDSN, s.PostgresDSN)
	setString(&cfg.Store.RedisURL, s.RedisURL)
	setString(&cfg.Store.RedisPrefix, s.RedisPrefix)
	if s.MaxConns != nil && *s.MaxConns > 0 {
		cfg.Store.MaxConns = *s.MaxConns
	}

	setString(&cfg.Transcription.Provider, s.TranscriptionProvider)
	setString(&cfg.Transcription.OpenAIAPIKey, s.OpenAIAPIKey)
	setString(&cfg.Transcription.OpenAIBaseURL, s.OpenAIBaseURL)
	setString(&cfg.Transcription.WhisperModel, s.WhisperModel)
	setString(&cfg.Transcription.GeminiAPIKey, s.GeminiAPIKey)
	setString(&cfg.Transcription.GeminiModel, s.GeminiModel)
}

func applyEnv(cfg *Config) {
	envString(&cfg.WorkerHost, "ORTHOMATE_WORKER_HOST")
	if p, ok := envPort(); ok {
		cfg.WorkerPort = p
	}
	envString(&cfg.TemplatesPath, "ORTHOMATE_TEMPLATES_PATH")

	envString(&cfg.Store.Backend, "ORTHOMATE_STORE_BACKEND")
	envString(&cfg.Store.SQLitePath, "ORTHOMATE_SQLITE_PATH")
	envString(&cfg.Store.SQLiteDriver, "ORTHOMATE_SQLITE_DRIVER")
	envString(&cfg.Store.PostgresDSN, "ORTHOMATE_POSTGRES_DSN")
	envString(&cfg.Store.RedisURL, "ORTHOMATE_REDIS_URL")
	envString(&cfg.Store.RedisPrefix, "ORTHOMATE_REDIS_PREFIX")

	envString(&cfg.Transcription.Provider, "ORTHOMATE_TRANSCRIPTION_PROVIDER")
	envString(&cfg.Transcription.OpenAIBaseURL, "ORTHOMATE_OPENAI_BASE_URL")
	envString(&cfg.Transcription.WhisperModel, "ORTHOMATE_WHISPER_MODEL")
	envString(&cfg.Transcription.GeminiModel, "ORTHOMATE_GEMINI_MODEL")

	// Provider SDK conventions apply only when no key was configured.
	envString(&cfg.Transcription.OpenAIAPIKey, "ORTHOMATE_OPENAI_API_KEY")
	if cfg.Transcription.OpenAIAPIKey == "" {
		envString(&cfg.Transcription.OpenAIAPIKey, "OPENAI_API_KEY")
	}
	envString(&cfg.Transcription.GeminiAPIKey, "ORTHOMATE_GEMINI_API_KEY")
	if cfg.Transcription.GeminiAPIKey == "" {
		envString(&cfg.Transcription.GeminiAPIKey, "GEMINI_API_KEY")
	}
}

func envPort() (int, bool) {
	v := os.Getenv("ORTHOMATE_WORKER_PORT")
	if v == "" {
		return 0, false
	}
	p, err := strconv.Atoi(v)
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return p, true
}

func envString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setString(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}
