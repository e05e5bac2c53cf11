package app

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides. LANGFUSE_* names match the backend's own SDK
// conventions so existing credentials work unchanged.
const (
	EnvBusyTimeoutMS  = "HOOKTRACE_BUSY_TIMEOUT_MS"
	EnvFlushTimeoutMS = "HOOKTRACE_FLUSH_TIMEOUT_MS"
	EnvEnvironment    = "HOOKTRACE_ENVIRONMENT"
	EnvLogLevel       = "HOOKTRACE_LOG_LEVEL"
	EnvLogFile        = "HOOKTRACE_LOG_FILE"
	EnvPublicKey      = "LANGFUSE_PUBLIC_KEY"
	EnvSecretKey      = "LANGFUSE_SECRET_KEY"
	EnvHost           = "LANGFUSE_HOST"
	EnvBaseURL        = "LANGFUSE_BASEURL"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath        string          `yaml:"db_path"`
	BusyTimeoutMS int             `yaml:"busy_timeout_ms"`
	LogLevel      string          `yaml:"log_level"`
	LogFile       string          `yaml:"log_file"`
	Backend       BackendSettings `yaml:"backend"`
	Policy        PolicySettings  `yaml:"policy"`
	Metrics       MetricsSettings `yaml:"metrics"`
	Capture       CaptureSettings `yaml:"capture"`
}

// BackendSettings configures the observability backend client.
type BackendSettings struct {
	Host           string `yaml:"host" json:"host"`
	PublicKey      string `yaml:"public_key" json:"-"`
	SecretKey      string `yaml:"secret_key" json:"-"`
	Environment    string `yaml:"environment" json:"environment"`
	FlushTimeoutMS int    `yaml:"flush_timeout_ms" json:"flush_timeout_ms"`
	MaxBatchItems  int    `yaml:"max_batch_items" json:"max_batch_items"`
	Compression    string `yaml:"compression" json:"compression,omitempty"`
}

// Enabled reports whether both credentials are present.
func (b BackendSettings) Enabled() bool {
	return b.PublicKey != "" && b.SecretKey != ""
}

// FlushTimeout returns the flush bound as a duration.
func (b BackendSettings) FlushTimeout() time.Duration {
	return time.Duration(b.FlushTimeoutMS) * time.Millisecond
}

// PolicySettings holds the glob deny rules applied by permission hooks.
type PolicySettings struct {
	DenyCommands  []string `yaml:"deny_commands" json:"deny_commands"`
	DenyTools     []string `yaml:"deny_tools" json:"deny_tools"`
	DenyReadPaths []string `yaml:"deny_read_paths" json:"deny_read_paths"`
	DenyMessage   string   `yaml:"deny_message" json:"deny_message"`
}

// MetricsSettings holds the tagging thresholds.
type MetricsSettings struct {
	ToolHeavyCalls        int `yaml:"tool_heavy_calls" json:"tool_heavy_calls"`
	MultiFileFiles        int `yaml:"multi_file_files" json:"multi_file_files"`
	SmallEditLines        int `yaml:"small_edit_lines" json:"small_edit_lines"`
	MediumEditLines       int `yaml:"medium_edit_lines" json:"medium_edit_lines"`
	ShortDurationSeconds  int `yaml:"short_duration_seconds" json:"short_duration_seconds"`
	MediumDurationSeconds int `yaml:"medium_duration_seconds" json:"medium_duration_seconds"`
}

// CaptureSettings controls how much payload text reaches the backend.
type CaptureSettings struct {
	RedactPrompts bool `yaml:"redact_prompts" json:"redact_prompts"`
	PreviewChars  int  `yaml:"preview_chars" json:"preview_chars"`
}

const (
	defaultBusyTimeoutMS   = 5000
	maxBusyTimeoutMS       = 60000
	defaultHost            = "https://cloud.langfuse.com"
	defaultEnvironment     = "default"
	defaultFlushTimeoutMS  = 5000
	maxFlushTimeoutMS      = 30000
	defaultMaxBatchItems   = 100
	maxMaxBatchItems       = 1000
	defaultDenyMessage     = "blocked by hooktrace policy"
	defaultToolHeavyCalls  = 20
	defaultMultiFileFiles  = 3
	defaultSmallEditLines  = 50
	defaultMediumEditLines = 500
	defaultShortDurationS  = 60
	defaultMediumDurationS = 600
	defaultPreviewChars    = 2000
	maxPreviewChars        = 16384
	defaultLogLevel        = "warn"
	compressionGzip        = "gzip"
	compressionNone        = ""
)

// RedactedPlaceholder replaces prompt text when capture.redact_prompts is set.
const RedactedPlaceholder = "[redacted]"

// EffectiveBusyTimeoutMS returns the SQLite busy_timeout.
// HOOKTRACE_BUSY_TIMEOUT_MS wins over config; invalid values fall back to the default.
func EffectiveBusyTimeoutMS() int {
	if v, ok := positiveEnvInt(EnvBusyTimeoutMS); ok {
		return min(v, maxBusyTimeoutMS)
	}
	s, err := LoadSettings()
	if err == nil && s.BusyTimeoutMS > 0 {
		return min(s.BusyTimeoutMS, maxBusyTimeoutMS)
	}
	return defaultBusyTimeoutMS
}

// EffectiveBackendSettings merges config and environment into validated backend settings.
// Environment variables win over config.yaml.
func EffectiveBackendSettings() BackendSettings {
	cfg := BackendSettings{
		Host:           defaultHost,
		Environment:    defaultEnvironment,
		FlushTimeoutMS: defaultFlushTimeoutMS,
		MaxBatchItems:  defaultMaxBatchItems,
	}

	if s, err := LoadSettings(); err == nil {
		b := s.Backend
		if b.Host != "" {
			cfg.Host = b.Host
		}
		cfg.PublicKey = b.PublicKey
		cfg.SecretKey = b.SecretKey
		if b.Environment != "" {
			cfg.Environment = b.Environment
		}
		if b.FlushTimeoutMS > 0 {
			cfg.FlushTimeoutMS = b.FlushTimeoutMS
		}
		if b.MaxBatchItems > 0 {
			cfg.MaxBatchItems = b.MaxBatchItems
		}
		cfg.Compression = b.Compression
	}

	if v := os.Getenv(EnvHost); v != "" {
		cfg.Host = v
	} else if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(EnvPublicKey); v != "" {
		cfg.PublicKey = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv(EnvEnvironment); v != "" {
		cfg.Environment = v
	}
	if v, ok := positiveEnvInt(EnvFlushTimeoutMS); ok {
		cfg.FlushTimeoutMS = v
	}

	cfg.Host = strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if cfg.FlushTimeoutMS > maxFlushTimeoutMS {
		cfg.FlushTimeoutMS = maxFlushTimeoutMS
	}
	if cfg.MaxBatchItems > maxMaxBatchItems {
		cfg.MaxBatchItems = maxMaxBatchItems
	}
	if !strings.EqualFold(cfg.Compression, compressionGzip) {
		cfg.Compression = compressionNone
	} else {
		cfg.Compression = compressionGzip
	}
	return cfg
}

// EffectivePolicySettings returns the deny rules with a default message.
func EffectivePolicySettings() PolicySettings {
	cfg := PolicySettings{DenyMessage: defaultDenyMessage}
	s, err := LoadSettings()
	if err != nil {
		return cfg
	}
	cfg.DenyCommands = nonEmpty(s.Policy.DenyCommands)
	cfg.DenyTools = nonEmpty(s.Policy.DenyTools)
	cfg.DenyReadPaths = nonEmpty(s.Policy.DenyReadPaths)
	if msg := strings.TrimSpace(s.Policy.DenyMessage); msg != "" {
		cfg.DenyMessage = msg
	}
	return cfg
}

// EffectiveMetricsSettings returns tagging thresholds with defaults.
// Medium buckets never fall below their small counterparts.
func EffectiveMetricsSettings() MetricsSettings {
	cfg := MetricsSettings{
		ToolHeavyCalls:        defaultToolHeavyCalls,
		MultiFileFiles:        defaultMultiFileFiles,
		SmallEditLines:        defaultSmallEditLines,
		MediumEditLines:       defaultMediumEditLines,
		ShortDurationSeconds:  defaultShortDurationS,
		MediumDurationSeconds: defaultMediumDurationS,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}
	m := s.Metrics
	if m.ToolHeavyCalls > 0 {
		cfg.ToolHeavyCalls = m.ToolHeavyCalls
	}
	if m.MultiFileFiles > 0 {
		cfg.MultiFileFiles = m.MultiFileFiles
	}
	if m.SmallEditLines > 0 {
		cfg.SmallEditLines = m.SmallEditLines
	}
	if m.MediumEditLines > 0 {
		cfg.MediumEditLines = m.MediumEditLines
	}
	if m.ShortDurationSeconds > 0 {
		cfg.ShortDurationSeconds = m.ShortDurationSeconds
	}
	if m.MediumDurationSeconds > 0 {
		cfg.MediumDurationSeconds = m.MediumDurationSeconds
	}

	if cfg.MediumEditLines < cfg.SmallEditLines {
		cfg.MediumEditLines = cfg.SmallEditLines
	}
	if cfg.MediumDurationSeconds < cfg.ShortDurationSeconds {
		cfg.MediumDurationSeconds = cfg.ShortDurationSeconds
	}
	return cfg
}

// EffectiveCaptureSettings returns payload capture limits.
func EffectiveCaptureSettings() CaptureSettings {
	cfg := CaptureSettings{PreviewChars: defaultPreviewChars}
	s, err := LoadSettings()
	if err != nil {
		return cfg
	}
	cfg.RedactPrompts = s.Capture.RedactPrompts
	if s.Capture.PreviewChars > 0 {
		cfg.PreviewChars = min(s.Capture.PreviewChars, maxPreviewChars)
	}
	return cfg
}

// EffectiveLogSettings returns the log level and optional log file.
// Environment variables win over config.yaml.
func EffectiveLogSettings() (level string, file string) {
	level = defaultLogLevel
	if s, err := LoadSettings(); err == nil {
		if s.LogLevel != "" {
			level = s.LogLevel
		}
		file = s.LogFile
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		level = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		file = v
	}
	return strings.ToLower(strings.TrimSpace(level)), expandHome(file)
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride implement a mutex-protected process-wide override for CLI --db-path.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// configPaths lists config files in lookup order (first found wins):
// 1) ~/.config/hooktrace/config.yaml
// 2) /etc/hooktrace/config.yaml
// 3) ./config.yaml
func configPaths() []string {
	var paths []string
	if dir, err := ConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "config.yaml"))
	}
	return append(paths,
		filepath.Join(string(os.PathSeparator), "etc", "hooktrace", "config.yaml"),
		"config.yaml",
	)
}

// LoadSettings loads configuration once using the configPaths lookup order.
// A missing file is skipped; an unreadable or invalid one is an error.
// Environment variables are applied by the Effective* helpers.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}
		for _, p := range configPaths() {
			s, err := loadSettingsFile(p)
			if err == nil {
				settings = s
				return
			}
			if !errors.Is(err, os.ErrNotExist) {
				settingsErr = err
				return
			}
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: fixed lookup paths
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func positiveEnvInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
