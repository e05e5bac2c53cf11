package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/hooktrace/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "hooktrace"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# hooktrace configuration
# Run: hooktrace --help

# Optional: override the SQLite correlation store location.
# Can also be set via HOOKTRACE_DB_PATH or --db-path.
# db_path: ~/.config/hooktrace/hooktrace.db

# busy_timeout_ms: 5000
# log_level: warn
# log_file: ~/.config/hooktrace/hooktrace.log

backend:
  # Langfuse-compatible ingestion endpoint. Keys may also come from
  # LANGFUSE_PUBLIC_KEY / LANGFUSE_SECRET_KEY / LANGFUSE_HOST.
  # host: https://cloud.langfuse.com
  # public_key: pk-lf-...
  # secret_key: sk-lf-...
  # environment: default
  # flush_timeout_ms: 5000
  # max_batch_items: 100
  # compression: gzip

policy:
  # Glob patterns; a match denies the action.
  # deny_commands: ["rm -rf *"]
  # deny_tools: []
  # deny_read_paths: ["*.pem", "*/.env"]
  # deny_message: "blocked by hooktrace policy"

metrics:
  # tool_heavy_calls: 20
  # multi_file_files: 3
  # small_edit_lines: 50
  # medium_edit_lines: 500
  # short_duration_seconds: 60
  # medium_duration_seconds: 600

capture:
  # redact_prompts: false
  # preview_chars: 2000
`
