package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hooktrace/internal/app"
	"github.com/dotcommander/hooktrace/internal/commands/hookcmd"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/output"
	"github.com/dotcommander/hooktrace/internal/publisher"
	"github.com/dotcommander/hooktrace/internal/store"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store, backend and hook installation status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefaultStatus(cmd.Context(), check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Run database connectivity check (SELECT 1)")
	return withEffects(cmd, effectReadsStore)
}

type dbInfo struct {
	Path          string `json:"path"`
	Source        string `json:"source"`
	OK            bool   `json:"ok"`
	SizeBytes     *int64 `json:"size_bytes,omitempty"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
	LatestSchema  int64  `json:"latest_schema,omitempty"`
	Error         string `json:"error,omitempty"`
}

// backendInfo never carries the keys themselves.
type backendInfo struct {
	Enabled        bool   `json:"enabled"`
	Endpoint       string `json:"endpoint"`
	Environment    string `json:"environment"`
	PublicKeySet   bool   `json:"public_key_set"`
	SecretKeySet   bool   `json:"secret_key_set"`
	FlushTimeoutMS int    `json:"flush_timeout_ms"`
	MaxBatchItems  int    `json:"max_batch_items"`
	Compression    string `json:"compression,omitempty"`
}

type hooksInfo struct {
	Path      string          `json:"path"`
	Installed bool            `json:"installed"`
	Events    map[string]bool `json:"events"`
	Error     string          `json:"error,omitempty"`
}

type statusResponse struct {
	HandlerVersion string              `json:"handler_version"`
	HookSchema     string              `json:"hook_schema"`
	DB             dbInfo              `json:"db"`
	Backend        backendInfo         `json:"backend"`
	Policy         app.PolicySettings  `json:"policy"`
	Hooks          []hooksInfo         `json:"hooks"`
	Counts         *store.StatusCounts `json:"counts,omitempty"`
	QueryOK        *bool               `json:"query_ok,omitempty"`
	QueryError     string              `json:"query_error,omitempty"`
	Hint           string              `json:"hint,omitempty"`
}

func runDefaultStatus(ctx context.Context, check bool) error {
	dbPath, dbSource, err := app.ResolveDBPathDetailed()
	if err != nil {
		return cmdErr(err)
	}

	b := app.EffectiveBackendSettings()
	result := statusResponse{
		HandlerVersion: models.HandlerVersion,
		HookSchema:     models.HookSchemaVersion,
		DB:             dbInfo{Path: dbPath, Source: dbSource},
		Backend: backendInfo{
			Enabled:        b.Enabled(),
			Endpoint:       publisher.ConfigFromSettings(b).Endpoint(),
			Environment:    b.Environment,
			PublicKeySet:   b.PublicKey != "",
			SecretKeySet:   b.SecretKey != "",
			FlushTimeoutMS: b.FlushTimeoutMS,
			MaxBatchItems:  b.MaxBatchItems,
			Compression:    b.Compression,
		},
		Policy: app.EffectivePolicySettings(),
		Hooks:  checkCursorHooks(),
	}
	if !result.Backend.Enabled {
		result.Hint = "Set LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY (or backend keys in config.yaml) to publish traces."
	}

	db, err := store.InitDBWithPath(ctx, dbPath)
	if err != nil {
		result.DB.Error = err.Error()
		if check {
			qOK := false
			result.QueryOK = &qOK
			result.QueryError = "db not available"
			result.Hint = "If this is running in a sandboxed environment, set db_path to a writable location or use --db-path."
		}
		return output.PrintSuccess(result)
	}
	result.DB.OK = true
	defer func() { _ = db.Close() }()

	if stat, err := os.Stat(dbPath); err == nil {
		size := stat.Size()
		result.DB.SizeBytes = &size
	}
	if current, latest, err := store.SchemaVersion(db); err == nil {
		result.DB.SchemaVersion = current
		result.DB.LatestSchema = latest
	}
	if counts, err := store.GetStatusCounts(ctx, db); err == nil {
		result.Counts = counts
	}

	if check {
		var one int
		qErr := db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
		qOK := qErr == nil
		result.QueryOK = &qOK
		if !qOK {
			result.QueryError = qErr.Error()
		}
	}

	return output.PrintSuccess(result)
}

// checkCursorHooks reports hooktrace registration in the user and project
// hooks.json files.
func checkCursorHooks() []hooksInfo {
	paths := []string{hookcmd.CursorHooksPath(false), hookcmd.CursorHooksPath(true)}
	out := make([]hooksInfo, 0, len(paths))
	for _, path := range paths {
		info := hooksInfo{Path: path}
		events, err := hookcmd.InstalledEvents(path)
		if err != nil {
			info.Error = err.Error()
		}
		info.Events = events
		for _, ok := range events {
			if ok {
				info.Installed = true
				break
			}
		}
		out = append(out, info)
	}
	return out
}
