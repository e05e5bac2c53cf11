// Package hookcmd installs and removes hooktrace entries in Cursor's
// hooks.json. It is kept apart from the commands package so hook lifecycle
// management can evolve independently of the hook runtime.
package hookcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hooktrace/internal/app"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/output"
	"github.com/dotcommander/hooktrace/internal/store"
)

const (
	commandFallback = "hooktrace"
	hooksFileName   = "hooks.json"
	hooksVersion    = 1
)

// CursorHooksPath returns ~/.cursor/hooks.json, or ./.cursor/hooks.json when
// projectScoped.
func CursorHooksPath(projectScoped bool) string {
	if projectScoped {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		return filepath.Join(wd, ".cursor", hooksFileName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cursor", hooksFileName)
}

// HookEventNames lists every host hook name hooktrace registers for, sorted.
func HookEventNames() []string {
	var events []string
	for _, h := range models.AllHooks {
		events = append(events, models.HostAliases(h)...)
	}
	sort.Strings(events)
	return events
}

func executable() string {
	exe, err := os.Executable()
	if err != nil || strings.TrimSpace(exe) == "" {
		return commandFallback
	}
	return exe
}

func buildHookCommand(exe string) string {
	if exe == commandFallback {
		return commandFallback + " hook"
	}
	return fmt.Sprintf("%q hook", exe)
}

// IsHooktraceCommand reports whether command invokes "hooktrace hook".
func IsHooktraceCommand(command string) bool {
	parts := strings.Fields(strings.TrimSpace(command))
	if len(parts) != 2 {
		return false
	}
	execToken := strings.Trim(parts[0], "\"'")
	return filepath.Base(execToken) == commandFallback && parts[1] == "hook"
}

// HasHooktraceHook reports whether an event's entry list already invokes us.
func HasHooktraceHook(entries []any) bool {
	for _, entry := range entries {
		if isHooktraceEntry(entry) {
			return true
		}
	}
	return false
}

func isHooktraceEntry(entry any) bool {
	m, ok := entry.(map[string]any)
	if !ok {
		return false
	}
	cmd, _ := m["command"].(string)
	return IsHooktraceCommand(cmd)
}

func readHooksFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeHooksFile(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hooks: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// InstalledEvents reports, per host hook name, whether path registers
// hooktrace. A missing file yields all false and no error.
func InstalledEvents(path string) (map[string]bool, error) {
	events := make(map[string]bool)
	for _, name := range HookEventNames() {
		events[name] = false
	}
	doc, err := readHooksFile(path)
	if err != nil {
		return events, err
	}
	hooksObj, _ := doc["hooks"].(map[string]any)
	for name, raw := range hooksObj {
		entries, _ := raw.([]any)
		if HasHooktraceHook(entries) {
			events[name] = true
		}
	}
	return events, nil
}

func hookEntryEqual(a, b map[string]any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

type installOutcome int

const (
	hookInstalled installOutcome = iota
	hookUpdated
	hookSkipped
)

// upsertHookEntry replaces any hooktrace entry with newEntry and keeps the
// user's other entries in order.
func upsertHookEntry(existing []any, newEntry map[string]any) ([]any, installOutcome) {
	kept := make([]any, 0, len(existing)+1)
	had, matching := false, false

	for _, entry := range existing {
		if !isHooktraceEntry(entry) {
			kept = append(kept, entry)
			continue
		}
		had = true
		if m, _ := entry.(map[string]any); hookEntryEqual(m, newEntry) {
			matching = true
		}
	}

	kept = append(kept, newEntry)
	switch {
	case matching:
		return kept, hookSkipped
	case had:
		return kept, hookUpdated
	default:
		return kept, hookInstalled
	}
}

func removeHookEntries(existing []any) []any {
	kept := make([]any, 0, len(existing))
	for _, entry := range existing {
		if !isHooktraceEntry(entry) {
			kept = append(kept, entry)
		}
	}
	return kept
}

// installResult is the JSON reported by hook install.
type installResult struct {
	Path      string   `json:"path"`
	Installed []string `json:"installed"`
	Updated   []string `json:"updated,omitempty"`
	Skipped   []string `json:"skipped"`
	Message   string   `json:"message"`
}

// install registers command for every host hook in path.
func install(path, command string) (installResult, error) {
	doc, err := readHooksFile(path)
	if err != nil {
		return installResult{}, err
	}
	if _, ok := doc["version"]; !ok {
		doc["version"] = hooksVersion
	}
	hooksObj, _ := doc["hooks"].(map[string]any)
	if hooksObj == nil {
		hooksObj = map[string]any{}
	}

	res := installResult{Path: path, Installed: []string{}, Skipped: []string{}}
	for _, name := range HookEventNames() {
		existing, _ := hooksObj[name].([]any)
		entries, outcome := upsertHookEntry(existing, map[string]any{"command": command})
		hooksObj[name] = entries

		switch outcome {
		case hookInstalled:
			res.Installed = append(res.Installed, name)
		case hookUpdated:
			res.Updated = append(res.Updated, name)
		case hookSkipped:
			res.Skipped = append(res.Skipped, name)
		}
	}

	doc["hooks"] = hooksObj
	if err := writeHooksFile(path, doc); err != nil {
		return installResult{}, err
	}

	switch {
	case len(res.Installed) > 0:
		res.Message = fmt.Sprintf("Cursor hooks installed (%d events).", len(res.Installed))
	case len(res.Updated) > 0:
		res.Message = fmt.Sprintf("Cursor hooks updated (%d events).", len(res.Updated))
	default:
		res.Message = "Cursor hooks already installed."
	}
	res.Message += " Run 'hooktrace status' to verify."
	return res, nil
}

// uninstall removes hooktrace entries from path and returns the events that
// had one.
func uninstall(path string) ([]string, error) {
	doc, err := readHooksFile(path)
	if err != nil {
		return nil, err
	}
	hooksObj, _ := doc["hooks"].(map[string]any)
	removed := []string{}
	if hooksObj == nil {
		return removed, nil
	}

	for _, name := range HookEventNames() {
		entries, ok := hooksObj[name].([]any)
		if !ok {
			continue
		}
		kept := removeHookEntries(entries)
		if len(kept) != len(entries) {
			removed = append(removed, name)
		}
		if len(kept) == 0 {
			delete(hooksObj, name)
		} else {
			hooksObj[name] = kept
		}
	}
	if len(removed) == 0 {
		return removed, nil
	}

	doc["hooks"] = hooksObj
	return removed, writeHooksFile(path, doc)
}

// prepareStoreBestEffort migrates the correlation store up front so the first
// hook invocation does not pay for it.
func prepareStoreBestEffort(ctx context.Context) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		slog.Default().Warn("hook install: resolve db path failed", "error", err)
		return
	}
	db, err := store.InitDBWithPath(ctx, dbPath)
	if err != nil {
		slog.Default().Warn("hook install: prepare store failed", "db_path", dbPath, "error", err)
		return
	}
	_ = db.Close()
}

// NewInstallCmd creates the hook install command.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Register hooktrace for every Cursor hook",
		Long:  "Adds a '<hooktrace> hook' entry for each Cursor hook in hooks.json, keeping other entries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectScoped, _ := cmd.Flags().GetBool("project")
			res, err := install(CursorHooksPath(projectScoped), buildHookCommand(executable()))
			if err != nil {
				return err
			}
			prepareStoreBestEffort(cmd.Context())
			return output.PrintSuccess(res)
		},
	}
	cmd.Flags().Bool("project", false, "Install into ./.cursor/hooks.json")
	return cmd
}

// NewUninstallCmd creates the hook uninstall command.
func NewUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove hooktrace entries from Cursor hooks.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectScoped, _ := cmd.Flags().GetBool("project")
			path := CursorHooksPath(projectScoped)
			removed, err := uninstall(path)
			if err != nil {
				return err
			}
			type resp struct {
				Path    string   `json:"path"`
				Removed []string `json:"removed"`
			}
			return output.PrintSuccess(resp{Path: path, Removed: removed})
		},
	}
	cmd.Flags().Bool("project", false, "Uninstall from ./.cursor/hooks.json")
	return cmd
}
