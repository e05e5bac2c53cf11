package app

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func resetSettingsStateForTest() {
	settingsOnce = sync.Once{}
	settings = Settings{}
	settingsErr = nil
	SetDBPathOverride("")
}

func TestGetDBPath_PrioritizesCLIOverride(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HOOKTRACE_DB_PATH", filepath.Join(home, "env", "hooktrace.db"))

	overridePath := filepath.Join(home, "cli", "hooktrace.db")
	SetDBPathOverride(overridePath)

	resolved, err := GetDBPath()
	require.NoError(t, err)
	require.Equal(t, overridePath, resolved)
}

func TestGetDBPath_UsesEnvWithoutOverride(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	envPath := filepath.Join(home, "env", "hooktrace.db")
	t.Setenv("HOOKTRACE_DB_PATH", envPath)

	resolved, err := GetDBPath()
	require.NoError(t, err)
	require.Equal(t, envPath, resolved)
}

func TestResolveDBPathDetailed_ReportsSourceForEnv(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	envPath := filepath.Join(home, "env", "hooktrace.db")
	t.Setenv("HOOKTRACE_DB_PATH", envPath)

	resolved, source, err := ResolveDBPathDetailed()
	require.NoError(t, err)
	require.Equal(t, envPath, resolved)
	require.Equal(t, "env(HOOKTRACE_DB_PATH)", source)
}

func TestGetDBPath_UsesConfigAndExpandsHome(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HOOKTRACE_DB_PATH", "")

	cfgPath := filepath.Join(home, ".config", "hooktrace", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(cfgPath), 0o755))
	require.NoError(t, os.WriteFile(cfgPath, []byte("db_path: ~/traces/store.db\n"), 0o600))

	resolved, err := GetDBPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "traces", "store.db"), resolved)
	require.DirExists(t, filepath.Join(home, "traces"))
}

func TestGetDBPath_DefaultsUnderConfigDir(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HOOKTRACE_DB_PATH", "")

	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	resolved, source, err := ResolveDBPathDetailed()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "hooktrace", "hooktrace.db"), resolved)
	require.Contains(t, source, "default")
}

func TestEnsureDBDir_CreatesParentDirectories(t *testing.T) {
	base := t.TempDir()
	dbPath := filepath.Join(base, "nested", "deep", "hooktrace.db")

	resolved, err := EnsureDBDir(dbPath)
	require.NoError(t, err)
	require.Equal(t, dbPath, resolved)
	require.DirExists(t, filepath.Dir(dbPath))
}
