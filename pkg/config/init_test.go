package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("ASSETS_PORT", "")
	t.Setenv("THEME", "")
	t.Setenv("STAGE", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HotPort)
	assert.Equal(t, "pure", cfg.Theme)
	assert.Equal(t, "pure", cfg.Site.Theme)
	assert.Equal(t, "pure", cfg.HTMLOptions.Theme)
	assert.Equal(t, 1000, cfg.HTMLOptions.TruncateSummaryAt)
	assert.NotZero(t, cfg.HTMLOptions.Build)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("THEME", "")
	dir := t.TempDir()
	p := filepath.Join(dir, "toastblog.yaml")
	require.NoError(t, os.WriteFile(p, []byte("theme: dark\nsite:\n  title: My Blog\nhtml_options:\n  paginate: 3\n"), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, "My Blog", cfg.Site.Title)
	assert.Equal(t, 3, cfg.HTMLOptions.Paginate)
	// untouched defaults survive the decode
	assert.Equal(t, "<!--more-->", cfg.HTMLOptions.SummaryMarker)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "toastblog.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"theme":"dark","hot_port":9000}`), 0o644))

	t.Setenv("ASSETS_PORT", "3001")
	t.Setenv("ASSETS_URL", "http://localhost")
	t.Setenv("THEME", "light")
	t.Setenv("STAGE", "production")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.HotPort)
	assert.Equal(t, "http://localhost", cfg.DevAssetsURL)
	assert.Equal(t, "light", cfg.Theme)
	assert.Equal(t, "production", cfg.Stage)
}

func TestLoad_InvalidPortKeepsDefault(t *testing.T) {
	t.Setenv("ASSETS_PORT", "abc")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HotPort)
}

func TestLoad_DotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("THEME=fromfile\n"), 0o644))
	p := filepath.Join(dir, "toastblog.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"root_directory":"`+filepath.ToSlash(dir)+`"}`), 0o644))

	t.Setenv("THEME", "fromenv")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Theme)
}

func TestLoad_MalformedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "toastblog.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"theme":`), 0o644))

	_, err := Load(p)
	require.Error(t, err)
}

func TestClone_DoesNotAlias(t *testing.T) {
	cfg := DefaultConfiguration()
	cp := cfg.Clone()
	cp.HTMLOptions.BuildExtensions[0] = ".txt"
	cp.IgnoreFiles[0] = "x"

	assert.Equal(t, ".html", cfg.HTMLOptions.BuildExtensions[0])
	assert.Equal(t, ".DS_Store", cfg.IgnoreFiles[0])
}

func TestThemeTemplateDirs(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.RootDir = "/site"
	cfg.Theme = "dark"

	assert.Equal(t, []string{
		filepath.Join("/site", "client/themes", "dark"),
		filepath.Join("/site", "client/themes", "default"),
	}, cfg.ThemeTemplateDirs())
}
