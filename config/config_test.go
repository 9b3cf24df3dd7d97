package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
logging:
  level: debug
  format: json
scope: global
scopes: [frontend, admin]
plugins:
  - key: audit
    type: github.com/acme/sales.InvoiceService
    instance: audit.logger
    sort-order: 10
  - key: cache
    type: github.com/acme/sales.InvoiceService
    method: GetCommentsList
    instance: cache.comments
    sort-order: 20
generator:
  output: gen
  subjects:
    - dir: ./sales
      type: InvoiceService
`

const frontendYAML = `
plugins:
  - key: audit
    type: github.com/acme/sales.InvoiceService
    disabled: true
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func options(dir string) Options {
	return Options{BasePath: dir, FileName: "interception", FileType: "yaml", EnvPrefix: "INTERCEPTION_TEST"}
}

func TestLoad_BaseAndScopeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "interception.yaml", baseYAML)
	writeFile(t, dir, "interception.frontend.yaml", frontendYAML)

	settings, err := Load(options(dir))
	require.NoError(t, err)

	assert.Equal(t, "debug", settings.Logging.Level)
	assert.Equal(t, "json", settings.Logging.Format)
	assert.Equal(t, "interception", settings.Logging.FileName)

	// admin has no file and is skipped.
	require.Len(t, settings.Scopes, 2)
	global := settings.Scopes[0]
	assert.Equal(t, "global", global.Name)
	require.Len(t, global.Descriptors, 2)
	assert.Equal(t, plugin.Descriptor{
		Key:          "audit",
		TargetType:   "github.com/acme/sales.InvoiceService",
		TargetMethod: plugin.AllMethods,
		Instance:     "audit.logger",
		SortOrder:    plugin.Order(10),
	}, global.Descriptors[0])
	assert.Equal(t, "GetCommentsList", global.Descriptors[1].TargetMethod)

	frontend := settings.Scopes[1]
	assert.Equal(t, "frontend", frontend.Name)
	require.Len(t, frontend.Descriptors, 1)
	assert.True(t, frontend.Descriptors[0].Disabled)
	assert.Empty(t, frontend.Descriptors[0].Instance)
	assert.Nil(t, frontend.Descriptors[0].SortOrder)

	assert.Equal(t, 4, settings.Generator.Workers)
	assert.Equal(t, []SubjectSettings{{Dir: "./sales", Type: "InvoiceService"}}, settings.Generator.Subjects)
}

func TestLoad_OptionScopesOverrideFileList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "interception.yaml", baseYAML)
	writeFile(t, dir, "interception.frontend.yaml", frontendYAML)
	writeFile(t, dir, "interception.admin.yaml", `plugins: []`)

	opts := options(dir)
	opts.Scopes = []string{"admin"}
	settings, err := Load(opts)
	require.NoError(t, err)

	require.Len(t, settings.Scopes, 2)
	assert.Equal(t, "admin", settings.Scopes[1].Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "interception.yaml", baseYAML)
	t.Setenv("INTERCEPTION_TEST_LOGGING_LEVEL", "warn")

	settings, err := Load(options(dir))
	require.NoError(t, err)
	assert.Equal(t, "warn", settings.Logging.Level)
}

func TestLoad_MissingBaseFile(t *testing.T) {
	_, err := Load(options(t.TempDir()))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLoad_ValidationErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "interception.yaml", `
logging:
  level: loud
plugins:
  - type: github.com/acme/sales.InvoiceService
    instance: audit.logger
`)

	_, err := Load(options(dir))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	chain, ok := err.(*apperrors.ErrorChain)
	require.True(t, ok)
	assert.Len(t, chain.Errors(), 2)
}

func TestLoader_WatchReloadsScopes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "interception.yaml", baseYAML)

	changed := make(chan *Settings, 4)
	opts := options(dir)
	opts.OnChange = func(s *Settings) {
		select {
		case changed <- s:
		default:
		}
	}

	loader := NewLoader(opts)
	_, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "interception.yaml")}, loader.Files())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, loader.Watch(ctx))

	writeFile(t, dir, "interception.frontend.yaml", frontendYAML)

	select {
	case s := <-changed:
		require.Len(t, s.Scopes, 2)
		assert.Equal(t, "frontend", s.Scopes[1].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after writing a scope file")
	}
}

func TestLoader_FailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "interception.yaml", baseYAML)

	loader := NewLoader(options(dir))
	first, err := loader.Load()
	require.NoError(t, err)

	writeFile(t, dir, "interception.yaml", "plugins: [")
	_, err = loader.Load()
	require.Error(t, err)
	assert.Same(t, first, loader.Current())
}
