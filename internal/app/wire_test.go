package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirinyoku/roster-go/internal/config"
	"github.com/kirinyoku/roster-go/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAliases struct {
	aliases []signature.Alias
	err     error
}

func (s staticAliases) LocaleAliases(ctx context.Context) ([]signature.Alias, error) {
	return s.aliases, s.err
}

func writeAliasFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aliases.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTableLayersSources(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeAliasFile(t, `[{"canonical":"Thun","alternates":["Thoune"]}]`)
	catalog := staticAliases{aliases: []signature.Alias{{Canonical: "Sion", Alternates: []string{"Sitten"}}}}

	table := loadTable(context.Background(), config.SignatureConfig{LocaleTablePath: path}, catalog, logger)

	for _, name := range []string{"Thoune", "Sitten", "Zürich"} {
		_, ok := table.Resolve(name)
		assert.True(t, ok, name)
	}
}

func TestLoadTableSkipsBrokenSources(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("missing file", func(t *testing.T) {
		cfg := config.SignatureConfig{LocaleTablePath: filepath.Join(t.TempDir(), "missing.json")}
		table := loadTable(context.Background(), cfg, staticAliases{}, logger)

		_, ok := table.Resolve("Genf")
		assert.True(t, ok)
		assert.Equal(t, signature.DefaultTable().Len(), table.Len())
	})

	t.Run("malformed file", func(t *testing.T) {
		cfg := config.SignatureConfig{LocaleTablePath: writeAliasFile(t, `{"canonical":`)}
		table := loadTable(context.Background(), cfg, staticAliases{}, logger)
		assert.Equal(t, signature.DefaultTable().Len(), table.Len())
	})

	t.Run("catalog unavailable", func(t *testing.T) {
		cfg := config.SignatureConfig{LocaleTablePath: writeAliasFile(t, `[{"canonical":"Thun","alternates":["Thoune"]}]`)}
		table := loadTable(context.Background(), cfg, staticAliases{err: errors.New("down")}, logger)

		_, ok := table.Resolve("Thoune")
		assert.True(t, ok)
	})
}

func TestComponentsCloseWithoutConnections(t *testing.T) {
	assert.NotPanics(t, func() { (&Components{}).Close() })
}
