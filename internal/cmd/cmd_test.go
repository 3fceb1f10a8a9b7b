package cmd

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/astro-gateway/internal/catalog"
	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { cfgFile = "" })

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2024-01-01")

	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "astro-gateway 1.2.3\n", out)

	out, err = run(t, "", "version", "--extended")
	require.NoError(t, err)
	assert.Contains(t, out, "Commit: abc123")
	assert.Contains(t, out, "Go: go")
}

func TestImportAndMigrate(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "catalog.db")
	t.Setenv("ASTRO_CATALOG_DSN", dsn)

	out, err := run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")

	bodies := `[
		{"id":"2000001","name":"Ceres","kind":"dwarf","distance_au":2.77,"discovered_at":"1801-01-01T00:00:00Z"},
		{"id":"2000004","name":"Vesta","kind":"asteroid","distance_au":null,"discovered_at":"1807-03-29T00:00:00Z"}
	]`
	out, err = run(t, bodies, "import", "-")
	require.NoError(t, err)
	assert.Equal(t, "imported 2 bodies\n", out)

	store, err := catalog.Open(context.Background(), "", dsn, client.Options{MaxAttempts: 1}, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	req, err := pagination.ParseRequest(url.Values{}, catalog.PaginationOptions())
	require.NoError(t, err)
	page, err := store.Browse(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Ceres", page.Items[0].Name)
	assert.Nil(t, page.Items[1].DistanceAU)
}

func TestImport_FromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASTRO_CATALOG_DSN", filepath.Join(dir, "catalog.db"))

	path := filepath.Join(dir, "bodies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"1","name":"Eros","kind":"asteroid"}]`), 0o600))

	out, err := run(t, "", "import", path)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 bodies\n", out)
}

func TestImport_Errors(t *testing.T) {
	t.Setenv("ASTRO_CATALOG_DSN", filepath.Join(t.TempDir(), "catalog.db"))

	_, err := run(t, "not json", "import", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode bodies")

	_, err = run(t, `[{"name":"nameless"}]`, "import", "-")
	require.Error(t, err)

	_, err = run(t, "", "import")
	require.Error(t, err)
}

func TestInvalidConfigFile(t *testing.T) {
	_, err := run(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
