package views

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifestYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.yaml")
	doc := `
views:
  - name: service_costs
    sql: SELECT service, SUM(cost) AS total FROM CUR GROUP BY service
  - name: top_service
    sql: SELECT service FROM service_costs ORDER BY total DESC LIMIT 1
    depends_on: [service_costs]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Views, 2)
	assert.Equal(t, "service_costs", m.Views[0].Name)
	assert.Equal(t, []string{"service_costs"}, m.Views[1].DependsOn)
}

func TestLoadManifestYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no views", "views: []", "no views"},
		{"unnamed view", "views:\n  - sql: SELECT 1", "without a name"},
		{"empty sql", "views:\n  - name: v\n    sql: \"\"", "has no SQL"},
		{"duplicate", "views:\n  - name: v\n    sql: SELECT 1\n  - name: v\n    sql: SELECT 2", "defined twice"},
		{"bad yaml", "views: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "views.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))
			_, err := LoadManifest(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadManifestDirectory(t *testing.T) {
	root := t.TempDir()
	write := func(rel, text string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
	write("level_1_independent/service_costs.sql", "SELECT service, SUM(cost) AS total FROM CUR GROUP BY service\n")
	write("level_1_independent/regions.sql", "SELECT DISTINCT region FROM CUR\n")
	write("level_2_dependent/top_service.sql", "SELECT service FROM service_costs ORDER BY total DESC LIMIT 1\n")
	write("level_1_independent/notes.txt", "ignored")
	write("README.md", "ignored")

	m, err := LoadManifest(root)
	require.NoError(t, err)
	require.Len(t, m.Views, 3)

	byName := map[string]View{}
	for _, v := range m.Views {
		byName[v.Name] = v
	}
	assert.Empty(t, byName["service_costs"].DependsOn)
	assert.Empty(t, byName["regions"].DependsOn)
	assert.ElementsMatch(t, []string{"service_costs", "regions"}, byName["top_service"].DependsOn)
	assert.Equal(t, "SELECT DISTINCT region FROM CUR", byName["regions"].SQL)
}

func TestLoadManifestDirectoryBareNumbers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "1", "base.sql"), []byte("SELECT 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2", "derived.sql"), []byte("SELECT 2"), 0o644))

	m, err := LoadManifest(root)
	require.NoError(t, err)
	require.Len(t, m.Views, 2)
	assert.Equal(t, "base", m.Views[0].Name)
	assert.Equal(t, []string{"base"}, m.Views[1].DependsOn)
}

func TestLoadManifestDirectoryEmpty(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no views")
}
