package views

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/curlens/curlens/pkg/export"
)

// View is one materialized view definition.
type View struct {
	Name      string   `yaml:"name"`
	SQL       string   `yaml:"sql"`
	DependsOn []string `yaml:"depends_on"`
}

// Manifest is the set of views to materialize.
type Manifest struct {
	Views []View `yaml:"views"`
}

// levelDirRe matches level-numbered subdirectory names, either bare numbers
// or level_<n>_<label> style.
var levelDirRe = regexp.MustCompile(`^(?:level_)?(\d+)`)

// LoadManifest reads a manifest from path. A directory is interpreted via
// the level-numbered layout; anything else is parsed as a YAML document.
func LoadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open view manifest: %w", err)
	}
	if info.IsDir() {
		return loadDirManifest(path)
	}
	return loadYAMLManifest(path)
}

func loadYAMLManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read view manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse view manifest: %w", err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

// loadDirManifest reads the directory convention: level-numbered subdirs
// containing one .sql file per view. A view's dependencies are all views at
// lower-numbered levels (plus the base table, implicitly).
func loadDirManifest(root string) (*Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read view manifest dir: %w", err)
	}

	type levelDir struct {
		num  int
		path string
	}
	var dirs []levelDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := levelDirRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		dirs = append(dirs, levelDir{num: num, path: filepath.Join(root, e.Name())})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].num < dirs[j].num })

	var manifest Manifest
	var lowerViews []string
	for _, dir := range dirs {
		files, err := os.ReadDir(dir.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read level dir %s: %w", dir.path, err)
		}
		var levelNames []string
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), export.SQLExt) {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir.path, f.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read view SQL %s: %w", f.Name(), err)
			}
			name := strings.TrimSuffix(f.Name(), export.SQLExt)
			manifest.Views = append(manifest.Views, View{
				Name:      name,
				SQL:       strings.TrimSpace(string(data)),
				DependsOn: append([]string(nil), lowerViews...),
			})
			levelNames = append(levelNames, name)
		}
		lowerViews = append(lowerViews, levelNames...)
	}

	if err := manifest.check(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// check validates structural manifest rules before any execution.
func (m *Manifest) check() error {
	if len(m.Views) == 0 {
		return fmt.Errorf("view manifest defines no views")
	}
	seen := make(map[string]bool, len(m.Views))
	for _, v := range m.Views {
		if v.Name == "" {
			return fmt.Errorf("view manifest contains a view without a name")
		}
		if strings.TrimSpace(v.SQL) == "" {
			return fmt.Errorf("view %q has no SQL", v.Name)
		}
		if seen[v.Name] {
			return fmt.Errorf("view %q is defined twice", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}
