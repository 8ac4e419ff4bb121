package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"github.com/toastate/toastblog/internal/helpers"
)

// Manifest maps an entry name to its output files by kind ("js", "css"),
// relative to the bundle output directory.
type Manifest map[string]map[string]string

// ManifestPath is where the bundler of app writes its manifest.
func ManifestPath(outputDir, app string) string {
	return filepath.Join(outputDir, app+"-webpack-assets.json")
}

// LoadManifest reads the manifest at p. A missing file returns a nil manifest.
func LoadManifest(fs afero.Fs, p string) (Manifest, error) {
	data, err := afero.ReadFile(fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode asset manifest %s: %w", p, err)
	}
	return m, nil
}

// Save writes m to p as JSON.
func (m Manifest) Save(fs afero.Fs, p string) error {
	data, err := helpers.MarshalJson(m)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, p, data, 0o644)
}

// Add records file as the kind output of entry.
func (m Manifest) Add(entry, kind, file string) {
	if m[entry] == nil {
		m[entry] = map[string]string{}
	}
	m[entry][kind] = file
}

// Lookup returns the output file of entry for kind.
func (m Manifest) Lookup(entry, kind string) (string, bool) {
	if m == nil {
		return "", false
	}
	f, ok := m[entry][kind]
	return f, ok
}

// Entries lists the entry names in order.
func (m Manifest) Entries() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
