package vectorindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one file to ingest.
type Source struct {
	Path     string         `yaml:"path"`
	Metadata map[string]any `yaml:"metadata"`
}

// Manifest describes a corpus to ingest.
//
//	collection: company-docs
//	chunk_size: 800
//	sources:
//	  - path: docs/products.md
//	    metadata: {category: products}
type Manifest struct {
	Collection string   `yaml:"collection"`
	ChunkSize  int      `yaml:"chunk_size"`
	Sources    []Source `yaml:"sources"`
}

// LoadManifest parses a YAML manifest. Relative source paths resolve
// against the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("vectorindex: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("vectorindex: parse manifest: %w", err)
	}
	if len(m.Sources) == 0 {
		return Manifest{}, errors.New("vectorindex: manifest lists no sources")
	}
	base := filepath.Dir(path)
	for i, s := range m.Sources {
		if strings.TrimSpace(s.Path) == "" {
			return Manifest{}, fmt.Errorf("vectorindex: manifest source %d has no path", i)
		}
		if !filepath.IsAbs(s.Path) {
			m.Sources[i].Path = filepath.Join(base, s.Path)
		}
	}
	return m, nil
}
