package collection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a collection on disk:
//
//	root: /data/tweets2013
//	include: ["*.json.gz", "*.json"]
//	format: json
type Manifest struct {
	Root    string   `yaml:"root"`
	Include []string `yaml:"include"`
	Format  Format   `yaml:"format"`
}

// LoadManifest reads a YAML manifest. A relative root is resolved against
// the manifest's own directory; format defaults to json.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if m.Root == "" {
		return nil, errors.New("manifest root is required")
	}
	if !filepath.IsAbs(m.Root) {
		m.Root = filepath.Join(filepath.Dir(path), m.Root)
	}

	if m.Format == "" {
		m.Format = FormatJSON
	}
	f, err := ParseFormat(string(m.Format))
	if err != nil {
		return nil, err
	}
	m.Format = f

	return &m, nil
}

// Segments lists the capture files the manifest selects.
func (m *Manifest) Segments() ([]string, error) {
	return Discover(m.Root, m.Include)
}
