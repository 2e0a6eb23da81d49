package ledger

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v2"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Catalog is the declarative list of services the status page tracks.
type Catalog struct {
	Services []CatalogEntry `yaml:"services"`
}

// CatalogEntry describes one service in the catalog file.
type CatalogEntry struct {
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	ProbeURL    string `yaml:"probe_url"`
	Hidden      bool   `yaml:"hidden"`
	SortOrder   int    `yaml:"sort_order"`
}

// LoadCatalog reads a YAML catalog file. Environment variables in the file
// are expanded before parsing.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Services))
	for i, entry := range cat.Services {
		if !slugPattern.MatchString(entry.Slug) {
			return nil, fmt.Errorf("catalog entry %d: invalid slug %q", i, entry.Slug)
		}
		if seen[entry.Slug] {
			return nil, fmt.Errorf("catalog entry %d: duplicate slug %q", i, entry.Slug)
		}
		seen[entry.Slug] = true

		if entry.Name == "" {
			cat.Services[i].Name = entry.Slug
		}
		if entry.Category == "" {
			cat.Services[i].Category = "general"
		}
	}

	return &cat, nil
}

// ValidSlug reports whether s is a well-formed service slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
