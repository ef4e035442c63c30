// Package topics serves discussion topics and prompts by difficulty level.
package topics

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"versusmatch/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Entry is one topic with its prompts.
type Entry struct {
	Topic   string   `yaml:"topic"`
	Prompts []string `yaml:"prompts"`
}

// Catalog groups topics by difficulty level.
type Catalog struct {
	Levels map[domain.DifficultyLevel][]Entry `yaml:"levels"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file. An empty path yields the built-in catalog.
func LoadCatalog(path string) (Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read topic catalog: %w", err)
	}
	catalog, err := ParseCatalog(raw)
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse topic catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

// Validate rejects unknown levels and topics without prompts.
func (c Catalog) Validate() error {
	if len(c.Levels) == 0 {
		return errors.New("topic catalog has no levels")
	}
	for level, entries := range c.Levels {
		if !level.Valid() {
			return fmt.Errorf("topic catalog: unknown level %q", level)
		}
		for i, entry := range entries {
			if strings.TrimSpace(entry.Topic) == "" {
				return fmt.Errorf("topic catalog: %s[%d] has no topic", level, i)
			}
			if len(entry.Prompts) == 0 {
				return fmt.Errorf("topic catalog: %s[%d] has no prompts", level, i)
			}
		}
	}
	return nil
}
