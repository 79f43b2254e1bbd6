package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var validate = validator.New()

// Load reads a catalog YAML file. An empty path selects the bundled
// default catalog.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("reading catalog file: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}

	seenTeams := make(map[string]struct{}, len(c.Teams))
	for _, t := range c.Teams {
		if _, dup := seenTeams[t.ID]; dup {
			return nil, fmt.Errorf("duplicate team id %q", t.ID)
		}
		seenTeams[t.ID] = struct{}{}
	}
	seenPlayers := make(map[string]struct{}, len(c.Players))
	for _, p := range c.Players {
		if _, dup := seenPlayers[p.ID]; dup {
			return nil, fmt.Errorf("duplicate player id %q", p.ID)
		}
		seenPlayers[p.ID] = struct{}{}
	}
	return &c, nil
}
