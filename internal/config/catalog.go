package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

//go:embed catalog_default.yaml
var defaultCatalog []byte

// Catalog holds the purchasable plans and the random image categories.
type Catalog struct {
	Plans  []models.Plan       `yaml:"plans"`
	Images map[string][]string `yaml:"images"`
}

// LoadCatalog parses the YAML catalog at path, or the built-in catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file %q: %w", path, err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog. Limits always come from the tier table.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Plans) == 0 {
		return nil, errors.New("catalog defines no plans")
	}
	seen := make(map[models.Tier]bool, len(c.Plans))
	for i := range c.Plans {
		p := &c.Plans[i]
		tier, ok := models.ParseTier(string(p.Tier))
		if !ok {
			return nil, fmt.Errorf("catalog plan %d: unknown tier %q", i, p.Tier)
		}
		if seen[tier] {
			return nil, fmt.Errorf("catalog plan %d: duplicate tier %s", i, tier)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("catalog plan %s: negative price", tier)
		}
		seen[tier] = true
		p.Tier = tier
		p.Limit = tier.Limit()
		if p.Name == "" {
			p.Name = string(tier)
		}
		if p.Currency == "" {
			p.Currency = "IDR"
		}
	}
	sort.SliceStable(c.Plans, func(i, j int) bool {
		return c.Plans[i].Tier.Rank() < c.Plans[j].Tier.Rank()
	})
	for category, urls := range c.Images {
		if len(urls) == 0 {
			return nil, fmt.Errorf("image category %q has no urls", category)
		}
	}
	return &c, nil
}

// Plan returns the catalog entry for tier.
func (c *Catalog) Plan(tier models.Tier) (models.Plan, bool) {
	for _, p := range c.Plans {
		if p.Tier == tier {
			return p, true
		}
	}
	return models.Plan{}, false
}

// Categories returns the image category names in alphabetical order.
func (c *Catalog) Categories() []string {
	out := make([]string, 0, len(c.Images))
	for name := range c.Images {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
