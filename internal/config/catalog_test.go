package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

func TestLoadCatalog_Default(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	require.Len(t, c.Plans, len(models.Tiers()))
	for i, tier := range models.Tiers() {
		assert.Equal(t, tier, c.Plans[i].Tier)
		assert.Equal(t, tier.Limit(), c.Plans[i].Limit)
	}

	free, ok := c.Plan(models.TierFree)
	require.True(t, ok)
	assert.Equal(t, int64(0), free.Price)
	assert.Equal(t, []string{"cat", "dog", "waifu"}, c.Categories())
}

func TestParseCatalog_LimitComesFromTier(t *testing.T) {
	c, err := ParseCatalog([]byte(`
plans:
  - tier: vip
    price: 5
  - tier: FREE
`))
	require.NoError(t, err)
	require.Len(t, c.Plans, 2)
	assert.Equal(t, models.TierFree, c.Plans[0].Tier)
	assert.Equal(t, models.TierVIP, c.Plans[1].Tier)
	assert.Equal(t, int64(5000), c.Plans[1].Limit)
	assert.Equal(t, "IDR", c.Plans[1].Currency)
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no plans", "plans: []"},
		{"unknown tier", "plans:\n  - tier: GOLD\n"},
		{"duplicate tier", "plans:\n  - tier: FREE\n  - tier: free\n"},
		{"empty category", "plans:\n  - tier: FREE\nimages:\n  cat: []\n"},
		{"bad yaml", "plans: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog("/nonexistent/catalog.yaml")
	assert.Error(t, err)
}
