package models

import "strings"

// Tier is a named service level controlling the daily call limit and price.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierCheap   Tier = "CHEAP"
	TierPremium Tier = "PREMIUM"
	TierVIP     Tier = "VIP"
	TierVVIP    Tier = "VVIP"
	TierSupreme Tier = "SUPREME"
)

// DefaultTier is assigned to every account on signup.
const DefaultTier = TierFree

// tierLimits is the single source of truth for daily call limits.
// Keys already issued keep the limit they were issued with.
var tierLimits = map[Tier]int64{
	TierFree:    20,
	TierCheap:   1000,
	TierPremium: 2500,
	TierVIP:     5000,
	TierVVIP:    10000,
	TierSupreme: 20000,
}

// legacyTiers maps the previous generation of tier names onto the canonical set.
var legacyTiers = map[string]Tier{
	"STARTER":      TierCheap,
	"PROFESSIONAL": TierPremium,
	"BUSINESS":     TierVIP,
	"ENTERPRISE":   TierVVIP,
}

var orderedTiers = []Tier{TierFree, TierCheap, TierPremium, TierVIP, TierVVIP, TierSupreme}

// Tiers returns the canonical tiers ordered from lowest to highest.
func Tiers() []Tier {
	out := make([]Tier, len(orderedTiers))
	copy(out, orderedTiers)
	return out
}

// Valid reports whether t is one of the canonical tiers.
func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}

// Limit returns the daily call limit of the tier, or 0 for unknown tiers.
func (t Tier) Limit() int64 {
	return tierLimits[t]
}

// Rank orders tiers; unknown tiers rank below FREE.
func (t Tier) Rank() int {
	for i, candidate := range orderedTiers {
		if candidate == t {
			return i
		}
	}
	return -1
}

// ParseTier accepts canonical tier names case-insensitively.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// MigrateTierName maps a stored tier name to its canonical tier.
// migrated is false when the name is already canonical; ok is false when the
// name is neither canonical nor a known legacy name.
func MigrateTierName(name string) (tier Tier, migrated bool, ok bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if t := Tier(upper); t.Valid() {
		return t, false, true
	}
	if t, found := legacyTiers[upper]; found {
		return t, true, true
	}
	return "", false, false
}

// Plan is a purchasable entry of the pricing catalog.
type Plan struct {
	Tier         Tier     `json:"tier" yaml:"tier"`
	Name         string   `json:"name" yaml:"name"`
	Price        int64    `json:"price" yaml:"price"`
	Currency     string   `json:"currency" yaml:"currency"`
	DurationDays int      `json:"durationDays" yaml:"duration_days"`
	Limit        int64    `json:"limit" yaml:"-"`
	Features     []string `json:"features,omitempty" yaml:"features"`
}

// MigrationSummary aggregates the outcome of a bulk tier migration.
type MigrationSummary struct {
	Total    int             `json:"total"`
	Migrated int             `json:"migrated"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Items    []MigrationItem `json:"items,omitempty"`
}

// MigrationItem records what happened to a single account during migration.
type MigrationItem struct {
	AccountID string `json:"accountId"`
	From      string `json:"from"`
	To        Tier   `json:"to,omitempty"`
	Error     string `json:"error,omitempty"`
}
