package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posterintel/poster-research/internal/model"
)

const (
	testTierDecay = 0.15
	testMinMatch  = 0.3
)

func TestTierWeight(t *testing.T) {
	assert.InDelta(t, 1.00, tierWeight(1, testTierDecay), 0.0001)
	assert.InDelta(t, 0.85, tierWeight(2, testTierDecay), 0.0001)
	assert.InDelta(t, 0.70, tierWeight(3, testTierDecay), 0.0001)
	assert.InDelta(t, 0.25, tierWeight(6, testTierDecay), 0.0001)

	// Out-of-range tiers clamp to the bottom tier.
	assert.InDelta(t, 0.25, tierWeight(0, testTierDecay), 0.0001)
	assert.InDelta(t, 0.25, tierWeight(7, testTierDecay), 0.0001)
	assert.InDelta(t, 0.25, tierWeight(-3, testTierDecay), 0.0001)
}

func TestConsensus_NoQualifyingValues(t *testing.T) {
	results := []model.ParsedResult{
		// Value present but match confidence at the floor (exclusive).
		{Artist: "Alphonse Mucha", MatchConfidence: 0.3, SellerTier: 1},
		// Confident match but no value.
		{Artist: "", MatchConfidence: 0.9, SellerTier: 1},
		// Whitespace-only value.
		{Artist: "   ", MatchConfidence: 0.9, SellerTier: 1},
	}

	c := Consensus(results, testTierDecay, testMinMatch)
	assert.Nil(t, c.Artist)
	assert.Nil(t, c.Date)
	assert.Nil(t, c.Technique)
	assert.True(t, c.Empty())
}

func TestConsensus_FloorIsExclusive(t *testing.T) {
	justAbove := []model.ParsedResult{
		{Artist: "Alphonse Mucha", MatchConfidence: 0.31, SellerTier: 1},
	}
	c := Consensus(justAbove, testTierDecay, testMinMatch)
	require.NotNil(t, c.Artist)
	assert.Equal(t, "Alphonse Mucha", c.Artist.Value)
}

func TestConsensus_TrustedMinorityBeatsUnknownMajority(t *testing.T) {
	// A tier-1 gallery at 0.9 match (weight 0.9) outvotes a bottom-tier
	// source at a perfect match (weight 0.25).
	results := []model.ParsedResult{
		{
			Artist:          "Alphonse Mucha",
			MatchConfidence: 0.9,
			SellerTier:      1,
			SellerName:      "Swann Galleries",
			KnownSeller:     true,
		},
		{
			Artist:          "Leonetto Cappiello",
			MatchConfidence: 1.0,
			SellerTier:      6,
			Domain:          "random-shop.example.com",
		},
	}

	c := Consensus(results, testTierDecay, testMinMatch)
	require.NotNil(t, c.Artist)
	assert.Equal(t, "Alphonse Mucha", c.Artist.Value)
	assert.Equal(t, []string{"Swann Galleries"}, c.Artist.Sources)
	assert.Equal(t, 1, c.Artist.AgreementCount)
	// 0.9 / (0.9 + 0.25)
	assert.InDelta(t, 0.7826, c.Artist.Confidence, 0.001)
}

func TestConsensus_NormalizationGroupsVariants(t *testing.T) {
	results := []model.ParsedResult{
		{Artist: "Alphonse  Mucha", MatchConfidence: 0.8, SellerTier: 2, SellerName: "Posteritati"},
		{Artist: "alphonse mucha", MatchConfidence: 0.8, SellerTier: 3, Domain: "gallery.example.com"},
		{Artist: "Cappiello", MatchConfidence: 0.8, SellerTier: 2, Domain: "other.example.com"},
	}

	c := Consensus(results, testTierDecay, testMinMatch)
	require.NotNil(t, c.Artist)

	// First-seen raw spelling is reported, normalized key alongside.
	assert.Equal(t, "Alphonse  Mucha", c.Artist.Value)
	assert.Equal(t, "alphonse mucha", c.Artist.NormalizedValue)
	assert.Equal(t, 2, c.Artist.AgreementCount)
	assert.Equal(t, []string{"Posteritati", "gallery.example.com"}, c.Artist.Sources)
}

func TestConsensus_ConfidenceCapped(t *testing.T) {
	// Unanimous agreement would be 1.0; the cap holds it at 0.95.
	results := []model.ParsedResult{
		{Artist: "Alphonse Mucha", MatchConfidence: 0.9, SellerTier: 1, SellerName: "Swann Galleries"},
		{Artist: "Alphonse Mucha", MatchConfidence: 0.8, SellerTier: 2, SellerName: "Posteritati"},
	}

	c := Consensus(results, testTierDecay, testMinMatch)
	require.NotNil(t, c.Artist)
	assert.InDelta(t, 0.95, c.Artist.Confidence, 0.0001)
}

func TestConsensus_TieGoesToFirstSeen(t *testing.T) {
	results := []model.ParsedResult{
		{Date: "1896", MatchConfidence: 0.8, SellerTier: 3, Domain: "a.example.com"},
		{Date: "1897", MatchConfidence: 0.8, SellerTier: 3, Domain: "b.example.com"},
	}

	c := Consensus(results, testTierDecay, testMinMatch)
	require.NotNil(t, c.Date)
	assert.Equal(t, "1896", c.Date.Value)
}

func TestConsensus_SourcesDeduped(t *testing.T) {
	results := []model.ParsedResult{
		{Technique: "stone lithograph", MatchConfidence: 0.8, SellerTier: 1, SellerName: "Swann Galleries"},
		{Technique: "Stone Lithograph", MatchConfidence: 0.7, SellerTier: 1, SellerName: "Swann Galleries"},
	}

	c := Consensus(results, testTierDecay, testMinMatch)
	require.NotNil(t, c.Technique)
	assert.Equal(t, []string{"Swann Galleries"}, c.Technique.Sources)
	assert.Equal(t, 2, c.Technique.AgreementCount)
}

func TestConsensus_AllFieldsIndependent(t *testing.T) {
	results := []model.ParsedResult{
		{Artist: "Alphonse Mucha", Date: "1896", MatchConfidence: 0.9, SellerTier: 1, SellerName: "Swann Galleries"},
		{Technique: "lithograph", MatchConfidence: 0.7, SellerTier: 4, Domain: "shop.example.com"},
	}

	c := Consensus(results, testTierDecay, testMinMatch)
	require.NotNil(t, c.Artist)
	require.NotNil(t, c.Date)
	require.NotNil(t, c.Technique)
	assert.Equal(t, "1896", c.Date.Value)
	assert.Equal(t, "lithograph", c.Technique.Value)

	// The technique field's only voter is its sole source.
	assert.InDelta(t, 0.95, c.Technique.Confidence, 0.0001)
}

func TestConsensus_EmptyInput(t *testing.T) {
	c := Consensus(nil, testTierDecay, testMinMatch)
	assert.True(t, c.Empty())
}
