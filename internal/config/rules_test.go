package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/payout"
)

func TestValidateRules_Defaults(t *testing.T) {
	assert.NoError(t, ValidateRules(payout.DefaultRules()))
}

func TestValidateRules_SchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*payout.Rules)
		field  string
	}{
		{"lucky face off the die", func(r *payout.Rules) { r.LuckyFace = 0 }, "lucky_face"},
		{"chance above one", func(r *payout.Rules) { r.JackpotChance = 1.5 }, "jackpot_chance"},
		{"shield amplifies", func(r *payout.Rules) { r.ShieldMultiplier = 2 }, "shield_multiplier"},
		{"free money multiplier", func(r *payout.Rules) { r.BaseMultiplier = 0.5 }, "base_multiplier"},
		{"power-up costs whole stake", func(r *payout.Rules) { r.PowerUpCosts.Boost = 1 }, "boost"},
		{"no tiers", func(r *payout.Rules) { r.CommissionTiers = nil }, "commission_tiers"},
		{"negative minor units", func(r *payout.Rules) { r.MinorUnits = -1 }, "minor_units"},
		{"consolation share", func(r *payout.Rules) { r.Consolation.HouseShare = 1.2 }, "house_share"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := payout.DefaultRules()
			tt.mutate(&r)
			err := ValidateRules(r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateRules_TierOrdering(t *testing.T) {
	r := payout.DefaultRules()
	r.CommissionTiers = []payout.Tier{
		{MaxStake: 0, Rate: 0.5},
		{MaxStake: 100, Rate: 0.1},
	}

	err := ValidateRules(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbounded tier")
}
