package payout

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/wager"
)

// Tier is one step of the commission schedule. The rate applies to the
// payout of any stake up to and including MaxStake; MaxStake 0 means
// unbounded and must be the last tier.
type Tier struct {
	MaxStake float64 `yaml:"max_stake" json:"max_stake"`
	Rate     float64 `yaml:"rate" json:"rate"`
}

// PowerUpCosts are fractions of the stake charged on top of it.
type PowerUpCosts struct {
	Reroll float64 `yaml:"reroll" json:"reroll"`
	Shield float64 `yaml:"shield" json:"shield"`
	Boost  float64 `yaml:"boost" json:"boost"`
}

// Consolation softens a PvC loss: when the bot wins with a face other than
// Face, the house keeps only HouseShare of the stake.
type Consolation struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Face       int     `yaml:"face" json:"face"`
	HouseShare float64 `yaml:"house_share" json:"house_share"`
}

// Rules holds every tunable constant of the payout math.
type Rules struct {
	MinorUnits             int32        `yaml:"minor_units" json:"minor_units"`
	BaseMultiplier         float64      `yaml:"base_multiplier" json:"base_multiplier"`
	LuckyFace              int          `yaml:"lucky_face" json:"lucky_face"`
	LuckyMultiplier        float64      `yaml:"lucky_multiplier" json:"lucky_multiplier"`
	BoostMultiplier        float64      `yaml:"boost_multiplier" json:"boost_multiplier"`
	ShieldMultiplier       float64      `yaml:"shield_multiplier" json:"shield_multiplier"`
	JackpotMultiplier      float64      `yaml:"jackpot_multiplier" json:"jackpot_multiplier"`
	JackpotChance          float64      `yaml:"jackpot_chance" json:"jackpot_chance"`
	ContinuationMultiplier float64      `yaml:"continuation_multiplier" json:"continuation_multiplier"`
	CommissionTiers        []Tier       `yaml:"commission_tiers" json:"commission_tiers"`
	PowerUpCosts           PowerUpCosts `yaml:"power_up_costs" json:"power_up_costs"`
	Consolation            Consolation  `yaml:"consolation" json:"consolation"`
}

// DefaultRules returns the production constants.
func DefaultRules() Rules {
	return Rules{
		MinorUnits:             0,
		BaseMultiplier:         2,
		LuckyFace:              6,
		LuckyMultiplier:        1.5,
		BoostMultiplier:        1.25,
		ShieldMultiplier:       0.5,
		JackpotMultiplier:      10,
		JackpotChance:          0.01,
		ContinuationMultiplier: 2,
		CommissionTiers: []Tier{
			{MaxStake: 500, Rate: 0.10},
			{MaxStake: 2000, Rate: 0.30},
			{MaxStake: 0, Rate: 0.50},
		},
		PowerUpCosts: PowerUpCosts{
			Reroll: 0.10,
			Shield: 0.15,
			Boost:  0.20,
		},
		Consolation: Consolation{
			Enabled:    true,
			Face:       6,
			HouseShare: 0.6,
		},
	}
}

// Validate checks internal consistency that a schema cannot express.
func (r Rules) Validate() error {
	if len(r.CommissionTiers) == 0 {
		return fmt.Errorf("commission tiers: at least one tier required")
	}
	for i, t := range r.CommissionTiers {
		last := i == len(r.CommissionTiers)-1
		if t.MaxStake == 0 && !last {
			return fmt.Errorf("commission tiers: unbounded tier %d must be last", i)
		}
		if i > 0 && t.MaxStake != 0 && t.MaxStake <= r.CommissionTiers[i-1].MaxStake {
			return fmt.Errorf("commission tiers: max_stake must increase (tier %d)", i)
		}
		if t.Rate < 0 || t.Rate >= 1 {
			return fmt.Errorf("commission tiers: rate %v out of [0,1) (tier %d)", t.Rate, i)
		}
	}
	if r.CommissionTiers[len(r.CommissionTiers)-1].MaxStake != 0 {
		return fmt.Errorf("commission tiers: last tier must be unbounded (max_stake 0)")
	}
	return nil
}

// CommissionRate returns the tiered rate for a stake.
func (r Rules) CommissionRate(stake decimal.Decimal) decimal.Decimal {
	tiers := make([]Tier, len(r.CommissionTiers))
	copy(tiers, r.CommissionTiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].MaxStake == 0 {
			return false
		}
		if tiers[j].MaxStake == 0 {
			return true
		}
		return tiers[i].MaxStake < tiers[j].MaxStake
	})
	for _, t := range tiers {
		if t.MaxStake == 0 || stake.LessThanOrEqual(decimal.NewFromFloat(t.MaxStake)) {
			return decimal.NewFromFloat(t.Rate)
		}
	}
	return decimal.Zero
}

// Commission is the house take on a payout for the given stake, floored.
func (r Rules) Commission(stake, payout decimal.Decimal) decimal.Decimal {
	return r.floor(payout.Mul(r.CommissionRate(stake)))
}

// Cost is the price of a power-up for a stake, floored.
func (r Rules) Cost(stake decimal.Decimal, p wager.PowerUp) decimal.Decimal {
	var frac float64
	switch p {
	case wager.PowerUpReroll:
		frac = r.PowerUpCosts.Reroll
	case wager.PowerUpShield:
		frac = r.PowerUpCosts.Shield
	case wager.PowerUpBoost:
		frac = r.PowerUpCosts.Boost
	default:
		return decimal.Zero
	}
	return r.floor(stake.Mul(decimal.NewFromFloat(frac)))
}

// Required is what a participant must hold to enter: stake plus power-up cost.
func (r Rules) Required(stake decimal.Decimal, p wager.PowerUp) decimal.Decimal {
	return stake.Add(r.Cost(stake, p))
}

// floor drops fractional minor units.
func (r Rules) floor(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(r.MinorUnits)
}

func mul(d decimal.Decimal, f float64) decimal.Decimal {
	return d.Mul(decimal.NewFromFloat(f))
}
