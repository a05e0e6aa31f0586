package config

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/dicewager/internal/payout"
)

//go:embed rules.cue
var rulesSchema string

// ValidateRules checks r against the CUE schema (ranges and shape), then
// against payout.Rules.Validate (tier ordering).
func ValidateRules(r payout.Rules) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(rulesSchema, cue.Filename("rules.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("rules schema: %w", err)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	v := ctx.CompileBytes(data, cue.Filename("rules"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Rules")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &RulesError{Details: errors.Details(err, nil)}
	}

	if err := r.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// RulesError reports a schema violation. Details lists every violation,
// one per line.
type RulesError struct {
	Details string
}

func (e *RulesError) Error() string {
	return "rules: " + e.Details
}
