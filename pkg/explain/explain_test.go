package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/cockpit/pkg/fingerprint"
)

func validExplanation() *Explanation {
	return &Explanation{
		Why:            "Refactor the scoring loop to remove the quadratic pass over samples because profiling showed it dominates latency under sustained load in production runs.",
		RiskAssessment: "Low risk, behavior preserved by existing tests.",
		BackoutPlan:    "Revert to the snapshot taken before this write.",
		TestsRun:       "unit",
		TouchedSymbols: []string{"scoreLoop"},
	}
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeStrict, ParseMode("strict"))
	assert.Equal(t, ModeAdvisory, ParseMode("Advisory"))
	assert.Equal(t, ModeOff, ParseMode("off"))
	assert.Equal(t, ModeStrict, ParseMode(""))
	assert.Equal(t, ModeStrict, ParseMode("bogus"))
}

func TestValidate(t *testing.T) {
	t.Run("valid explanation passes", func(t *testing.T) {
		assert.NoError(t, Validate(validExplanation(), []string{"scoreLoop"}))
	})

	t.Run("missing fields", func(t *testing.T) {
		err := Validate(&Explanation{}, nil)
		require.Error(t, err)
		verr := err.(*ValidationError)
		assert.Contains(t, verr.Codes, "missing:why")
		assert.Contains(t, verr.Codes, "missing:risk_assessment")
		assert.Contains(t, verr.Codes, "missing:backout_plan")
		assert.Contains(t, verr.Codes, "missing:tests_run")
	})

	t.Run("too short fields", func(t *testing.T) {
		e := validExplanation()
		e.Why = "too short"
		e.RiskAssessment = "low"
		e.BackoutPlan = "revert"
		err := Validate(e, []string{"scoreLoop"})
		require.Error(t, err)
		verr := err.(*ValidationError)
		assert.Contains(t, verr.Codes, "why_too_short")
		assert.Contains(t, verr.Codes, "risk_assessment_too_short")
		assert.Contains(t, verr.Codes, "backout_plan_too_short")
	})

	t.Run("missing touched symbols when delta exists", func(t *testing.T) {
		e := validExplanation()
		e.TouchedSymbols = nil
		err := Validate(e, []string{"scoreLoop"})
		require.Error(t, err)
		assert.Contains(t, err.(*ValidationError).Codes, "missing:touched_symbols")
	})

	t.Run("symbols mismatch", func(t *testing.T) {
		e := validExplanation()
		e.TouchedSymbols = []string{"somethingElse"}
		err := Validate(e, []string{"scoreLoop"})
		require.Error(t, err)
		assert.Contains(t, err.(*ValidationError).Codes, "symbols_mismatch")
	})

	t.Run("partial symbol coverage accepted", func(t *testing.T) {
		e := validExplanation()
		e.TouchedSymbols = []string{"scoreLoop"}
		assert.NoError(t, Validate(e, []string{"scoreLoop", "helperA", "helperB"}))
	})

	t.Run("no delta skips symbol checks", func(t *testing.T) {
		e := validExplanation()
		e.TouchedSymbols = nil
		assert.NoError(t, Validate(e, nil))
	})

	t.Run("error lists every failure", func(t *testing.T) {
		err := Validate(&Explanation{TestsRun: "unit"}, nil)
		require.Error(t, err)
		assert.Len(t, err.(*ValidationError).Codes, 3)
		assert.Contains(t, err.Error(), "missing:why")
	})
}

func TestSynthesize(t *testing.T) {
	fp := fingerprint.Build("src/calc.go", "func Old() {}\n", "func New() {}\n", "agent-1", "rename")

	t.Run("always passes its own gate", func(t *testing.T) {
		e := Synthesize(fp)
		delta := append(append([]string{}, fp.SymbolsAdded...), fp.SymbolsRemoved...)
		assert.NoError(t, Validate(e, delta))
	})

	t.Run("provenance marks rule mode", func(t *testing.T) {
		e := Synthesize(fp)
		assert.Equal(t, "rule", e.Provenance.Mode)
		assert.Equal(t, "none", e.Provenance.Provider)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Synthesize(fp).Why, Synthesize(fp).Why)
	})

	t.Run("unknown author handled", func(t *testing.T) {
		anon := fingerprint.Build("f.go", "", "x\n", "", "")
		e := Synthesize(anon)
		delta := append(append([]string{}, anon.SymbolsAdded...), anon.SymbolsRemoved...)
		assert.NoError(t, Validate(e, delta))
	})
}
