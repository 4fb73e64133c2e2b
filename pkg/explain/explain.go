// Package explain defines the structured change explanation, its
// validation rules, and the deterministic rule-based synthesizer used
// when the caller supplies no explanation of their own.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/cockpit/pkg/fingerprint"
)

// Mode controls how a failed explanation validation is treated.
type Mode int

const (
	// ModeStrict blocks the change on any validation failure.
	ModeStrict Mode = iota
	// ModeAdvisory records the failures but lets the change proceed.
	ModeAdvisory
	// ModeOff skips validation entirely.
	ModeOff
)

func (m Mode) String() string {
	switch m {
	case ModeAdvisory:
		return "advisory"
	case ModeOff:
		return "off"
	default:
		return "strict"
	}
}

// ParseMode maps the EXPLAIN_POLICY setting to a Mode. Unknown
// values fall back to strict; loose policy should be opt-in.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "advisory":
		return ModeAdvisory
	case "off":
		return ModeOff
	default:
		return ModeStrict
	}
}

// Word minimums per field.
const (
	MinWhyWords     = 15
	MinRiskWords    = 5
	MinBackoutWords = 5
	MinTestsWords   = 1
)

// Provenance records who produced the explanation.
type Provenance struct {
	Mode     string `json:"mode"`
	Provider string `json:"provider"`
}

// Explanation is the structured rationale accompanying a change.
type Explanation struct {
	Why            string     `json:"why"`
	RiskAssessment string     `json:"risk_assessment"`
	BackoutPlan    string     `json:"backout_plan"`
	TestsRun       string     `json:"tests_run"`
	TouchedSymbols []string   `json:"touched_symbols"`
	Provenance     Provenance `json:"provenance"`
}

// ValidationError aggregates all gate failures for one explanation.
type ValidationError struct {
	Codes []string
}

func (e *ValidationError) Error() string {
	return "explanation rejected: " + strings.Join(e.Codes, ", ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// Validate checks an explanation against the word minimums and, when
// the change has a symbol delta, the touched-symbol claims. delta is
// the union of added and removed symbols from the fingerprint. The
// return is nil or a *ValidationError listing every failure code.
func Validate(expl *Explanation, delta []string) error {
	var codes []string

	codes = appendFieldCodes(codes, "why", expl.Why, MinWhyWords)
	codes = appendFieldCodes(codes, "risk_assessment", expl.RiskAssessment, MinRiskWords)
	codes = appendFieldCodes(codes, "backout_plan", expl.BackoutPlan, MinBackoutWords)
	codes = appendFieldCodes(codes, "tests_run", expl.TestsRun, MinTestsWords)

	if len(delta) > 0 {
		if len(expl.TouchedSymbols) == 0 {
			codes = append(codes, "missing:touched_symbols")
		} else if !coversAny(expl.TouchedSymbols, delta) {
			codes = append(codes, "symbols_mismatch")
		}
	}

	if len(codes) == 0 {
		return nil
	}
	return &ValidationError{Codes: codes}
}

func appendFieldCodes(codes []string, field, value string, minWords int) []string {
	if strings.TrimSpace(value) == "" {
		return append(codes, "missing:"+field)
	}
	if wordCount(value) < minWords {
		return append(codes, field+"_too_short")
	}
	return codes
}

// coversAny reports whether the claimed symbols intersect the actual
// delta. A single honest mention is enough; demanding full coverage
// punishes renames that touch dozens of symbols.
func coversAny(claimed, delta []string) bool {
	set := make(map[string]bool, len(delta))
	for _, s := range delta {
		set[s] = true
	}
	for _, c := range claimed {
		if set[c] {
			return true
		}
	}
	return false
}

// Synthesize builds a deterministic explanation from the fingerprint
// alone. It always passes Validate for the same fingerprint, so the
// auto-explain path cannot deadlock the gate. Provenance marks it as
// machine-produced.
func Synthesize(fp *fingerprint.Fingerprint) *Explanation {
	delta := append(append([]string{}, fp.SymbolsAdded...), fp.SymbolsRemoved...)
	sort.Strings(delta)

	why := fmt.Sprintf(
		"Automated change to %s replacing %d lines with %d lines because the requesting author %q declared intent %q and no manual explanation was supplied for this modification.",
		fp.Path, fp.LinesRemoved, fp.LinesAdded, orUnknown(fp.Author), orUnknown(fp.Intent))

	risk := fmt.Sprintf(
		"Size ratio %.2f with %d symbols added and %d removed.",
		fp.SizeRatio(), len(fp.SymbolsAdded), len(fp.SymbolsRemoved))

	backout := fmt.Sprintf(
		"Restore the snapshot taken before writing %s.", fp.Path)

	return &Explanation{
		Why:            why,
		RiskAssessment: risk,
		BackoutPlan:    backout,
		TestsRun:       "none",
		TouchedSymbols: delta,
		Provenance:     Provenance{Mode: "rule", Provider: "none"},
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
