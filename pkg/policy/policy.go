// Package policy defines the pluggable admission gate consulted after
// the oracle. The default gate allows everything; deployments replace
// it to impose organizational rules.
package policy

// Plan is the minimal summary of a change a gate decides on.
type Plan struct {
	Intent    string `json:"intent"`
	File      string `json:"file"`
	DeltaHash string `json:"delta_hash"`
}

// Decision is a gate's verdict. Reason must be set when Block is.
type Decision struct {
	Block  bool   `json:"block"`
	Reason string `json:"reason,omitempty"`
}

// Gate decides whether a planned change may proceed. Implementations
// must be safe for concurrent use.
type Gate interface {
	Decide(plan Plan) Decision
}

// AllowAll is the default gate: every plan proceeds.
type AllowAll struct{}

func (AllowAll) Decide(Plan) Decision { return Decision{} }

// DenyList blocks plans touching any listed file. Useful as a simple
// deployment guard and in tests.
type DenyList struct {
	Files map[string]string // path -> reason
}

func (d DenyList) Decide(plan Plan) Decision {
	if reason, ok := d.Files[plan.File]; ok {
		return Decision{Block: true, Reason: reason}
	}
	return Decision{}
}
