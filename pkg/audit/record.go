// Package audit persists one tamper-evident record per admission
// attempt that reached the write stage. Records are append-only JSON
// files, optionally Ed25519-signed and hash-chained, with an optional
// relational mirror.
package audit

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
	"github.com/Mindburn-Labs/cockpit/pkg/explain"
	"github.com/Mindburn-Labs/cockpit/pkg/fingerprint"
	"github.com/Mindburn-Labs/cockpit/pkg/oracle"
)

// Record is the full decision record for one applied change. Field
// order is irrelevant; serialization is canonicalized before signing
// or chaining.
type Record struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Path      string `json:"path"`
	Author    string `json:"author"`
	Intent    string `json:"intent"`

	OldHash        string   `json:"old_hash"`
	NewHash        string   `json:"new_hash"`
	DiffHash       string   `json:"diff_hash"`
	Diff           string   `json:"diff"`
	SymbolsAdded   []string `json:"symbols_added"`
	SymbolsRemoved []string `json:"symbols_removed"`

	Explanation       *explain.Explanation `json:"explanation,omitempty"`
	ExplanationErrors []string             `json:"explanation_errors,omitempty"`

	Allow              bool    `json:"allow"`
	ExplanationQuality float64 `json:"explanation_quality"`
	EpistemicRisk      float64 `json:"epistemic_risk"`
	Valence            float64 `json:"valence"`
	Arousal            float64 `json:"arousal"`
	Novelty            float64 `json:"novelty"`
	SelfAwareness      float64 `json:"self_awareness"`
	WorkingMemoryDim   int     `json:"working_memory_dimension"`
	Rationale          string  `json:"rationale"`
	Phenomenology      string  `json:"phenomenology"`

	SnapshotPath  string `json:"snapshot_path,omitempty"`
	SnapshotKeyID string `json:"snapshot_key_id,omitempty"`
	SnapshotNonce string `json:"snapshot_nonce,omitempty"`
	SnapshotTag   string `json:"snapshot_tag,omitempty"`

	Signature string `json:"signature,omitempty"`
	PubKeyID  string `json:"pubkey_id,omitempty"`
	SigAlg    string `json:"sig_alg,omitempty"`

	PrevHash string `json:"prev_hash,omitempty"`
}

// NewRecord assembles a record from the fingerprint, the verdict and
// the resolved explanation. The id and terminal fields (signature,
// chain) are filled by the store at persist time.
func NewRecord(ts int64, fp *fingerprint.Fingerprint, v *oracle.Verdict, expl *explain.Explanation, explErrors []string) *Record {
	return &Record{
		Timestamp:          ts,
		Path:               fp.Path,
		Author:             fp.Author,
		Intent:             fp.Intent,
		OldHash:            fp.OldHash,
		NewHash:            fp.NewHash,
		DiffHash:           fp.DiffHash,
		Diff:               fp.Diff,
		SymbolsAdded:       fp.SymbolsAdded,
		SymbolsRemoved:     fp.SymbolsRemoved,
		Explanation:        expl,
		ExplanationErrors:  explErrors,
		Allow:              v.Allow,
		ExplanationQuality: v.ExplanationQuality,
		EpistemicRisk:      v.EpistemicRisk,
		Valence:            v.Valence,
		Arousal:            v.Arousal,
		Novelty:            v.Novelty,
		SelfAwareness:      v.SelfAwareness,
		WorkingMemoryDim:   v.WorkingMemoryDim,
		Rationale:          v.Rationale,
		Phenomenology:      v.Phenomenology,
	}
}

// RecordID derives the deterministic id: unix timestamp, sanitized
// base filename, first 12 hex characters of the diff hash. Sorting
// ids lexically sorts records chronologically.
func RecordID(ts int64, path, diffHash string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = sanitize(base)
	short := diffHash
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%d_%s_%s", ts, base, short)
}

func sanitize(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// signingPayload returns the canonical bytes covered by the
// signature: the record with its signature fields cleared.
func (r *Record) signingPayload() ([]byte, error) {
	clone := *r
	clone.Signature = ""
	clone.PubKeyID = ""
	clone.SigAlg = ""
	return crypto.CanonicalMarshal(&clone)
}

// Sign computes and attaches the detached signature.
func (r *Record) Sign(signer crypto.Signer) error {
	payload, err := r.signingPayload()
	if err != nil {
		return fmt.Errorf("canonicalize for signing: %w", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("sign record: %w", err)
	}
	r.Signature = sig
	r.PubKeyID = signer.KeyID()
	r.SigAlg = signer.Algorithm()
	return nil
}

// VerifySignature checks the attached signature against pubKeyHex.
func (r *Record) VerifySignature(pubKeyHex string) (bool, error) {
	if r.Signature == "" {
		return false, fmt.Errorf("record %s has no signature", r.ID)
	}
	payload, err := r.signingPayload()
	if err != nil {
		return false, err
	}
	return crypto.Verify(pubKeyHex, r.Signature, payload)
}
