package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
	"github.com/Mindburn-Labs/cockpit/pkg/fingerprint"
	"github.com/Mindburn-Labs/cockpit/pkg/oracle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord(t *testing.T) *Record {
	t.Helper()
	fp := fingerprint.Build("src/calc.go", "old\n", "new\n", "tester", "maintenance")
	v := &oracle.Verdict{
		Allow:              true,
		ExplanationQuality: 0.8,
		EpistemicRisk:      0.1,
		Valence:            0.2,
		WorkingMemoryDim:   4,
		Rationale:          "ok",
	}
	return NewRecord(time.Now().Unix(), fp, v, nil, nil)
}

func TestRecordID(t *testing.T) {
	t.Run("format and ordering", func(t *testing.T) {
		id := RecordID(1700000000, "src/a.go", "abcdef0123456789abcdef")
		assert.Equal(t, "1700000000_a.go_abcdef012345", id)
	})

	t.Run("sanitizes awkward names", func(t *testing.T) {
		id := RecordID(1, "dir/we ird$name.go", "aabbccddeeff00")
		assert.Equal(t, "1_we_ird_name.go_aabbccddeeff", id)
	})

	t.Run("short diff hash kept whole", func(t *testing.T) {
		assert.Equal(t, "1_f_ab", RecordID(1, "f", "ab"))
	})
}

func TestStorePersist(t *testing.T) {
	t.Run("persist and load round trip", func(t *testing.T) {
		store, err := NewStore(t.TempDir(), discardLogger())
		require.NoError(t, err)

		rec := sampleRecord(t)
		id, err := store.Persist(rec)
		require.NoError(t, err)
		assert.Contains(t, id, "calc.go")

		got, err := store.Load(id)
		require.NoError(t, err)
		assert.Equal(t, rec.NewHash, got.NewHash)
		assert.Equal(t, rec.Rationale, got.Rationale)
		assert.True(t, got.Allow)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewStore(dir, discardLogger())
		require.NoError(t, err)
		_, err = store.Persist(sampleRecord(t))
		require.NoError(t, err)

		matches, err := filepath.Glob(filepath.Join(dir, ".audit-*"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestStoreSigning(t *testing.T) {
	signer, err := crypto.NewEd25519Signer()
	require.NoError(t, err)

	store, err := NewStore(t.TempDir(), discardLogger(), WithSigner(signer))
	require.NoError(t, err)

	id, err := store.Persist(sampleRecord(t))
	require.NoError(t, err)

	rec, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "ed25519", rec.SigAlg)
	assert.Equal(t, signer.KeyID(), rec.PubKeyID)

	t.Run("signature verifies", func(t *testing.T) {
		ok, err := rec.VerifySignature(signer.PublicKey())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("tamper breaks verification", func(t *testing.T) {
		tampered := *rec
		tampered.Rationale = "rewritten history"
		ok, err := tampered.VerifySignature(signer.PublicKey())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStoreChaining(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, discardLogger(), WithChaining())
	require.NoError(t, err)

	first := sampleRecord(t)
	first.Timestamp = 1000
	_, err = store.Persist(first)
	require.NoError(t, err)

	second := sampleRecord(t)
	second.Timestamp = 2000
	secondID, err := store.Persist(second)
	require.NoError(t, err)

	t.Run("second record references first", func(t *testing.T) {
		rec, err := store.Load(secondID)
		require.NoError(t, err)
		assert.NotEmpty(t, rec.PrevHash)
	})

	t.Run("chain verifies clean", func(t *testing.T) {
		n, err := store.VerifyChain()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("chain survives restart", func(t *testing.T) {
		reopened, err := NewStore(dir, discardLogger(), WithChaining())
		require.NoError(t, err)
		third := sampleRecord(t)
		third.Timestamp = 3000
		_, err = reopened.Persist(third)
		require.NoError(t, err)

		n, err := reopened.VerifyChain()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("tampering breaks the chain", func(t *testing.T) {
		ids, err := store.IDs()
		require.NoError(t, err)
		require.NotEmpty(t, ids)

		victim := filepath.Join(dir, ids[0]+".json")
		raw, err := os.ReadFile(victim)
		require.NoError(t, err)
		var rec Record
		require.NoError(t, json.Unmarshal(raw, &rec))
		rec.Rationale = "edited after the fact"
		edited, err := json.MarshalIndent(&rec, "", "  ")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(victim, edited, 0o640))

		_, err = store.VerifyChain()
		assert.ErrorIs(t, err, ErrChainBroken)
	})
}
