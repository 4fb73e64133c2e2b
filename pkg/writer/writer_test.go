package writer

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/cockpit/pkg/audit"
	"github.com/Mindburn-Labs/cockpit/pkg/config"
	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
	"github.com/Mindburn-Labs/cockpit/pkg/explain"
	"github.com/Mindburn-Labs/cockpit/pkg/oracle"
	"github.com/Mindburn-Labs/cockpit/pkg/policy"
)

const goodWhy = "Replace the constant initializer because the previous value caused an overflow bug and this change improves the startup path for the feature."

func goodExplanation(symbols ...string) *explain.Explanation {
	return &explain.Explanation{
		Why:            goodWhy,
		RiskAssessment: "Low risk, single constant changed in place.",
		BackoutPlan:    "Restore the snapshot written before this change.",
		TestsRun:       "unit",
		TouchedSymbols: symbols,
	}
}

type testEnv struct {
	writer *Writer
	store  *audit.Store
	cfg    *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	t.Setenv("COCKPIT_EVOLVE", "")
	t.Setenv("KILL_SWITCH_PATH", filepath.Join(t.TempDir(), "KILL_SWITCH"))

	root := t.TempDir()
	cfg := &config.Config{
		AllowedRoot:        root,
		ChangeLogDir:       filepath.Join(root, "logs", "changes"),
		ExplainPolicy:      "strict",
		RequireExplanation: true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := audit.NewStore(cfg.ChangeLogDir, logger)
	require.NoError(t, err)

	var sealer *crypto.Sealer
	if cfg.SnapshotKeyHex != "" {
		sealer, err = crypto.NewSealer(cfg.SnapshotKeyHex, cfg.SnapshotKeyID)
		require.NoError(t, err)
	}

	orc := oracle.NewWithRand(rand.New(rand.NewSource(3)))
	return &testEnv{
		writer: New(cfg, orc, nil, store, sealer, logger),
		store:  store,
		cfg:    cfg,
	}
}

func TestApplyChangeEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.writer.ApplyChange(context.Background(), Request{
		Path:        "src/fresh.c",
		NewContent:  []byte("int x=1;\n"),
		Author:      "tester",
		Intent:      "seed constant",
		Explanation: goodExplanation(),
	})
	require.NoError(t, err)

	t.Run("report id names the file", func(t *testing.T) {
		assert.Contains(t, res.ReportID, "fresh.c")
	})

	t.Run("hash matches written bytes", func(t *testing.T) {
		assert.Equal(t, crypto.HashString("int x=1;\n"), res.NewHash)
		written, err := os.ReadFile(filepath.Join(env.cfg.AllowedRoot, "src/fresh.c"))
		require.NoError(t, err)
		assert.Equal(t, "int x=1;\n", string(written))
		assert.Equal(t, crypto.HashBytes(written), res.NewHash)
	})

	t.Run("no snapshot for empty old content", func(t *testing.T) {
		assert.Empty(t, res.SnapshotPath)
		entries, _ := os.ReadDir(filepath.Join(env.cfg.ChangeLogDir, "snapshots"))
		assert.Empty(t, entries)
	})

	t.Run("audit record persisted", func(t *testing.T) {
		rec, err := env.store.Load(res.ReportID)
		require.NoError(t, err)
		assert.True(t, rec.Allow)
		assert.Equal(t, res.NewHash, rec.NewHash)
		assert.Equal(t, "tester", rec.Author)
	})
}

func TestKillSwitchFailsFast(t *testing.T) {
	env := newTestEnv(t, nil)
	t.Setenv("COCKPIT_EVOLVE", "off")

	_, err := env.writer.ApplyChange(context.Background(), Request{
		Path:        "src/a.c",
		NewContent:  []byte("x"),
		Author:      "tester",
		Explanation: goodExplanation(),
	})
	pe, ok := AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, KindFatalLiveness, pe.Kind)
	assert.Equal(t, "kill_switch", pe.Step)

	// nothing reached disk
	_, statErr := os.Stat(filepath.Join(env.cfg.AllowedRoot, "src/a.c"))
	assert.True(t, os.IsNotExist(statErr))
	ids, err := env.store.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPathValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	reject := func(t *testing.T, path string) {
		t.Helper()
		_, err := env.writer.ApplyChange(context.Background(), Request{
			Path:        path,
			NewContent:  []byte("x"),
			Author:      "tester",
			Explanation: goodExplanation(),
		})
		pe, ok := AsPipelineError(err)
		require.True(t, ok, "expected pipeline error for %q", path)
		assert.Equal(t, KindValidation, pe.Kind)
		assert.Equal(t, "path_validation", pe.Step)
	}

	t.Run("absolute", func(t *testing.T) { reject(t, "/etc/passwd") })
	t.Run("traversal", func(t *testing.T) { reject(t, "../outside.c") })
	t.Run("embedded traversal", func(t *testing.T) { reject(t, "src/../../outside.c") })
	t.Run("empty", func(t *testing.T) { reject(t, "") })

	t.Run("symlinked component", func(t *testing.T) {
		outside := t.TempDir()
		require.NoError(t, os.Symlink(outside, filepath.Join(env.cfg.AllowedRoot, "link")))
		reject(t, "link/file.c")
	})
}

func TestSnapshots(t *testing.T) {
	t.Run("plaintext snapshot of prior content", func(t *testing.T) {
		env := newTestEnv(t, nil)
		seed := filepath.Join(env.cfg.AllowedRoot, "src/lib.go")
		require.NoError(t, os.MkdirAll(filepath.Dir(seed), 0o750))
		require.NoError(t, os.WriteFile(seed, []byte("func Old() {}\n"), 0o640))

		res, err := env.writer.ApplyChange(context.Background(), Request{
			Path:        "src/lib.go",
			NewContent:  []byte("func New() {}\n"),
			Author:      "tester",
			Intent:      "rename",
			Explanation: goodExplanation("New"),
		})
		require.NoError(t, err)
		require.NotEmpty(t, res.SnapshotPath)
		assert.True(t, strings.HasSuffix(res.SnapshotPath, ".bak"))

		saved, err := os.ReadFile(res.SnapshotPath)
		require.NoError(t, err)
		assert.Equal(t, "func Old() {}\n", string(saved))
	})

	t.Run("sealed snapshot round trips", func(t *testing.T) {
		keyHex := strings.Repeat("2a", 32)
		env := newTestEnv(t, func(c *config.Config) {
			c.SnapshotKeyHex = keyHex
			c.SnapshotKeyID = "test-key"
		})
		seed := filepath.Join(env.cfg.AllowedRoot, "src/lib.go")
		require.NoError(t, os.MkdirAll(filepath.Dir(seed), 0o750))
		require.NoError(t, os.WriteFile(seed, []byte("func Old() {}\n"), 0o640))

		res, err := env.writer.ApplyChange(context.Background(), Request{
			Path:        "src/lib.go",
			NewContent:  []byte("func New() {}\n"),
			Author:      "tester",
			Intent:      "rename",
			Explanation: goodExplanation("New"),
		})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(res.SnapshotPath, ".enc"))

		rec, err := env.store.Load(res.ReportID)
		require.NoError(t, err)
		assert.Equal(t, "test-key", rec.SnapshotKeyID)
		require.NotEmpty(t, rec.SnapshotNonce)
		require.NotEmpty(t, rec.SnapshotTag)

		sealer, err := crypto.NewSealer(keyHex, "test-key")
		require.NoError(t, err)
		ciphertext, err := os.ReadFile(res.SnapshotPath)
		require.NoError(t, err)
		plain, err := sealer.Open(ciphertext, rec.SnapshotNonce, rec.SnapshotTag)
		require.NoError(t, err)
		assert.Equal(t, "func Old() {}\n", string(plain))
	})
}

func TestExplanationHandling(t *testing.T) {
	t.Run("strict mode blocks short why", func(t *testing.T) {
		env := newTestEnv(t, nil)
		expl := goodExplanation()
		expl.Why = "short why text here only ten words not quite enough" // 10 words

		_, err := env.writer.ApplyChange(context.Background(), Request{
			Path: "src/a.c", NewContent: []byte("int x=1;\n"), Author: "tester", Explanation: expl,
		})
		pe, ok := AsPipelineError(err)
		require.True(t, ok)
		assert.Equal(t, KindValidation, pe.Kind)
		assert.Contains(t, pe.Err.Error(), "why_too_short")
	})

	t.Run("missing explanation rejected when required", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := env.writer.ApplyChange(context.Background(), Request{
			Path: "src/a.c", NewContent: []byte("int x=1;\n"), Author: "tester",
		})
		pe, ok := AsPipelineError(err)
		require.True(t, ok)
		// the oracle blocks first: no explanation text scores zero quality
		assert.Equal(t, KindPolicyBlocked, pe.Kind)
	})

	t.Run("advisory mode records codes and proceeds", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.ExplainPolicy = "advisory" })
		expl := goodExplanation()
		expl.BackoutPlan = "revert" // too short

		res, err := env.writer.ApplyChange(context.Background(), Request{
			Path: "src/a.c", NewContent: []byte("int x=1;\n"), Author: "tester", Explanation: expl,
		})
		require.NoError(t, err)
		rec, err := env.store.Load(res.ReportID)
		require.NoError(t, err)
		assert.Contains(t, rec.ExplanationErrors, "backout_plan_too_short")
	})

	t.Run("auto explain cannot bypass the oracle", func(t *testing.T) {
		// Synthesis only covers the explanation gate; the oracle still
		// scores the caller's own (absent) rationale.
		env := newTestEnv(t, func(c *config.Config) { c.AutoExplain = true })
		_, err := env.writer.ApplyChange(context.Background(), Request{
			Path: "src/a.c", NewContent: []byte("int x=1;\n"), Author: "tester",
		})
		pe, ok := AsPipelineError(err)
		require.True(t, ok)
		assert.Equal(t, KindPolicyBlocked, pe.Kind)
		assert.Equal(t, "oracle", pe.Step)
	})
}

func TestOracleBlockCarriesVerdict(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.writer.ApplyChange(context.Background(), Request{
		Path: "src/a.c", NewContent: []byte("int x=1;\n"), Author: "tester",
	})
	pe, ok := AsPipelineError(err)
	require.True(t, ok)
	require.NotNil(t, pe.Verdict)
	assert.False(t, pe.Verdict.Allow)
	assert.Equal(t, 0.0, pe.Verdict.ExplanationQuality)
	assert.NotEmpty(t, pe.Verdict.Rationale)
}

func TestPolicyGateBlock(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writer.gate = policy.DenyList{Files: map[string]string{"src/a.c": "frozen path"}}

	_, err := env.writer.ApplyChange(context.Background(), Request{
		Path: "src/a.c", NewContent: []byte("int x=1;\n"), Author: "tester",
		Explanation: goodExplanation(),
	})
	pe, ok := AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, "policy_gate", pe.Step)
	assert.Contains(t, pe.Err.Error(), "frozen path")
}

func TestConcurrentWritesSerialize(t *testing.T) {
	env := newTestEnv(t, nil)

	contents := []string{"int x=1;\n", "int x=2;\n", "int x=3;\n", "int x=4;\n"}
	var wg sync.WaitGroup
	errs := make([]error, len(contents))
	for i, c := range contents {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			_, errs[i] = env.writer.ApplyChange(context.Background(), Request{
				Path:        "src/hot.c",
				NewContent:  []byte(c),
				Author:      "tester",
				Intent:      "contended update",
				Explanation: goodExplanation(),
			})
		}(i, c)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "writer %d", i)
	}

	final, err := os.ReadFile(filepath.Join(env.cfg.AllowedRoot, "src/hot.c"))
	require.NoError(t, err)
	assert.Contains(t, contents, string(final))

	ids, err := env.store.IDs()
	require.NoError(t, err)
	assert.Len(t, ids, len(contents))
}

func TestDetectOrphans(t *testing.T) {
	env := newTestEnv(t, nil)

	// an applied change with a snapshot is not an orphan
	seed := filepath.Join(env.cfg.AllowedRoot, "src/lib.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(seed), 0o750))
	require.NoError(t, os.WriteFile(seed, []byte("func Old() {}\n"), 0o640))
	_, err := env.writer.ApplyChange(context.Background(), Request{
		Path: "src/lib.go", NewContent: []byte("func New() {}\n"),
		Author: "tester", Intent: "rename", Explanation: goodExplanation("New"),
	})
	require.NoError(t, err)

	// a stray snapshot with no record is
	stray := filepath.Join(env.cfg.ChangeLogDir, "snapshots", "ghost.c.999.bak")
	require.NoError(t, os.WriteFile(stray, []byte("lost"), 0o640))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stray, old, old))

	orphans, err := DetectOrphans(env.cfg.ChangeLogDir, env.store, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, stray, orphans[0].SnapshotPath)
}
