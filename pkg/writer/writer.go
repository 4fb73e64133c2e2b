// Package writer implements the admission pipeline: the fixed
// sequence of checks every proposed self-modification passes before
// it reaches disk, and the durable write plus audit persist that
// follow an allow.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Mindburn-Labs/cockpit/pkg/audit"
	"github.com/Mindburn-Labs/cockpit/pkg/config"
	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
	"github.com/Mindburn-Labs/cockpit/pkg/explain"
	"github.com/Mindburn-Labs/cockpit/pkg/fingerprint"
	"github.com/Mindburn-Labs/cockpit/pkg/kill"
	"github.com/Mindburn-Labs/cockpit/pkg/oracle"
	"github.com/Mindburn-Labs/cockpit/pkg/policy"
)

// Request is one proposed change to one file under the allowed root.
type Request struct {
	Path        string
	NewContent  []byte
	Author      string
	Intent      string
	Explanation *explain.Explanation
}

// Result reports a successfully applied change.
type Result struct {
	ReportID     string
	SnapshotPath string
	NewHash      string
}

// Writer owns the pipeline and its concurrency discipline: an
// in-process mutex held for the whole call, and a cross-process
// advisory lock held for the snapshot+write+persist span only.
type Writer struct {
	mu sync.Mutex

	root   string
	logDir string

	oracle *oracle.Oracle
	gate   policy.Gate
	store  *audit.Store
	sealer *crypto.Sealer
	logger *slog.Logger

	explainMode        explain.Mode
	requireExplanation bool
	autoExplain        bool
}

// New assembles a writer from configuration and its collaborators.
// sealer may be nil (plaintext snapshots); gate may be nil (allow
// all).
func New(cfg *config.Config, orc *oracle.Oracle, gate policy.Gate, store *audit.Store, sealer *crypto.Sealer, logger *slog.Logger) *Writer {
	if gate == nil {
		gate = policy.AllowAll{}
	}
	return &Writer{
		root:               cfg.AllowedRoot,
		logDir:             cfg.ChangeLogDir,
		oracle:             orc,
		gate:               gate,
		store:              store,
		sealer:             sealer,
		logger:             logger,
		explainMode:        explain.ParseMode(cfg.ExplainPolicy),
		requireExplanation: cfg.RequireExplanation,
		autoExplain:        cfg.AutoExplain,
	}
}

// ApplyChange runs the full admission pipeline. On any gate failure
// (steps before the snapshot) nothing is written anywhere. Once the
// snapshot step begins the operation runs to completion or to a
// surfaced I/O error; cancellation is checked only before that point.
func (w *Writer) ApplyChange(ctx context.Context, req Request) (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 1. Liveness. Fail-closed, cannot be bypassed.
	if err := kill.RequireAlive(); err != nil {
		return nil, stepErr("kill_switch", KindFatalLiveness, err)
	}

	// 2. Path validation.
	target, err := validatePath(w.root, req.Path)
	if err != nil {
		return nil, stepErr("path_validation", KindValidation, err)
	}

	// 3. Fingerprint over the current content.
	oldContent, err := readTarget(target)
	if err != nil {
		return nil, stepErr("read_target", KindIOFailure, err)
	}
	fp := fingerprint.Build(req.Path, string(oldContent), string(req.NewContent), req.Author, req.Intent)

	// 4. Oracle evaluation. A block here is a hard stop; the verdict
	// travels with the error. Oracle state is never rolled back.
	verdict := w.oracle.Evaluate(fp, callerRationale(req.Explanation))
	if !verdict.Allow {
		pe := stepErr("oracle", KindPolicyBlocked, errors.New(verdict.Rationale))
		pe.Verdict = verdict
		w.logger.Info("change blocked by oracle",
			"path", req.Path, "risk", verdict.EpistemicRisk, "quality", verdict.ExplanationQuality)
		return nil, pe
	}

	// 5. Policy gate.
	if d := w.gate.Decide(policy.Plan{Intent: req.Intent, File: req.Path, DeltaHash: fp.DiffHash}); d.Block {
		pe := stepErr("policy_gate", KindPolicyBlocked, errors.New(d.Reason))
		pe.Verdict = verdict
		return nil, pe
	}

	// 6+7. Explanation resolution and gate.
	expl, explErrors, err := w.resolveExplanation(req.Explanation, fp)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, stepErr("context", KindValidation, err)
	}

	// The record is fully constructed before the file write is
	// attempted, so a crash between write and persist is a detectable
	// gap rather than a silent one.
	rec := audit.NewRecord(time.Now().Unix(), fp, verdict, expl, explErrors)

	// 8-10 run under the cross-process lock.
	unlock, err := w.acquireFileLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 8. Snapshot, only when there is prior content to preserve.
	var snapshotPath string
	if len(oldContent) > 0 {
		meta, err := writeSnapshot(w.logDir, target, oldContent, w.sealer)
		if err != nil {
			return nil, stepErr("snapshot", snapshotErrKind(err), err)
		}
		snapshotPath = meta.Path
		rec.SnapshotPath = meta.Path
		rec.SnapshotKeyID = meta.KeyID
		rec.SnapshotNonce = meta.NonceHex
		rec.SnapshotTag = meta.TagHex
	}

	// 9. Durable write: temp file, fsync, rename, dir fsync.
	if err := atomicWrite(target, req.NewContent); err != nil {
		return nil, stepErr("durable_write", KindIOFailure, err)
	}

	// 10. Audit persist (+ optional mirror inside the store).
	id, err := w.store.Persist(rec)
	if err != nil {
		return nil, stepErr("audit_persist", KindIOFailure, err)
	}

	w.logger.Info("change applied",
		"record_id", id, "path", req.Path, "new_hash", fp.NewHash,
		"wm_dimension", verdict.WorkingMemoryDim)

	return &Result{ReportID: id, SnapshotPath: snapshotPath, NewHash: fp.NewHash}, nil
}

// resolveExplanation applies the REQUIRE_EXPLANATION / AUTO_EXPLAIN /
// EXPLAIN_POLICY triad. Returns the explanation that goes into the
// audit record and, in advisory mode, any validation error codes.
func (w *Writer) resolveExplanation(supplied *explain.Explanation, fp *fingerprint.Fingerprint) (*explain.Explanation, []string, error) {
	expl := supplied
	if expl == nil && w.autoExplain {
		expl = explain.Synthesize(fp)
	}
	if expl == nil {
		if w.requireExplanation && w.explainMode != explain.ModeOff {
			return nil, nil, stepErr("explanation_gate", KindValidation,
				errors.New("explanation required and none supplied"))
		}
		return nil, nil, nil
	}
	if w.explainMode == explain.ModeOff {
		return expl, nil, nil
	}

	delta := append(append([]string{}, fp.SymbolsAdded...), fp.SymbolsRemoved...)
	if err := explain.Validate(expl, delta); err != nil {
		var verr *explain.ValidationError
		errors.As(err, &verr)
		if w.explainMode == explain.ModeStrict {
			return nil, nil, stepErr("explanation_gate", KindValidation, err)
		}
		w.logger.Warn("explanation failed validation, advisory mode proceeds",
			"path", fp.Path, "codes", verr.Codes)
		return expl, verr.Codes, nil
	}
	return expl, nil, nil
}

// acquireFileLock takes the cross-process advisory lock guarding the
// snapshot+write+persist span. Contention is surfaced as a retryable
// condition rather than waited out.
func (w *Writer) acquireFileLock() (func(), error) {
	if err := os.MkdirAll(w.logDir, 0o750); err != nil {
		return nil, stepErr("file_lock", KindIOFailure, err)
	}
	lockPath := filepath.Join(w.logDir, "apply.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, stepErr("file_lock", KindIOFailure, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, stepErr("file_lock", KindConcurrencyContention,
				fmt.Errorf("apply.lock held by another process"))
		}
		return nil, stepErr("file_lock", KindIOFailure, err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// readTarget reads the current content, refusing to follow a symlink
// at the final component. A missing file reads as empty.
func readTarget(path string) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open target: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat target: %w", err)
	}
	buf := make([]byte, info.Size())
	n, err := f.Read(buf)
	if err != nil && n != len(buf) {
		return nil, fmt.Errorf("read target: %w", err)
	}
	return buf[:n], nil
}

// atomicWrite writes data to a temp file in the target's directory,
// fsyncs it, renames it into place, and fsyncs the directory entry.
func atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".apply-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}

// callerRationale extracts the free-text justification the oracle
// scores. Only the caller's own words count; a synthesized
// explanation must not inflate the quality score.
func callerRationale(e *explain.Explanation) string {
	if e == nil {
		return ""
	}
	return e.Why
}

// snapshotErrKind separates seal (integrity) failures from plain
// copy (I/O) failures.
func snapshotErrKind(err error) ErrorKind {
	if strings.Contains(err.Error(), "seal") || strings.Contains(err.Error(), "cipher") {
		return KindIntegrityFailure
	}
	return KindIOFailure
}
