package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/cockpit/pkg/audit"
	"github.com/Mindburn-Labs/cockpit/pkg/config"
	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
	"github.com/Mindburn-Labs/cockpit/pkg/observability"
	"github.com/Mindburn-Labs/cockpit/pkg/oracle"
	"github.com/Mindburn-Labs/cockpit/pkg/writer"
)

// decayInterval is how often the oracle's affective state relaxes
// toward neutral while the daemon idles.
const decayInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cockpitd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("cockpitd starting",
		"port", cfg.Port, "allowed_root", cfg.AllowedRoot, "explain_policy", cfg.ExplainPolicy)

	// Audit store: signing, chaining and the SQLite mirror are all
	// opt-in via environment.
	var opts []audit.Option
	if cfg.SigningKeyHex != "" {
		signer, err := crypto.NewEd25519SignerFromHex(cfg.SigningKeyHex)
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
		opts = append(opts, audit.WithSigner(signer))
		logger.Info("audit signing enabled", "pubkey_id", signer.KeyID())
	}
	if cfg.AuditChain {
		opts = append(opts, audit.WithChaining())
	}
	if cfg.UseSQLite {
		if err := os.MkdirAll(cfg.ChangeLogDir, 0o750); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		mirror, err := audit.OpenMirror(filepath.Join(cfg.ChangeLogDir, "reports.db"))
		if err != nil {
			return fmt.Errorf("open audit mirror: %w", err)
		}
		defer mirror.Close()
		opts = append(opts, audit.WithMirror(mirror))
	}
	store, err := audit.NewStore(cfg.ChangeLogDir, logger, opts...)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}

	var sealer *crypto.Sealer
	if cfg.SnapshotKeyHex != "" {
		sealer, err = crypto.NewSealer(cfg.SnapshotKeyHex, cfg.SnapshotKeyID)
		if err != nil {
			return fmt.Errorf("load snapshot key: %w", err)
		}
		logger.Info("snapshot sealing enabled", "key_id", sealer.KeyID())
	}

	orc := oracle.New()
	w := writer.New(cfg, orc, nil, store, sealer, logger)

	metrics, err := observability.New()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	srv := newServer(cfg, w, orc, store, metrics, logger)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Surface snapshots left behind by an interrupted apply.
	if orphans, err := writer.DetectOrphans(cfg.ChangeLogDir, store, time.Minute); err != nil {
		logger.Warn("orphan scan failed", "error", err)
	} else {
		for _, o := range orphans {
			logger.Warn("orphaned snapshot found, change may not have been recorded",
				"snapshot", o.SnapshotPath, "mtime", o.ModTime)
		}
	}

	go func() {
		t := time.NewTicker(decayInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				orc.Decay()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := metrics.Shutdown(shutCtx); err != nil {
		logger.Warn("metrics shutdown failed", "error", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "DEBUG":
		lv = slog.LevelDebug
	case "WARN":
		lv = slog.LevelWarn
	case "ERROR":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
