package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mindburn-Labs/cockpit/pkg/audit"
	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
)

// SnapshotMeta describes one written snapshot.
type SnapshotMeta struct {
	Path     string
	Sealed   bool
	KeyID    string
	NonceHex string
	TagHex   string
}

// snapshotDir is where pre-change copies live, under the log dir.
func snapshotDir(logDir string) string {
	return filepath.Join(logDir, "snapshots")
}

// writeSnapshot copies the pre-change content next to the audit log,
// keyed by basename and process id. With a sealer configured the copy
// is AES-256-GCM encrypted and gets the .enc suffix.
func writeSnapshot(logDir, targetPath string, oldContent []byte, sealer *crypto.Sealer) (*SnapshotMeta, error) {
	dir := snapshotDir(logDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	base := filepath.Base(targetPath)
	pid := os.Getpid()

	if sealer == nil {
		path := filepath.Join(dir, fmt.Sprintf("%s.%d.bak", base, pid))
		if err := os.WriteFile(path, oldContent, 0o640); err != nil {
			return nil, fmt.Errorf("write snapshot: %w", err)
		}
		return &SnapshotMeta{Path: path}, nil
	}

	sealed, err := sealer.Seal(oldContent)
	if err != nil {
		return nil, fmt.Errorf("seal snapshot: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%d.enc", base, pid))
	if err := os.WriteFile(path, sealed.Ciphertext, 0o640); err != nil {
		return nil, fmt.Errorf("write sealed snapshot: %w", err)
	}
	return &SnapshotMeta{
		Path:     path,
		Sealed:   true,
		KeyID:    sealer.KeyID(),
		NonceHex: sealed.NonceHex,
		TagHex:   sealed.TagHex,
	}, nil
}

// Orphan is a snapshot with no matching audit record: evidence of an
// attempt interrupted between the snapshot and the audit persist.
type Orphan struct {
	SnapshotPath string
	ModTime      time.Time
}

// DetectOrphans scans the snapshot directory for files older than
// window that no persisted record references. These indicate an
// interrupted attempt and should be surfaced, not silently ignored.
func DetectOrphans(logDir string, store *audit.Store, window time.Duration) ([]Orphan, error) {
	entries, err := os.ReadDir(snapshotDir(logDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshot dir: %w", err)
	}
	ids, err := store.IDs()
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool)
	for _, id := range ids {
		rec, err := store.Load(id)
		if err != nil {
			continue
		}
		if rec.SnapshotPath != "" {
			referenced[filepath.Base(rec.SnapshotPath)] = true
		}
	}

	cutoff := time.Now().Add(-window)
	var orphans []Orphan
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".bak") || strings.HasSuffix(e.Name(), ".enc")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue // too fresh to judge
		}
		if !referenced[e.Name()] {
			orphans = append(orphans, Orphan{
				SnapshotPath: filepath.Join(snapshotDir(logDir), e.Name()),
				ModTime:      info.ModTime(),
			})
		}
	}
	return orphans, nil
}
