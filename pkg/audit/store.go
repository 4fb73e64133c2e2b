package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
)

// ErrChainBroken is returned by VerifyChain when a record's prev_hash
// does not match the hash of its predecessor's persisted bytes.
var ErrChainBroken = errors.New("audit chain broken")

// Store persists records as one JSON file each under a directory.
// Signing and chaining are optional and independent.
type Store struct {
	mu     sync.Mutex
	dir    string
	signer crypto.Signer
	chain  bool
	mirror *Mirror
	logger *slog.Logger

	lastHash string
}

// Option configures a Store.
type Option func(*Store)

// WithSigner enables Ed25519 signing of every persisted record.
func WithSigner(s crypto.Signer) Option {
	return func(st *Store) { st.signer = s }
}

// WithChaining links each record to the hash of the previous one.
func WithChaining() Option {
	return func(st *Store) { st.chain = true }
}

// WithMirror duplicates every record into a relational mirror.
func WithMirror(m *Mirror) Option {
	return func(st *Store) { st.mirror = m }
}

// NewStore creates the directory if needed.
func NewStore(dir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	st := &Store{dir: dir, logger: logger}
	for _, opt := range opts {
		opt(st)
	}
	if st.chain {
		if err := st.loadChainTip(); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// loadChainTip recovers the hash of the newest persisted record so a
// restarted process continues the chain instead of forking it.
func (s *Store) loadChainTip() error {
	names, err := s.recordFiles()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, names[len(names)-1]))
	if err != nil {
		return fmt.Errorf("read chain tip: %w", err)
	}
	s.lastHash = crypto.HashBytes(raw)
	return nil
}

// Persist assigns the record id, signs and chains as configured, and
// writes `{id}.json` atomically (temp file, fsync, rename). Returns
// the record id.
func (s *Store) Persist(r *Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = RecordID(r.Timestamp, r.Path, r.DiffHash)
	if s.chain {
		r.PrevHash = s.lastHash
	}
	if s.signer != nil {
		if err := r.Sign(s.signer); err != nil {
			return "", err
		}
	}

	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	final := filepath.Join(s.dir, r.ID+".json")
	if err := writeFileSync(final, raw); err != nil {
		return "", err
	}
	s.lastHash = crypto.HashBytes(raw)

	if s.mirror != nil {
		if err := s.mirror.Insert(r); err != nil {
			// The file record is the source of truth; a mirror failure is
			// logged, not fatal.
			s.logger.Warn("audit mirror insert failed", "record_id", r.ID, "error", err)
		}
	}

	s.logger.Info("audit record persisted",
		"record_id", r.ID, "path", r.Path, "allow", r.Allow)
	return r.ID, nil
}

func writeFileSync(final string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(final), ".audit-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record into place: %w", err)
	}
	return nil
}

// Load reads one record by id.
func (s *Store) Load(id string) (*Record, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &r, nil
}

// recordFiles lists record filenames in chronological (lexical) order.
func (s *Store) recordFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list audit dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// IDs returns all persisted record ids in chronological order.
func (s *Store) IDs() ([]string, error) {
	names, err := s.recordFiles()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(names))
	for i, n := range names {
		ids[i] = strings.TrimSuffix(n, ".json")
	}
	return ids, nil
}

// Chaining reports whether persisted records carry prev-hash links.
func (s *Store) Chaining() bool { return s.chain }

// VerifyChain walks the persisted records in order and checks that
// every prev_hash matches the SHA-256 of the predecessor's bytes.
// Returns the number of verified records.
func (s *Store) VerifyChain() (int, error) {
	names, err := s.recordFiles()
	if err != nil {
		return 0, err
	}
	prevHash := ""
	for i, name := range names {
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return i, fmt.Errorf("read %s: %w", name, err)
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return i, fmt.Errorf("decode %s: %w", name, err)
		}
		if r.PrevHash != prevHash {
			return i, fmt.Errorf("%w: record %s prev_hash mismatch", ErrChainBroken, r.ID)
		}
		prevHash = crypto.HashBytes(raw)
	}
	return len(names), nil
}
