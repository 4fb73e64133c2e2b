// Package fingerprint builds the immutable descriptor of a proposed
// source change: content hashes, a positional line diff, size metrics
// and a lexical symbol delta. Everything here is pure; no I/O, no
// shared state.
package fingerprint

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/cockpit/pkg/crypto"
)

// Fingerprint describes one proposed change to one file. Once built
// it is treated as read-only by the rest of the pipeline.
type Fingerprint struct {
	Path           string    `json:"path"`
	OldHash        string    `json:"old_hash"`
	NewHash        string    `json:"new_hash"`
	DiffHash       string    `json:"diff_hash"`
	Diff           string    `json:"diff"`
	OldSize        int       `json:"old_size"`
	NewSize        int       `json:"new_size"`
	LinesAdded     int       `json:"lines_added"`
	LinesRemoved   int       `json:"lines_removed"`
	SymbolsAdded   []string  `json:"symbols_added"`
	SymbolsRemoved []string  `json:"symbols_removed"`
	Author         string    `json:"author"`
	Intent         string    `json:"intent"`
	CreatedAt      time.Time `json:"created_at"`
}

// Build computes the full fingerprint for replacing oldContent with
// newContent at path. Hashes are SHA-256 hex; the diff is positional
// (line N vs line N), not minimal.
func Build(path, oldContent, newContent, author, intent string) *Fingerprint {
	diff := Diff(path, oldContent, newContent)
	added, removed := countDiffLines(diff)
	symAdded, symRemoved := SymbolDelta(oldContent, newContent)
	return &Fingerprint{
		Path:           path,
		OldHash:        crypto.HashString(oldContent),
		NewHash:        crypto.HashString(newContent),
		DiffHash:       crypto.HashString(diff),
		Diff:           diff,
		OldSize:        len(oldContent),
		NewSize:        len(newContent),
		LinesAdded:     added,
		LinesRemoved:   removed,
		SymbolsAdded:   symAdded,
		SymbolsRemoved: symRemoved,
		Author:         author,
		Intent:         intent,
		CreatedAt:      time.Now().UTC(),
	}
}

// SizeRatio returns new/old content size, treating an empty old file
// as ratio = new size (creation is maximally surprising).
func (f *Fingerprint) SizeRatio() float64 {
	if f.OldSize == 0 {
		return float64(f.NewSize)
	}
	return float64(f.NewSize) / float64(f.OldSize)
}

// Diff produces a positional line-by-line diff. Line i of the old
// content is compared with line i of the new content; differing pairs
// emit a -/+ couple and tail lines emit bare -/+ entries. There are
// no context lines and no hunk minimization. The format is stable
// because the diff hash participates in the report id.
func Diff(path, oldContent, newContent string) string {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	n := len(oldLines)
	if len(newLines) > n {
		n = len(newLines)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(oldLines):
			b.WriteString("+" + newLines[i] + "\n")
		case i >= len(newLines):
			b.WriteString("-" + oldLines[i] + "\n")
		case oldLines[i] != newLines[i]:
			b.WriteString("-" + oldLines[i] + "\n")
			b.WriteString("+" + newLines[i] + "\n")
		}
	}
	return b.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

func countDiffLines(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
