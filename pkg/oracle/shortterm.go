package oracle

import "time"

// Short-term buffer parameters: capacity, entry lifetime and the
// similarity level at which a new entry counts as a duplicate of the
// most recent one.
const (
	bufferCapacity     = 20
	bufferTTL          = 2000 * time.Millisecond
	duplicateThreshold = 0.85
)

// BufferEntry is one item in the preconscious buffer.
type BufferEntry struct {
	Embedding []float64
	Label     string
	Salience  float64
	Duplicate bool
	AddedAt   time.Time
}

// ShortTermBuffer is a FIFO of recent change embeddings with a hard
// capacity and a time-to-live. Duplicates of the most recent entry
// are marked and counted but still stored, so habituation is visible
// without losing history.
type ShortTermBuffer struct {
	entries    []BufferEntry
	duplicates int
	now        func() time.Time
}

func NewShortTermBuffer() *ShortTermBuffer {
	return &ShortTermBuffer{now: time.Now}
}

// Push appends an entry, marking it as a duplicate when it is
// cosine-similar to the previous entry at 0.85 or above. Oldest
// entries fall off past capacity.
func (b *ShortTermBuffer) Push(embedding []float64, label string, salience float64) {
	b.expire()
	entry := BufferEntry{
		Embedding: append([]float64{}, embedding...),
		Label:     label,
		Salience:  salience,
		AddedAt:   b.now(),
	}
	if n := len(b.entries); n > 0 {
		if Cosine(b.entries[n-1].Embedding, embedding) >= duplicateThreshold {
			entry.Duplicate = true
			b.duplicates++
		}
	}
	b.entries = append(b.entries, entry)
	if len(b.entries) > bufferCapacity {
		b.entries = b.entries[len(b.entries)-bufferCapacity:]
	}
}

// ContainsSimilar reports whether any live entry is cosine-similar
// to the probe at or above threshold.
func (b *ShortTermBuffer) ContainsSimilar(embedding []float64, threshold float64) bool {
	b.expire()
	for i := range b.entries {
		if Cosine(b.entries[i].Embedding, embedding) >= threshold {
			return true
		}
	}
	return false
}

// expire drops entries older than the TTL.
func (b *ShortTermBuffer) expire() {
	cutoff := b.now().Add(-bufferTTL)
	keep := b.entries[:0]
	for _, e := range b.entries {
		if e.AddedAt.After(cutoff) {
			keep = append(keep, e)
		}
	}
	b.entries = keep
}

// Len returns the number of live entries.
func (b *ShortTermBuffer) Len() int {
	b.expire()
	return len(b.entries)
}

// Duplicates returns the cumulative duplicate count.
func (b *ShortTermBuffer) Duplicates() int { return b.duplicates }

// MostSalient returns the live entry with the highest salience, or
// nil when empty.
func (b *ShortTermBuffer) MostSalient() *BufferEntry {
	b.expire()
	var best *BufferEntry
	for i := range b.entries {
		if best == nil || b.entries[i].Salience > best.Salience {
			best = &b.entries[i]
		}
	}
	return best
}
