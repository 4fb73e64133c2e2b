package oracle

// Chunking parameters: recognition threshold, maximum effective
// capacity multiplier and library size.
const (
	chunkSimilarity   = 0.9
	chunkBoostMax     = 1.75
	chunkLibraryLimit = 1000
)

// Chunk is one learned pattern with a usage count.
type Chunk struct {
	Pattern []float64
	Label   string
	Uses    int
}

// Chunker compresses familiar patterns so effective working-memory
// capacity grows with expertise. Non-gating; its boost feeds the
// status endpoint only.
type Chunker struct {
	library []Chunk
}

func NewChunker() *Chunker { return &Chunker{} }

// Learn adds a pattern to the library, or bumps the usage count of an
// existing chunk that matches at 0.9 cosine or above. The library is
// capped; least-used chunks are evicted first.
func (c *Chunker) Learn(pattern []float64, label string) {
	if idx := c.match(pattern); idx >= 0 {
		c.library[idx].Uses++
		return
	}
	if len(c.library) >= chunkLibraryLimit {
		c.evictLeastUsed()
	}
	c.library = append(c.library, Chunk{
		Pattern: append([]float64{}, pattern...),
		Label:   label,
		Uses:    1,
	})
}

// Recognize reports whether the pattern matches a known chunk.
func (c *Chunker) Recognize(pattern []float64) bool {
	return c.match(pattern) >= 0
}

func (c *Chunker) match(pattern []float64) int {
	for i := range c.library {
		if Cosine(c.library[i].Pattern, pattern) >= chunkSimilarity {
			return i
		}
	}
	return -1
}

func (c *Chunker) evictLeastUsed() {
	if len(c.library) == 0 {
		return
	}
	least := 0
	for i := range c.library {
		if c.library[i].Uses < c.library[least].Uses {
			least = i
		}
	}
	c.library = append(c.library[:least], c.library[least+1:]...)
}

// Boost returns the effective capacity multiplier, growing with
// library size up to 1.75x.
func (c *Chunker) Boost() float64 {
	boost := 1.0 + float64(len(c.library))*0.01
	if boost > chunkBoostMax {
		boost = chunkBoostMax
	}
	return boost
}

// Size returns the number of learned chunks.
func (c *Chunker) Size() int { return len(c.library) }
