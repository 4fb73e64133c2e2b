package oracle

import (
	"math"
	"sort"
	"time"
)

// Episodic store parameters.
const (
	episodicCapacity = 10000
	episodicK        = 5
	pruneFraction    = 0.2
)

// Episode is one consolidated memory.
type Episode struct {
	Embedding  []float64
	Label      string
	Importance float64
	Valence    float64
	Retrievals int
	StoredAt   time.Time
}

// EpisodicStore holds consolidated change memories with k-NN recall
// and importance-based pruning. Not safe for concurrent use; the
// oracle serializes access.
type EpisodicStore struct {
	episodes []Episode
	now      func() time.Time
}

func NewEpisodicStore() *EpisodicStore {
	return &EpisodicStore{now: time.Now}
}

// Record consolidates an episode, pruning the least valuable 20%
// when the store is full.
func (s *EpisodicStore) Record(embedding []float64, label string, importance, valence float64) {
	if len(s.episodes) >= episodicCapacity {
		s.prune()
	}
	s.episodes = append(s.episodes, Episode{
		Embedding:  append([]float64{}, embedding...),
		Label:      label,
		Importance: importance,
		Valence:    valence,
		StoredAt:   s.now(),
	})
}

// Recall returns up to k episodes most cosine-similar to the probe,
// in descending similarity order, bumping their retrieval counters.
func (s *EpisodicStore) Recall(embedding []float64, k int) []Episode {
	if k <= 0 {
		k = episodicK
	}
	type scored struct {
		idx int
		sim float64
	}
	scores := make([]scored, 0, len(s.episodes))
	for i := range s.episodes {
		scores = append(scores, scored{i, Cosine(s.episodes[i].Embedding, embedding)})
	}
	sort.Slice(scores, func(a, b int) bool { return scores[a].sim > scores[b].sim })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]Episode, 0, k)
	for _, sc := range scores[:k] {
		s.episodes[sc.idx].Retrievals++
		out = append(out, s.episodes[sc.idx])
	}
	return out
}

// retentionScore values an episode for pruning: importance plus a
// retrieval bonus minus an age penalty.
func (s *EpisodicStore) retentionScore(e *Episode) float64 {
	ageHours := s.now().Sub(e.StoredAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return e.Importance + 0.1*float64(e.Retrievals) - 0.1*math.Log(1+ageHours)
}

// prune drops the bottom 20% by retention score.
func (s *EpisodicStore) prune() {
	if len(s.episodes) == 0 {
		return
	}
	sort.Slice(s.episodes, func(a, b int) bool {
		return s.retentionScore(&s.episodes[a]) < s.retentionScore(&s.episodes[b])
	})
	drop := int(float64(len(s.episodes)) * pruneFraction)
	if drop < 1 {
		drop = 1
	}
	s.episodes = append([]Episode{}, s.episodes[drop:]...)
}

// Len returns the number of stored episodes.
func (s *EpisodicStore) Len() int { return len(s.episodes) }
