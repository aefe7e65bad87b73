package progress

import (
	"math"
	"sync"
)

// Stage is the stored progress of one pipeline stage.
type Stage struct {
	Name    string
	Percent float64
}

// Aggregate returns the weighted job percentage. The active update replaces
// the stored value for its stage before weighting. Stages without a weight
// contribute nothing, and the denominator is the sum of the whole table.
// Results are clamped to [0,100] and rounded half to even.
func Aggregate(stages []Stage, weights map[string]int, active Stage) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return 0
	}

	var sum float64
	seenActive := false
	for _, st := range stages {
		pct := st.Percent
		if active.Name != "" && st.Name == active.Name {
			pct = active.Percent
			seenActive = true
		}
		sum += Clamp(pct) * float64(positive(weights[st.Name]))
	}
	if active.Name != "" && !seenActive {
		sum += Clamp(active.Percent) * float64(positive(weights[active.Name]))
	}

	value := math.RoundToEven(sum / float64(total))
	return int(Clamp(value))
}

// Clamp bounds pct to [0,100]. NaN maps to 0.
func Clamp(pct float64) float64 {
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

func positive(w int) int {
	if w < 0 {
		return 0
	}
	return w
}

// Tracker reports a running maximum so displayed progress never moves backwards.
type Tracker struct {
	mu   sync.Mutex
	peak int
}

// NewTracker seeds a tracker, typically from a resumed job's progress.
func NewTracker(start int) *Tracker {
	return &Tracker{peak: int(Clamp(float64(start)))}
}

// Observe records value and returns the highest value seen so far.
func (t *Tracker) Observe(value int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if value > t.peak {
		t.peak = value
	}
	if t.peak > 100 {
		t.peak = 100
	}
	return t.peak
}

// Value returns the current maximum.
func (t *Tracker) Value() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}
