package extraction

import "math"

// Frame is the result slot of one extraction unit.
type Frame struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Key       string  `json:"key,omitempty"`
	Error     string  `json:"error,omitempty"`
	Attempts  int     `json:"attempts"`
}

// OK reports whether the frame was extracted and stored.
func (f Frame) OK() bool {
	return f.Key != "" && f.Error == ""
}

// Frames is the output of the extraction stage.
type Frames struct {
	Source    string  `json:"source"`
	Filename  string  `json:"filename"`
	Duration  float64 `json:"duration"`
	Items     []Frame `json:"items"`
	Total     int     `json:"total"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
}

// UnitCounts exposes the fan-out totals for result statistics.
func (f Frames) UnitCounts() (total, succeeded, failed int) {
	return f.Total, f.Succeeded, f.Failed
}

// Extracted returns the successful frames in index order.
func (f Frames) Extracted() []Frame {
	out := make([]Frame, 0, f.Succeeded)
	for _, item := range f.Items {
		if item.OK() {
			out = append(out, item)
		}
	}
	return out
}

// Timestamps spreads sample points every interval seconds from zero,
// capped at maxFrames. Unknown durations yield a single frame at zero.
func Timestamps(duration, interval float64, maxFrames int) []float64 {
	if maxFrames <= 0 {
		maxFrames = 1
	}
	if duration <= 0 || interval <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return []float64{0}
	}
	count := int(math.Ceil(duration / interval))
	if count < 1 {
		count = 1
	}
	if count > maxFrames {
		count = maxFrames
		// Stretch the interval so the capped sample still covers the media.
		interval = duration / float64(count)
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Round(float64(i)*interval*1000) / 1000
	}
	return out
}
