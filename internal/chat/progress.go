package chat

import "time"

// MaxProgressPercent caps the simulated progress while a request is pending,
// so the bar never completes before the real answer arrives.
const MaxProgressPercent = 90

// Stages is the ordered list of status texts shown while waiting.
type Stages struct {
	Texts    []string
	Interval time.Duration
}

// Index returns the stage for elapsed: it advances once per Interval and then
// holds at the last stage. It never wraps around.
func (s Stages) Index(elapsed time.Duration) int {
	n := len(s.Texts)
	if n == 0 || elapsed <= 0 {
		return 0
	}
	if s.Interval <= 0 {
		return n - 1
	}
	idx := elapsed / s.Interval
	if idx >= time.Duration(n-1) {
		return n - 1
	}
	return int(idx)
}

// Text returns the status text for elapsed, or "" with no stages configured.
func (s Stages) Text(elapsed time.Duration) string {
	if len(s.Texts) == 0 {
		return ""
	}
	return s.Texts[s.Index(elapsed)]
}

// ProgressPercent is min(floor(elapsed/timeout*100*0.9), 90), computed in
// integer nanoseconds so the floor is exact.
func ProgressPercent(elapsed, timeout time.Duration) int {
	if elapsed <= 0 || timeout <= 0 {
		return 0
	}
	if elapsed >= timeout {
		return MaxProgressPercent
	}
	pct := int64(elapsed) * MaxProgressPercent / int64(timeout)
	if pct > MaxProgressPercent {
		return MaxProgressPercent
	}
	return int(pct)
}
