package supervisor

import "sync"

// OutputRing keeps the newest lines of gateway output for crash reports.
type OutputRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	count int
}

// NewOutputRing creates a ring holding up to size lines.
func NewOutputRing(size int) *OutputRing {
	return &OutputRing{lines: make([]string, size)}
}

// Append adds one line, evicting the oldest when full.
func (r *OutputRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Tail returns the retained lines, oldest first.
func (r *OutputRing) Tail() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count)
	if r.count < len(r.lines) {
		return append(out, r.lines[:r.count]...)
	}
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// Reset discards all lines.
func (r *OutputRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next = 0
	r.count = 0
}
