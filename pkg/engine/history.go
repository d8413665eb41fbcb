package engine

import "sync"

// history is a bounded ring of the most recent validation results.
// Oldest entries are evicted on overflow.
type history struct {
	mu    sync.RWMutex
	limit int
	buf   []*ValidationResult
	next  int
	full  bool
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = 1
	}
	return &history{
		limit: limit,
		buf:   make([]*ValidationResult, limit),
	}
}

func (h *history) add(r *ValidationResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = r
	h.next = (h.next + 1) % h.limit
	if h.next == 0 {
		h.full = true
	}
}

// recent returns the retained results, most recent first.
func (h *history) recent() []*ValidationResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.next
	if h.full {
		n = h.limit
	}
	out := make([]*ValidationResult, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + h.limit) % h.limit
		if h.buf[idx] != nil {
			out = append(out, h.buf[idx])
		}
	}
	return out
}

func (h *history) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return h.limit
	}
	return h.next
}
