package session

import "sync"

// FinalizedCounter is the legacy shared counter the barrier-free fallback
// polls instead of rendezvousing on a barrier: GET_WINNERS replies
// NO_WINNERS_YET until every agency has finalized. It is retained for
// backward compatibility (see Design Note 2); the barrier path is the
// normative default and does not use it.
type FinalizedCounter struct {
	mu    sync.Mutex
	count int
	total int
}

// NewFinalizedCounter creates a counter expecting total agencies to finalize.
func NewFinalizedCounter(total int) *FinalizedCounter {
	return &FinalizedCounter{total: total}
}

// MarkFinalized records one more finalized agency.
func (c *FinalizedCounter) MarkFinalized() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

// AllFinalized reports whether every expected agency has finalized.
func (c *FinalizedCounter) AllFinalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count >= c.total
}
