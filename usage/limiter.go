// Package usage gates how many calculations an anonymous or unpaid session may run and how fast any
// client may call the API.
package usage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// DefaultFreeCalculations is the free tier allowance per session.
const DefaultFreeCalculations = 3

// A Decision is the outcome of asking a Limiter for one more calculation.
type Decision struct {
	Allowed bool `json:"allowed"`
	Used    int  `json:"used"`
	Limit   int  `json:"limit"`
}

// Remaining is how many more calculations the session may run.
func (d Decision) Remaining() int {
	if d.Used >= d.Limit {
		return 0
	}
	return d.Limit - d.Used
}

// A Limiter counts calculations per session.
type Limiter interface {
	// Allow consumes one calculation for the session if any remain.
	Allow(ctx context.Context, sessionID string) (Decision, error)
	// Peek reports the session's usage without consuming anything.
	Peek(ctx context.Context, sessionID string) (Decision, error)
	// Reset forgets the session's usage. The payment webhook calls it once a checkout started from
	// the session is paid.
	Reset(ctx context.Context, sessionID string) error
}

// MemoryLimiter is a Limiter that keeps its counters in process memory.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

// NewMemoryLimiter returns a MemoryLimiter allowing `limit` calculations per session. A
// non-positive limit uses DefaultFreeCalculations.
func NewMemoryLimiter(limit int) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultFreeCalculations
	}
	return &MemoryLimiter{limit: limit, counts: map[string]int{}}
}

// Allow implements Limiter. The counter only moves when the calculation is allowed.
func (ml *MemoryLimiter) Allow(ctx context.Context, sessionID string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if sessionID == "" {
		return Decision{}, errors.New("session id is required")
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	used := ml.counts[sessionID]
	if used >= ml.limit {
		return Decision{Allowed: false, Used: used, Limit: ml.limit}, nil
	}
	used++
	ml.counts[sessionID] = used
	return Decision{Allowed: true, Used: used, Limit: ml.limit}, nil
}

// Peek implements Limiter.
func (ml *MemoryLimiter) Peek(ctx context.Context, sessionID string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	used := ml.counts[sessionID]
	return Decision{Allowed: used < ml.limit, Used: used, Limit: ml.limit}, nil
}

// Reset implements Limiter.
func (ml *MemoryLimiter) Reset(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	delete(ml.counts, sessionID)
	return nil
}

// SetLimit changes the allowance for every session. Counts already recorded are kept.
func (ml *MemoryLimiter) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultFreeCalculations
	}
	ml.mu.Lock()
	ml.limit = limit
	ml.mu.Unlock()
}

// Limit returns the current allowance.
func (ml *MemoryLimiter) Limit() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.limit
}
