package runloop

import (
	"strconv"
	"sync"
	"time"

	"github.com/Iron-Ham/autopilot/internal/errors"
)

// Global limits applied when Config leaves them zero.
const (
	DefaultMaxSteps    = 50
	DefaultMaxDuration = 30 * time.Minute
)

// Budget bounds the number of steps dispatched and the wall-clock time
// spent across a whole plan run. The clock starts at the first Reserve.
type Budget struct {
	mu          sync.Mutex
	maxSteps    int
	maxDuration time.Duration
	used        int
	started     time.Time
	now         func() time.Time
}

// NewBudget creates a Budget. Non-positive limits select the defaults.
func NewBudget(maxSteps int, maxDuration time.Duration) *Budget {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Budget{maxSteps: maxSteps, maxDuration: maxDuration, now: time.Now}
}

// Reserve claims n steps. It fails without claiming anything when the step
// budget cannot cover n or the duration budget has already run out.
func (b *Budget) Reserve(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started.IsZero() {
		b.started = b.now()
	}
	if elapsed := b.now().Sub(b.started); elapsed >= b.maxDuration {
		return errors.NewBudgetError("duration", b.maxDuration.String(), elapsed.Round(time.Second).String())
	}
	if b.used+n > b.maxSteps {
		return errors.NewBudgetError("steps", strconv.Itoa(b.maxSteps), strconv.Itoa(b.used+n))
	}
	b.used += n
	return nil
}

// Used returns the number of steps reserved so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns how many more steps may be reserved.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxSteps - b.used
}

// Elapsed returns the time since the first reservation.
func (b *Budget) Elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started.IsZero() {
		return 0
	}
	return b.now().Sub(b.started)
}

// MaxSteps returns the step limit.
func (b *Budget) MaxSteps() int {
	return b.maxSteps
}

// MaxDuration returns the wall-clock limit.
func (b *Budget) MaxDuration() time.Duration {
	return b.maxDuration
}
