package aggregator

import "sync"

// Breaker tracks consecutive failures per optional provider and disables a
// provider for the remainder of the process after it strikes out. There is
// no recovery path short of a restart; a broken best-effort source is not
// worth re-probing every cycle.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	strikes   map[string]int
	disabled  map[string]bool
}

// NewBreaker creates a breaker that disables a provider after threshold
// consecutive failed or empty attempts.
func NewBreaker(threshold int) *Breaker {
	if threshold < 1 {
		threshold = 2
	}
	return &Breaker{
		threshold: threshold,
		strikes:   make(map[string]int),
		disabled:  make(map[string]bool),
	}
}

// Disabled reports whether name has been disabled for this process.
func (b *Breaker) Disabled(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disabled[name]
}

// RecordSuccess resets the strike count for name.
func (b *Breaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strikes[name] = 0
}

// RecordFailure adds a strike for name and returns true if the provider
// just became disabled.
func (b *Breaker) RecordFailure(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabled[name] {
		return false
	}

	b.strikes[name]++
	if b.strikes[name] >= b.threshold {
		b.disabled[name] = true
		return true
	}
	return false
}

// DisabledProviders returns the names currently disabled.
func (b *Breaker) DisabledProviders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var names []string
	for name, off := range b.disabled {
		if off {
			names = append(names, name)
		}
	}
	return names
}
