package scheduler

import (
	"fmt"
	"sort"
	"sync"
)

// epsilon absorbs float rounding when fractional quantities are summed.
const epsilon = 1e-9

// ResourceLedger tracks static capacity and current reservations per named
// resource. Reserve is all-or-nothing, so used never exceeds available.
type ResourceLedger struct {
	mu        sync.Mutex
	available map[string]float64 // Static ceilings
	used      map[string]float64 // Current reservations
}

// NewResourceLedger creates a ledger with the given ceilings.
func NewResourceLedger(capacities map[string]float64) *ResourceLedger {
	l := &ResourceLedger{
		available: make(map[string]float64, len(capacities)),
		used:      make(map[string]float64, len(capacities)),
	}
	for name, capacity := range capacities {
		l.available[name] = capacity
		l.used[name] = 0
	}
	return l
}

// Validate checks that every requirement names a known resource, is
// non-negative and does not exceed the ceiling.
func (l *ResourceLedger) Validate(req Resources) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, name := range sortedNames(req) {
		qty := req[name]
		capacity, ok := l.available[name]
		if !ok {
			return fmt.Errorf("%w: unknown resource %q", ErrResourceDeclaration, name)
		}
		if qty < 0 {
			return fmt.Errorf("%w: negative quantity %v for %q", ErrResourceDeclaration, qty, name)
		}
		if qty > capacity+epsilon {
			return fmt.Errorf("%w: %q requires %v, ceiling is %v", ErrResourceDeclaration, name, qty, capacity)
		}
	}
	return nil
}

// Fits reports whether req could be reserved right now.
func (l *ResourceLedger) Fits(req Resources) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fits(req, l.freeLocked())
}

// Reserve atomically reserves every entry of req or nothing.
func (l *ResourceLedger) Reserve(req Resources) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, name := range sortedNames(req) {
		capacity, ok := l.available[name]
		if !ok {
			return fmt.Errorf("%w: unknown resource %q", ErrResourceDeclaration, name)
		}
		if l.used[name]+req[name] > capacity+epsilon {
			return fmt.Errorf("insufficient %s: need %v, free %v", name, req[name], capacity-l.used[name])
		}
	}
	for name, qty := range req {
		l.used[name] += qty
	}
	return nil
}

// Release returns a reservation made by Reserve.
func (l *ResourceLedger) Release(req Resources) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for name, qty := range req {
		if _, ok := l.available[name]; !ok {
			continue
		}
		l.used[name] -= qty
		if l.used[name] < epsilon {
			l.used[name] = 0
		}
	}
}

// Free returns a copy of the currently unreserved capacity.
func (l *ResourceLedger) Free() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.freeLocked()
}

// Used returns a copy of the current reservations.
func (l *ResourceLedger) Used() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.used))
	for name, qty := range l.used {
		out[name] = qty
	}
	return out
}

// Available returns a copy of the static ceilings.
func (l *ResourceLedger) Available() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.available))
	for name, capacity := range l.available {
		out[name] = capacity
	}
	return out
}

// Utilization returns used/available as a percentage per resource.
func (l *ResourceLedger) Utilization() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.available))
	for name, capacity := range l.available {
		if capacity <= 0 {
			out[name] = 0
			continue
		}
		out[name] = l.used[name] / capacity * 100
	}
	return out
}

func (l *ResourceLedger) freeLocked() map[string]float64 {
	out := make(map[string]float64, len(l.available))
	for name, capacity := range l.available {
		out[name] = capacity - l.used[name]
	}
	return out
}

// fits checks req against free, treating unknown names as unavailable.
func fits(req Resources, free map[string]float64) bool {
	for name, qty := range req {
		f, ok := free[name]
		if !ok || qty > f+epsilon {
			return false
		}
	}
	return true
}

func sortedNames(req Resources) []string {
	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
