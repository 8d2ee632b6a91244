package alert

import "sync"

// AlertedSet tracks incident keys already presented during a tracking session.
// It only grows until Reset.
type AlertedSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewAlertedSet creates an empty set.
func NewAlertedSet() *AlertedSet {
	return &AlertedSet{
		seen: make(map[string]struct{}),
	}
}

// Record atomically checks if a key is new and marks it as seen if so.
// Returns true if the key was recorded, false if it was already present.
func (a *AlertedSet) Record(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.seen[key]; exists {
		return false
	}

	a.seen[key] = struct{}{}
	return true
}

// Contains reports whether the key has been recorded.
func (a *AlertedSet) Contains(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.seen[key]
	return exists
}

// Len returns the number of recorded keys.
func (a *AlertedSet) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.seen)
}

// Reset forgets every key.
func (a *AlertedSet) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = make(map[string]struct{})
}
