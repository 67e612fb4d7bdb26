package engine

import "sync"

// leaseSet guards (generator, kind) pairs when exclusive runs are enabled.
// Leases are in-process only.
type leaseSet struct {
	mu   sync.Mutex
	held map[string]string
}

func newLeaseSet() *leaseSet {
	return &leaseSet{held: map[string]string{}}
}

func pairKey(generator, kind string) string {
	return generator + "/" + kind
}

// acquire returns the current owner and false if the pair is taken.
func (l *leaseSet) acquire(key, owner string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok {
		return cur, false
	}
	l.held[key] = owner
	return owner, true
}

func (l *leaseSet) release(key, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == owner {
		delete(l.held, key)
	}
}
