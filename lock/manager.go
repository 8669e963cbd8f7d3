// Package lock provides keyed mutual exclusion for in-process serialization
// of mutations against the shared backend. One Manager instance governs one
// process; lock state is memory only. Coordinating multiple processes
// requires a shared primitive (e.g. a lease row in the backend itself) and
// is out of scope.
package lock

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/listora/listora"
)

// ErrLockNotAcquired is returned by TryAcquire when the lock is already held.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Manager is a registry of per-key locks with FIFO wait queues. Constructible
// and resettable so tests can create independent managers; not a singleton.
type Manager struct {
	mu      sync.Mutex
	locks   map[string]*entry
	timeout time.Duration
}

type entry struct {
	holder     listora.UUID
	acquiredAt time.Time
	expiresAt  time.Time
	waiters    []*waiter
}

type waiter struct {
	token listora.UUID
	// granted is closed when the waiter's turn resolves; err is set before
	// the close when the resolution is a failure rather than ownership.
	granted chan struct{}
	err     error
}

// NewManager creates a Manager whose locks are force-released after timeout.
// The force release is a deadlock-avoidance backstop against a holder that
// never released; it is lossy (the evicted holder may briefly still act on
// the resource) and must not be relied on for correctness.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = listora.DefaultOptions().LockTimeout
	}
	return &Manager{
		locks:   make(map[string]*entry),
		timeout: timeout,
	}
}

// Acquire blocks until the lock for key is granted or ctx is done. Concurrent
// acquirers of the same key queue in FIFO order; distinct keys never contend.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := listora.NewUUID()

	m.mu.Lock()
	e, held := m.locks[key]
	if !held {
		now := time.Now()
		m.locks[key] = &entry{
			holder:     token,
			acquiredAt: now,
			expiresAt:  now.Add(m.timeout),
		}
		m.mu.Unlock()
		return &Lease{m: m, key: key, token: token}, nil
	}
	w := &waiter{token: token, granted: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	wake := time.Until(e.expiresAt)
	m.mu.Unlock()

	for {
		if wake < 0 {
			wake = 0
		}
		timer := time.NewTimer(wake)
		select {
		case <-w.granted:
			timer.Stop()
			if w.err != nil {
				return nil, listora.Error{Code: listora.LockAcquisitionFailure, Err: w.err, UserData: key}
			}
			return &Lease{m: m, key: key, token: token}, nil
		case <-ctx.Done():
			timer.Stop()
			if m.abandon(key, w) {
				return nil, listora.Error{Code: listora.LockAcquisitionFailure, Err: ctx.Err(), UserData: key}
			}
			// Resolved in the same instant; if it resolved to ownership,
			// that ownership is ours to give back.
			if w.err == nil {
				lease := &Lease{m: m, key: key, token: token}
				lease.Release()
			}
			return nil, listora.Error{Code: listora.LockAcquisitionFailure, Err: ctx.Err(), UserData: key}
		case <-timer.C:
			wake = m.reap(key)
		}
	}
}

// TryAcquire is the non-blocking variant; it returns ErrLockNotAcquired when
// the lock is held (and not expired) by someone else.
func (m *Manager) TryAcquire(key string) (*Lease, error) {
	token := listora.NewUUID()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, held := m.locks[key]
	if held && time.Now().Before(e.expiresAt) {
		return nil, ErrLockNotAcquired
	}
	if held {
		// Expired holder with no queued waiters; evict it.
		log.Warn("force releasing expired lock", "key", key, "holder", e.holder.String(), "heldFor", time.Since(e.acquiredAt))
	}
	now := time.Now()
	m.locks[key] = &entry{
		holder:     token,
		acquiredAt: now,
		expiresAt:  now.Add(m.timeout),
	}
	return &Lease{m: m, key: key, token: token}, nil
}

// Reset force-releases every lock and fails every queued waiter with
// ErrLockNotAcquired, so no acquirer is left hanging and no two acquirers
// ever hold the same key; tests use Reset to start from a clean slate.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.locks {
		for _, w := range e.waiters {
			w.err = ErrLockNotAcquired
			close(w.granted)
		}
		delete(m.locks, key)
	}
}

// reap force-releases the lock for key if its holder has exceeded the
// timeout, handing ownership to the first waiter. It returns the duration
// until the current holder's expiry (for the caller to sleep again).
func (m *Manager) reap(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, held := m.locks[key]
	if !held {
		return m.timeout
	}
	if time.Now().Before(e.expiresAt) {
		return time.Until(e.expiresAt)
	}
	log.Warn("force releasing expired lock", "key", key, "holder", e.holder.String(), "heldFor", time.Since(e.acquiredAt))
	m.grantNextLocked(key, e)
	if e2, ok := m.locks[key]; ok {
		return time.Until(e2.expiresAt)
	}
	return m.timeout
}

// grantNextLocked hands the lock to the first queued waiter, or removes the
// entry when the queue is empty. Caller holds m.mu.
func (m *Manager) grantNextLocked(key string, e *entry) {
	if len(e.waiters) == 0 {
		delete(m.locks, key)
		return
	}
	w := e.waiters[0]
	e.waiters = e.waiters[1:]
	now := time.Now()
	e.holder = w.token
	e.acquiredAt = now
	e.expiresAt = now.Add(m.timeout)
	close(w.granted)
}

// abandon removes w from key's wait queue. It returns false when w was
// already granted ownership, in which case the caller must release it.
func (m *Manager) abandon(key string, w *waiter) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, held := m.locks[key]
	if !held {
		return false
	}
	for i, qw := range e.waiters {
		if qw == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Held reports whether key is currently locked (by anyone, unexpired).
func (m *Manager) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, held := m.locks[key]
	return held && time.Now().Before(e.expiresAt)
}

// Lease is one granted lock. Release it exactly once on every exit path;
// extra releases are no-ops.
type Lease struct {
	m        *Manager
	key      string
	token    listora.UUID
	released bool
	mu       sync.Mutex
}

// Release hands the lock to the next queued waiter (or frees it). Releasing
// twice is a no-op, and a lease whose lock was force-expired and re-granted
// never releases the new holder's lock.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()

	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	e, held := l.m.locks[l.key]
	if !held || e.holder != l.token {
		// Force-released underneath us; nothing to do.
		return
	}
	l.m.grantNextLocked(l.key, e)
}
