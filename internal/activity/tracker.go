// Package activity keeps per-user "last seen" markers in memory.
package activity

import (
	"sync"
	"time"
)

// Kinds tracked by the API.
const (
	KindPost = "post"
)

// Snapshot is the full tracker state: domain -> kind -> user -> value.
type Snapshot map[string]map[string]map[string]string

// Tracker stores the last value written per (domain, kind, user). Writes are
// last-writer-wins; state is lost on restart.
type Tracker struct {
	mu    sync.RWMutex
	state Snapshot
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{state: Snapshot{}}
}

// UserKey is the identity used for a user: the email, or the id when the
// email is empty.
func UserKey(email, id string) string {
	if email != "" {
		return email
	}
	return id
}

// SetActivity overwrites the value stored for user.
func (t *Tracker) SetActivity(domain, user, kind, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(domain, user, kind, value)
}

func (t *Tracker) set(domain, user, kind, value string) {
	kinds, ok := t.state[domain]
	if !ok {
		kinds = map[string]map[string]string{}
		t.state[domain] = kinds
	}
	users, ok := kinds[kind]
	if !ok {
		users = map[string]string{}
		kinds[kind] = users
	}
	users[user] = value
}

// Advance stores value only when it is a later instant than the current
// value, or when nothing usable is stored. It reports whether it wrote.
func (t *Tracker) Advance(domain, user, kind, value string) bool {
	next, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if current := t.state[domain][kind][user]; current != "" {
		if prev, err := time.Parse(time.RFC3339Nano, current); err == nil && !next.After(prev) {
			return false
		}
	}
	t.set(domain, user, kind, value)
	return true
}

// GetActivityByUser returns the stored value or "" when absent.
func (t *Tracker) GetActivityByUser(domain, user, kind string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state[domain][kind][user]
}

// GetActivity returns a copy of the user values of one kind.
func (t *Tracker) GetActivity(domain, kind string) map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyUsers(t.state[domain][kind])
}

// GetAllActivity returns a copy of every kind tracked for domain.
func (t *Tracker) GetAllActivity(domain string) map[string]map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyKinds(t.state[domain])
}

// GetAllDomainActivity returns a deep copy of the whole state.
func (t *Tracker) GetAllDomainActivity() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(Snapshot, len(t.state))
	for d, kinds := range t.state {
		out[d] = copyKinds(kinds)
	}
	return out
}

// SetAllDomainActivity replaces the whole state with data. It does not merge.
func (t *Tracker) SetAllDomainActivity(data Snapshot) {
	next := make(Snapshot, len(data))
	for d, kinds := range data {
		next[d] = copyKinds(kinds)
	}
	t.mu.Lock()
	t.state = next
	t.mu.Unlock()
}

func copyKinds(kinds map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(kinds))
	for k, users := range kinds {
		out[k] = copyUsers(users)
	}
	return out
}

func copyUsers(users map[string]string) map[string]string {
	out := make(map[string]string, len(users))
	for u, v := range users {
		out[u] = v
	}
	return out
}
