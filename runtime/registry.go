package runtime

import (
	"sync"

	"support-hub/contract"
	"support-hub/domain"
)

type Set map[string]struct{}

// Registry is the in-memory presence map: identity -> live session, role ->
// member identities, and conversation key -> subscribed sessions. It holds no
// durable state; everything here is rebuilt as clients reconnect.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.Session                 // identity -> live session
	roles    map[domain.Role]Set                         // role -> identities
	watchers map[domain.Key]map[string]contract.Session // key -> session ID -> session
	watching map[string]map[domain.Key]struct{}          // session ID -> keys, for cleanup
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.Session),
		roles:    make(map[domain.Role]Set),
		watchers: make(map[domain.Key]map[string]contract.Session),
		watching: make(map[string]map[domain.Key]struct{}),
	}
}

// Register binds an identity to a live session, last registration wins.
// The previously bound session (if any, and if it is a different connection)
// is returned so the caller can apply the replaced-connection policy; this
// component never closes it itself.
func (r *Registry) Register(identity string, role domain.Role, s contract.Session) contract.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var displaced contract.Session
	if old, ok := r.sessions[identity]; ok && old.ID() != s.ID() {
		displaced = old
	}
	r.sessions[identity] = s

	if _, ok := r.roles[role]; !ok {
		r.roles[role] = make(Set)
	}
	r.roles[role][identity] = struct{}{}
	return displaced
}

// Lookup resolves an identity to its live session. An absent identity is not
// an error: it tells the caller to go store-only.
func (r *Registry) Lookup(identity string) (contract.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// LookupRole returns the live sessions of every identity in a role group.
func (r *Registry) LookupRole(role domain.Role) []contract.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roles[role]
	if !ok {
		return nil
	}
	var active []contract.Session
	for identity := range members {
		if s, exists := r.sessions[identity]; exists {
			active = append(active, s)
		}
	}
	return active
}

func (r *Registry) CountRole(role domain.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for identity := range r.roles[role] {
		if _, exists := r.sessions[identity]; exists {
			n++
		}
	}
	return n
}

// Subscribe attaches a session to a conversation key's live feed.
func (r *Registry) Subscribe(key domain.Key, s contract.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.watchers[key]; !ok {
		r.watchers[key] = make(map[string]contract.Session)
	}
	r.watchers[key][s.ID()] = s

	if _, ok := r.watching[s.ID()]; !ok {
		r.watching[s.ID()] = make(map[domain.Key]struct{})
	}
	r.watching[s.ID()][key] = struct{}{}
}

// Watchers returns the sessions subscribed to a conversation key.
func (r *Registry) Watchers(key domain.Key) []contract.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.watchers[key]
	if !ok {
		return nil
	}
	active := make([]contract.Session, 0, len(subs))
	for _, s := range subs {
		active = append(active, s)
	}
	return active
}

// Unregister removes a closing session from the registry. The identity slot
// is only released when this session still owns it: a disconnect that races
// with a re-registration for the same identity must not evict the newer
// connection.
func (r *Registry) Unregister(s contract.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity := s.Identity()
	if current, ok := r.sessions[identity]; ok && current.ID() == s.ID() {
		delete(r.sessions, identity)
		if members, ok := r.roles[s.Role()]; ok {
			delete(members, identity)
			// No empty sets left behind to avoid leaking role entries.
			if len(members) == 0 {
				delete(r.roles, s.Role())
			}
		}
	}

	for key := range r.watching[s.ID()] {
		if subs, ok := r.watchers[key]; ok {
			delete(subs, s.ID())
			if len(subs) == 0 {
				delete(r.watchers, key)
			}
		}
	}
	delete(r.watching, s.ID())
}
