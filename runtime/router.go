package runtime

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"support-hub/contract"
	"support-hub/domain"
	"support-hub/observability"
	"support-hub/repositories"
)

const lockStripes = 64

// Router is the single delivery decision point. Every payload is appended to
// the delivery store first (the durability point), then pushed to whichever
// live sessions match the target. The dual write keeps history complete no
// matter who was online: a reconnecting client or a late-joining agent reads
// the same log the live recipients saw.
type Router struct {
	log      *slog.Logger
	registry contract.IRegistry
	store    repositories.IDeliveryStore
	monitor  *observability.Monitor

	pushTimeout time.Duration

	// Striped per-key locks: deliveries on one key are serialized so store
	// order equals push order, deliveries on unrelated keys proceed in
	// parallel (modulo stripe collisions).
	locks [lockStripes]sync.Mutex
}

func NewRouter(log *slog.Logger, registry contract.IRegistry,
	store repositories.IDeliveryStore, monitor *observability.Monitor,
	pushTimeout time.Duration) *Router {
	return &Router{
		log:         log,
		registry:    registry,
		store:       store,
		monitor:     monitor,
		pushTimeout: pushTimeout,
	}
}

// Deliver appends the entry under key, then pushes it to every live session
// matching the target plus the key's subscribers, fire-and-forget. A push
// failure marks the session dead and unregisters it; it never fails the
// delivery, the entry is already durable. Returns an error only when the
// store append fails, so bus consumers can withhold their commit.
func (r *Router) Deliver(ctx context.Context, target contract.Target, key domain.Key, entry domain.Entry) error {
	lock := &r.locks[stripe(key)]
	lock.Lock()
	defer lock.Unlock()

	if err := r.store.Append(key, entry); err != nil {
		return err
	}

	recipients := r.resolve(target, key)
	if len(recipients) == 0 {
		r.monitor.IncrStoredOffline()
		r.log.Debug("No live recipient, stored only", "key", string(key))
		return nil
	}

	frame := domain.FrameFor(entry)
	for _, s := range recipients {
		r.push(ctx, s, frame, key)
	}
	return nil
}

// PushEphemeral forwards a frame to the target's live sessions without
// touching the store. Used for typing signals: best effort, no persistence,
// no error reporting to the sender.
func (r *Router) PushEphemeral(ctx context.Context, target contract.Target, key domain.Key, frame domain.Frame) {
	for _, s := range r.resolve(target, key) {
		r.push(ctx, s, frame, key)
	}
}

// resolve unions the exact-identity session, the role group and the key's
// subscribers, deduplicated per connection.
func (r *Router) resolve(target contract.Target, key domain.Key) []contract.Session {
	seen := make(map[string]struct{})
	var out []contract.Session

	add := func(s contract.Session) {
		if _, dup := seen[s.ID()]; dup {
			return
		}
		seen[s.ID()] = struct{}{}
		out = append(out, s)
	}

	if target.Identity != "" {
		if s, ok := r.registry.Lookup(target.Identity); ok {
			add(s)
		}
	}
	if target.Role != "" {
		for _, s := range r.registry.LookupRole(target.Role) {
			add(s)
		}
	}
	for _, s := range r.registry.Watchers(key) {
		add(s)
	}
	return out
}

func (r *Router) push(ctx context.Context, s contract.Session, frame domain.Frame, key domain.Key) {
	pushCtx, cancel := context.WithTimeout(ctx, r.pushTimeout)
	defer cancel()

	if err := s.Send(pushCtx, frame); err != nil {
		// A session that cannot absorb a bounded send is considered dead.
		// The entry is already in the store, nothing is lost.
		r.monitor.IncrPushFailures()
		r.log.Warn("Push failed, evicting session",
			"identity", s.Identity(),
			"key", string(key),
			"error", err)
		r.registry.Unregister(s)
		s.Close()
		return
	}
	r.monitor.IncrDeliveredLive()
}

func stripe(key domain.Key) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % lockStripes
}
