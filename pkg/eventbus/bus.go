// Package eventbus implements the in-process typed pub/sub registry that
// decouples the confirmation tracker, isolated checker, graph attacher,
// mempool, and controller. It generalizes the teacher's
// StateChangeListener callback pattern (proof.ProofLifecycleManager,
// anchor/event_watcher.go) into a process-scoped registry of channels
// keyed by message kind, constructed once at node start and passed by
// shared handle.
package eventbus

import "context"

// Kind identifies a class of message carried on the bus. Each kind gets
// its own independent set of subscriber channels; delivery ordering is
// only guaranteed within a single kind.
type Kind string

const (
	// KindConfirmation carries confirmation.Event values published by the
	// confirmation tracker.
	KindConfirmation Kind = "confirmation"
	// KindAttached carries Attached(txid) notifications published by the
	// graph attacher once a transaction's full ancestry is persisted.
	KindAttached Kind = "attached"
	// KindInvalid carries Invalid(txid, reason) notifications published
	// whenever the mempool state machine terminates a transaction.
	KindInvalid Kind = "invalid"
	// KindMempoolTransition carries every mempool state transition, for
	// observers that want the full lifecycle rather than just the
	// terminal outcomes.
	KindMempoolTransition Kind = "mempool_transition"
	// KindGetData carries outbound parent-request messages the attacher
	// emits when a transaction is blocked on an unseen parent.
	KindGetData Kind = "getdata"
	// KindInventory carries outbound inventory announcements the
	// controller periodically shares with peers.
	KindInventory Kind = "inventory"
)

// Capacity selects how a kind's subscriber channels behave under load.
type Capacity int

const (
	// Bounded channels apply backpressure: Publish blocks until a slot is
	// free. This is the default for every kind unless configured
	// otherwise.
	Bounded Capacity = iota
	// Unbounded channels never block a publisher; messages queue in an
	// internal, dynamically growing buffer. Reserved for low-volume
	// control messages per the design notes — using it for high-volume
	// kinds defeats the backpressure the pipeline relies on.
	Unbounded
)

type subscriber struct {
	deliver chan any
	done    <-chan struct{}
}

// Bus is the process-scoped registry. The zero value is not usable; build
// one with New. A Bus is safe for concurrent use by any number of
// publishers and subscribers.
type Bus struct {
	mu          chan struct{} // binary semaphore; see lock/unlock below
	subscribers map[Kind][]*subscriber
	capacity    map[Kind]Capacity
	boundedSize int
}

// New builds a Bus whose Bounded channels carry boundedSize messages
// before a Publish call starts blocking. A boundedSize of 0 uses a
// documented default of 256.
func New(boundedSize int) *Bus {
	if boundedSize <= 0 {
		boundedSize = 256
	}
	b := &Bus{
		mu:          make(chan struct{}, 1),
		subscribers: make(map[Kind][]*subscriber),
		capacity:    make(map[Kind]Capacity),
		boundedSize: boundedSize,
	}
	b.mu <- struct{}{}
	return b
}

func (b *Bus) lock()   { <-b.mu }
func (b *Bus) unlock() { b.mu <- struct{}{} }

// Configure declares the capacity policy for kind. Call it before any
// Subscribe/Publish for that kind; kinds default to Bounded otherwise.
func (b *Bus) Configure(kind Kind, capacity Capacity) {
	b.lock()
	defer b.unlock()
	b.capacity[kind] = capacity
}

// Subscribe registers a new subscriber for kind and returns a
// receive-only channel of its messages. The channel is closed once ctx is
// cancelled; the subscription is removed from the registry at that point
// so a slow, abandoned subscriber cannot leak memory or block Publish
// forever.
func (b *Bus) Subscribe(ctx context.Context, kind Kind) <-chan any {
	b.lock()
	cap := b.capacity[kind]
	size := 1
	if cap == Bounded {
		size = b.boundedSize
	}
	raw := make(chan any, size)
	sub := &subscriber{deliver: raw, done: ctx.Done()}
	b.subscribers[kind] = append(b.subscribers[kind], sub)
	b.unlock()

	go func() {
		<-ctx.Done()
		b.removeSubscriber(kind, sub)
	}()

	if cap == Unbounded {
		return unboundedPump(ctx, raw)
	}
	return raw
}

func (b *Bus) removeSubscriber(kind Kind, target *subscriber) {
	b.lock()
	defer b.unlock()
	subs := b.subscribers[kind]
	for i, s := range subs {
		if s == target {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			close(s.deliver)
			return
		}
	}
}

// Publish delivers msg to every current subscriber of kind, independently.
// Delivery to a Bounded subscriber blocks until that subscriber has room
// or its context is cancelled; a cancelled subscriber is simply skipped.
// Publish never blocks on one slow subscriber indefinitely once that
// subscriber has torn down.
func (b *Bus) Publish(kind Kind, msg any) {
	b.lock()
	subs := append([]*subscriber(nil), b.subscribers[kind]...)
	b.unlock()

	for _, s := range subs {
		select {
		case s.deliver <- msg:
		case <-s.done:
		}
	}
}

// unboundedPump relays values from in to the returned channel through an
// internal, dynamically growing queue so that Publish never blocks for an
// Unbounded kind. It is only ever installed for low-volume control
// messages, per the design notes.
func unboundedPump(ctx context.Context, in <-chan any) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		var queue []any
		for {
			var sendCh chan any
			var next any
			if len(queue) > 0 {
				sendCh = out
				next = queue[0]
			}
			select {
			case v, ok := <-in:
				if !ok {
					for _, q := range queue {
						select {
						case out <- q:
						case <-ctx.Done():
							return
						}
					}
					return
				}
				queue = append(queue, v)
			case sendCh <- next:
				queue = queue[1:]
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
