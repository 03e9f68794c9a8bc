package confirmation

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yuvchain/yuvd/pkg/eventbus"
)

// fakeProvider serves a fixed chain of blocks keyed by hash, standing in
// for the chain-client collaborator during a reorg walk-back.
type fakeProvider struct {
	blocks map[chainhash.Hash]*BlockInfo
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{blocks: make(map[chainhash.Hash]*BlockInfo)}
}

func (p *fakeProvider) add(b *BlockInfo) {
	p.blocks[b.Hash] = b
}

func (p *fakeProvider) BlockByHash(hash chainhash.Hash) (*BlockInfo, error) {
	b, ok := p.blocks[hash]
	if !ok {
		return nil, errWindowExhausted
	}
	return b, nil
}

func hashN(n byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = n
	return h
}

func txidN(n byte) chainhash.Hash {
	var h chainhash.Hash
	h[31] = n
	return h
}

// subscribeConfirmations registers a confirmation subscriber for the rest
// of the test. The bus only delivers to subscribers that exist when an
// event is published, so each test subscribes before driving the tracker.
func subscribeConfirmations(t *testing.T, bus *eventbus.Bus) <-chan any {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return bus.Subscribe(ctx, eventbus.KindConfirmation)
}

func collectEvents(t *testing.T, ch <-chan any, n int) []Event {
	t.Helper()
	var out []Event
	for i := 0; i < n; i++ {
		select {
		case v := <-ch:
			out = append(out, v.(Event))
		default:
			t.Fatalf("expected %d confirmation events, got %d", n, i)
		}
	}
	return out
}

func TestTrackerNormalPathEmitsConfirmedThenFullyConfirmed(t *testing.T) {
	bus := eventbus.New(0)
	sub := subscribeConfirmations(t, bus)
	tr := NewTracker(newFakeProvider(), bus, 2)

	b0 := &BlockInfo{Hash: hashN(1), PrevHash: hashN(0), Txids: []chainhash.Hash{txidN(1)}}
	b1 := &BlockInfo{Hash: hashN(2), PrevHash: hashN(1), Txids: []chainhash.Hash{txidN(2)}}
	b2 := &BlockInfo{Hash: hashN(3), PrevHash: hashN(2), Txids: []chainhash.Hash{txidN(3)}}

	if err := tr.ProcessBlock(b0); err != nil {
		t.Fatalf("process b0: %v", err)
	}
	if err := tr.ProcessBlock(b1); err != nil {
		t.Fatalf("process b1: %v", err)
	}
	// window now at depth (2); b2 pushes b0 off the trailing edge.
	if err := tr.ProcessBlock(b2); err != nil {
		t.Fatalf("process b2: %v", err)
	}

	events := collectEvents(t, sub, 4)
	var confirmed, fullyConfirmed int
	for _, e := range events {
		switch e.Kind {
		case EventConfirmed:
			confirmed++
		case EventFullyConfirmed:
			fullyConfirmed++
			if e.Txid != txidN(1) {
				t.Errorf("expected fully-confirmed txid1, got %v", e.Txid)
			}
		}
	}
	if confirmed != 3 {
		t.Errorf("expected 3 first-confirmation events, got %d", confirmed)
	}
	if fullyConfirmed != 1 {
		t.Errorf("expected 1 fully-confirmed event, got %d", fullyConfirmed)
	}
	if got := tr.WindowLen(); got != 2 {
		t.Errorf("expected window len 2, got %d", got)
	}
}

func TestTrackerShallowReorgOrphansAndReplays(t *testing.T) {
	bus := eventbus.New(0)
	sub := subscribeConfirmations(t, bus)
	tr := NewTracker(newFakeProvider(), bus, 3)

	b0 := &BlockInfo{Hash: hashN(1), PrevHash: hashN(0)}
	b1 := &BlockInfo{Hash: hashN(2), PrevHash: hashN(1), Txids: []chainhash.Hash{txidN(2)}}
	b2 := &BlockInfo{Hash: hashN(3), PrevHash: hashN(2), Txids: []chainhash.Hash{txidN(3)}}

	for _, b := range []*BlockInfo{b0, b1, b2} {
		if err := tr.ProcessBlock(b); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	collectEvents(t, sub, 2) // drain the normal-path confirmations (b0 has no txids)

	// Competing block at the same height as b2, extending b1 directly.
	b2alt := &BlockInfo{Hash: hashN(30), PrevHash: hashN(2), Txids: []chainhash.Hash{txidN(30)}}
	if err := tr.ProcessBlock(b2alt); err != nil {
		t.Fatalf("process reorg block: %v", err)
	}

	events := collectEvents(t, sub, 2)
	var sawOrphan, sawConfirmedAlt bool
	for _, e := range events {
		if e.Kind == EventOrphaned && e.Txid == txidN(3) {
			sawOrphan = true
		}
		if e.Kind == EventConfirmed && e.Txid == txidN(30) {
			sawConfirmedAlt = true
		}
	}
	if !sawOrphan {
		t.Error("expected txid3 to be orphaned")
	}
	if !sawConfirmedAlt {
		t.Error("expected txid30 to be confirmed on the new tip")
	}
	if got := tr.WindowLen(); got != 3 {
		t.Errorf("expected window len 3, got %d", got)
	}
}

func TestTrackerDeepReorgWalksBackThroughProvider(t *testing.T) {
	bus := eventbus.New(0)
	sub := subscribeConfirmations(t, bus)
	provider := newFakeProvider()
	tr := NewTracker(provider, bus, 4)

	b0 := &BlockInfo{Hash: hashN(1), PrevHash: hashN(0)}
	b1 := &BlockInfo{Hash: hashN(2), PrevHash: hashN(1)}
	b2 := &BlockInfo{Hash: hashN(3), PrevHash: hashN(2), Txids: []chainhash.Hash{txidN(3)}}
	b3 := &BlockInfo{Hash: hashN(4), PrevHash: hashN(3), Txids: []chainhash.Hash{txidN(4)}}

	for _, b := range []*BlockInfo{b0, b1, b2, b3} {
		if err := tr.ProcessBlock(b); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	collectEvents(t, sub, 2) // b2 and b3 confirmations; b0 and b1 have no txids

	// New chain forks off b1: b2' -> b3', neither known to the window yet.
	// ProcessBlock only sees the new tip; the tracker must walk back via
	// the provider to discover b2' and the common ancestor b1.
	b2New := &BlockInfo{Hash: hashN(30), PrevHash: hashN(2), Txids: []chainhash.Hash{txidN(31)}}
	b3New := &BlockInfo{Hash: hashN(40), PrevHash: hashN(30), Txids: []chainhash.Hash{txidN(41)}}
	provider.add(b0)
	provider.add(b1)
	provider.add(b2New)

	if err := tr.ProcessBlock(b3New); err != nil {
		t.Fatalf("process deep reorg tip: %v", err)
	}

	events := collectEvents(t, sub, 4)
	var orphaned, confirmed int
	sawTxid31, sawTxid41 := false, false
	for _, e := range events {
		switch e.Kind {
		case EventOrphaned:
			orphaned++
		case EventConfirmed:
			confirmed++
			if e.Txid == txidN(31) {
				sawTxid31 = true
			}
			if e.Txid == txidN(41) {
				sawTxid41 = true
			}
		}
	}
	if orphaned != 2 {
		t.Errorf("expected 2 orphaned transactions (b2, b3), got %d", orphaned)
	}
	if confirmed != 2 {
		t.Errorf("expected 2 first-confirmations on the new suffix, got %d", confirmed)
	}
	if !sawTxid31 || !sawTxid41 {
		t.Error("expected both new-suffix transactions to confirm")
	}
	if got := tr.WindowLen(); got != 4 {
		t.Errorf("expected window len 4, got %d", got)
	}
}

func TestTrackerReorgExceedingWindowIsFatal(t *testing.T) {
	bus := eventbus.New(0)
	sub := subscribeConfirmations(t, bus)
	provider := newFakeProvider()
	tr := NewTracker(provider, bus, 2)

	b0 := &BlockInfo{Hash: hashN(1), PrevHash: hashN(0)}
	b1 := &BlockInfo{Hash: hashN(2), PrevHash: hashN(1)}
	for _, b := range []*BlockInfo{b0, b1} {
		if err := tr.ProcessBlock(b); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	collectEvents(t, sub, 0) // b0 and b1 carry no txids, so nothing was published

	// A tip whose ancestry the provider cannot resolve back into the
	// window at all: the walk exhausts the window without a match.
	tip := &BlockInfo{Hash: hashN(99), PrevHash: hashN(98)}
	if err := tr.ProcessBlock(tip); err == nil {
		t.Error("expected a fatal error when the reorg exceeds the window depth")
	}
}
