package mempool

import (
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/yuvchain/yuvd/pkg/eventbus"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// fakeStore is a minimal in-memory Store used to exercise the lifecycle
// manager's transition logic without a real database.
type fakeStore struct {
	mu      sync.Mutex
	entries map[chainhash.Hash]struct {
		status byte
		body   []byte
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[chainhash.Hash]struct {
		status byte
		body   []byte
	})}
}

func (f *fakeStore) PutMempoolEntry(txid chainhash.Hash, status byte, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[txid] = struct {
		status byte
		body   []byte
	}{status, body}
	return nil
}

func (f *fakeStore) CASMempoolStatus(txid chainhash.Hash, wantStatus, newStatus byte, newBody []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[txid]
	if !ok {
		return storage.ErrNotFound
	}
	if e.status != wantStatus {
		return storage.ErrCASMismatch
	}
	f.entries[txid] = struct {
		status byte
		body   []byte
	}{newStatus, newBody}
	return nil
}

func (f *fakeStore) GetMempoolEntry(txid chainhash.Hash) (byte, []byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[txid]
	if !ok {
		return 0, nil, false, nil
	}
	return e.status, e.body, true, nil
}

func (f *fakeStore) DeleteMempoolEntry(txid chainhash.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, txid)
	return nil
}

func (f *fakeStore) ListMempoolByStatus(status byte) ([]chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chainhash.Hash
	for txid, e := range f.entries {
		if e.status == status {
			out = append(out, txid)
		}
	}
	return out, nil
}

func testTx(t *testing.T) *txtypes.TokenTransaction {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x00, 0x14}))
	return &txtypes.TokenTransaction{
		BitcoinTx: tx,
		TxType:    &txtypes.Transfer{},
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	store := newFakeStore()
	bus := eventbus.New(0)
	m := New(store, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transitions := bus.Subscribe(ctx, eventbus.KindMempoolTransition)

	txid := chainhash.Hash{0x01}
	if err := m.Admit(txid, testTx(t)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := m.MarkWaitingMined(txid); err != nil {
		t.Fatalf("waiting mined: %v", err)
	}
	if err := m.MarkMined(txid); err != nil {
		t.Fatalf("mined: %v", err)
	}
	if err := m.MarkAttaching(txid); err != nil {
		t.Fatalf("attaching: %v", err)
	}
	if err := m.Attached(txid); err != nil {
		t.Fatalf("attached: %v", err)
	}

	status, _, found, err := m.Entry(txid)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if found {
		t.Errorf("expected entry gone after attach, got status %s", status)
	}

	seen := make(map[Status]bool)
	for i := 0; i < 5; i++ {
		select {
		case v := <-transitions:
			seen[v.(Transition).To] = true
		default:
			t.Fatalf("expected 5 transition events, got %d", i)
		}
	}
	for _, want := range []Status{StatusInitialized, StatusWaitingMined, StatusMined, StatusAttaching, StatusAttached} {
		if !seen[want] {
			t.Errorf("expected a transition event to %s", want)
		}
	}
}

func TestLifecycleRejectsInvalidTransition(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)

	txid := chainhash.Hash{0x02}
	if err := m.Admit(txid, testTx(t)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	// Initialized -> Attaching is not a valid edge.
	if err := m.MarkAttaching(txid); err == nil {
		t.Error("expected invalid transition to be rejected")
	}
}

func TestLifecycleOrphanReturnsToWaitingMined(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)

	txid := chainhash.Hash{0x03}
	if err := m.Admit(txid, testTx(t)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := m.MarkWaitingMined(txid); err != nil {
		t.Fatalf("waiting mined: %v", err)
	}
	if err := m.MarkMined(txid); err != nil {
		t.Fatalf("mined: %v", err)
	}
	if err := m.MarkOrphaned(txid); err != nil {
		t.Fatalf("orphaned: %v", err)
	}
	status, _, found, err := m.Entry(txid)
	if err != nil || !found {
		t.Fatalf("entry: found=%v err=%v", found, err)
	}
	if status != StatusWaitingMined {
		t.Errorf("expected WaitingMined after orphan, got %s", status)
	}
}

func TestLifecycleMarkInvalidFromInitialized(t *testing.T) {
	store := newFakeStore()
	bus := eventbus.New(0)
	m := New(store, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	invalids := bus.Subscribe(ctx, eventbus.KindInvalid)

	txid := chainhash.Hash{0x04}
	if err := m.Admit(txid, testTx(t)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := m.MarkInvalid(txid, "bad conservation"); err != nil {
		t.Fatalf("mark invalid: %v", err)
	}

	select {
	case v := <-invalids:
		if v.(chainhash.Hash) != txid {
			t.Errorf("unexpected invalid txid: %v", v)
		}
	default:
		t.Fatal("expected an invalid-kind publish")
	}
}
