package controller

import (
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/yuvchain/yuvd/pkg/attacher"
	"github.com/yuvchain/yuvd/pkg/checker"
	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/confirmation"
	"github.com/yuvchain/yuvd/pkg/eventbus"
	"github.com/yuvchain/yuvd/pkg/mempool"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// fakeStore backs both controller.Store and attacher.Store for these
// tests, mirroring the narrow structural interfaces storage.Store
// satisfies in production.
type fakeStore struct {
	mu       sync.Mutex
	attached map[chainhash.Hash]*txtypes.TokenTransaction
	frozen   map[chainhash.Hash]map[uint32]bool
	chromas  map[chroma.Chroma]*chroma.Metadata
	pages    map[chroma.Chroma]map[uint32][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attached: make(map[chainhash.Hash]*txtypes.TokenTransaction),
		frozen:   make(map[chainhash.Hash]map[uint32]bool),
		chromas:  make(map[chroma.Chroma]*chroma.Metadata),
		pages:    make(map[chroma.Chroma]map[uint32][]byte),
	}
}

func (f *fakeStore) GetAttachedTx(txid chainhash.Hash) (*txtypes.TokenTransaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.attached[txid]
	return tx, ok, nil
}

func (f *fakeStore) Attach(r storage.AttachResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[r.Txid] = r.Tx
	for c, payload := range r.PageAppends {
		page := f.pages[c]
		if page == nil {
			page = make(map[uint32][]byte)
			f.pages[c] = page
		}
		page[uint32(len(page))] = append(page[uint32(len(page))], payload...)
	}
	return nil
}

func (f *fakeStore) IsFrozen(txid chainhash.Hash, vout uint32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frozen[txid][vout], nil
}

func (f *fakeStore) ReadPage(c chroma.Chroma, page uint32) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.pages[c][page]
	return raw, ok, nil
}

func (f *fakeStore) Chroma(c chroma.Chroma) (*chroma.Metadata, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.chromas[c]
	return m, ok
}

type fakeMempoolStore struct {
	mu      sync.Mutex
	entries map[chainhash.Hash]struct {
		status byte
		body   []byte
	}
}

func newFakeMempoolStore() *fakeMempoolStore {
	return &fakeMempoolStore{entries: make(map[chainhash.Hash]struct {
		status byte
		body   []byte
	})}
}

func (f *fakeMempoolStore) PutMempoolEntry(txid chainhash.Hash, status byte, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[txid] = struct {
		status byte
		body   []byte
	}{status, body}
	return nil
}

func (f *fakeMempoolStore) CASMempoolStatus(txid chainhash.Hash, wantStatus, newStatus byte, newBody []byte) error {
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

func (f *fakeMempoolStore) GetMempoolEntry(txid chainhash.Hash) (byte, []byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[txid]
	if !ok {
		return 0, nil, false, nil
	}
	return e.status, e.body, true, nil
}

func (f *fakeMempoolStore) DeleteMempoolEntry(txid chainhash.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, txid)
	return nil
}

func (f *fakeMempoolStore) ListMempoolByStatus(status byte) ([]chainhash.Hash, error) {
	return nil, nil
}

func newTestController(t *testing.T) (*Controller, *fakeStore, *mempool.Manager) {
	t.Helper()
	store := newFakeStore()
	bus := eventbus.New(0)
	mp := mempool.New(newFakeMempoolStore(), bus)
	ck := checker.New(false)
	at := attacher.New(store, bus, nil, mp, attacher.Config{})
	tracker := confirmation.NewTracker(noopProvider{}, bus, 1)
	ctrl := New(store, mp, ck, at, tracker, bus, nil, Config{PoolSize: 1})
	return ctrl, store, mp
}

type noopProvider struct{}

func (noopProvider) BlockByHash(hash chainhash.Hash) (*confirmation.BlockInfo, error) {
	return nil, nil
}

func testTokenTx(t *testing.T) *txtypes.TokenTransaction {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x00, 0x14}))
	return &txtypes.TokenTransaction{BitcoinTx: tx, TxType: &txtypes.Transfer{}}
}

func TestTxStatusReportsAttached(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	tx := testTokenTx(t)
	store.attached[tx.Txid()] = tx

	status, got, err := ctrl.TxStatus(tx.Txid())
	if err != nil {
		t.Fatalf("tx status: %v", err)
	}
	if status != StatusAttached {
		t.Errorf("expected StatusAttached, got %s", status)
	}
	if got != tx {
		t.Errorf("expected the attached transaction to be returned")
	}
}

func TestTxStatusReportsPendingFromMempool(t *testing.T) {
	ctrl, _, mp := newTestController(t)
	tx := testTokenTx(t)
	if err := mp.Admit(tx.Txid(), tx); err != nil {
		t.Fatalf("admit: %v", err)
	}

	status, got, err := ctrl.TxStatus(tx.Txid())
	if err != nil {
		t.Fatalf("tx status: %v", err)
	}
	if status != StatusPending {
		t.Errorf("expected StatusPending, got %s", status)
	}
	if got == nil {
		t.Fatal("expected a decoded transaction")
	}
}

func TestTxStatusReportsNoneWhenUnknown(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	status, got, err := ctrl.TxStatus(chainhash.Hash{0x09})
	if err != nil {
		t.Fatalf("tx status: %v", err)
	}
	if status != StatusNone || got != nil {
		t.Errorf("expected none/nil for an unknown txid, got %s/%v", status, got)
	}
}

func TestIsOutputFrozenPassesThrough(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	txid := chainhash.Hash{0x0a}
	store.frozen[txid] = map[uint32]bool{0: true}

	frozen, err := ctrl.IsOutputFrozen(txid, 0)
	if err != nil {
		t.Fatalf("is frozen: %v", err)
	}
	if !frozen {
		t.Error("expected output to be reported frozen")
	}
}

func TestRepresentativeChromaForIssue(t *testing.T) {
	var c chroma.Chroma
	c[0] = 0x11
	tx := &txtypes.TokenTransaction{
		TxType: &txtypes.Issue{Announcement: txtypes.ChromaMetadataAnnouncement{Chroma: c}},
	}
	if got := representativeChroma(tx); got != c {
		t.Errorf("expected the announced chroma %s, got %s", c, got)
	}
}

func TestRepresentativeChromaForAnnouncementVariants(t *testing.T) {
	var freezeChroma chroma.Chroma
	freezeChroma[0] = 0x22
	tx := &txtypes.TokenTransaction{
		TxType: &txtypes.Announcement{
			Variant: txtypes.AnnouncementFreeze,
			Freeze:  &txtypes.FreezeAnnouncement{Chroma: freezeChroma},
		},
	}
	if got := representativeChroma(tx); got != freezeChroma {
		t.Errorf("expected the freeze announcement's chroma %s, got %s", freezeChroma, got)
	}
}

func TestRepresentativeChromaIsZeroForEmptyTransfer(t *testing.T) {
	tx := &txtypes.TokenTransaction{TxType: &txtypes.Transfer{}}
	if got := representativeChroma(tx); !got.IsZero() {
		t.Errorf("expected the zero chroma for a transfer with no output proofs, got %s", got)
	}
}

func TestListPageDecodesGlobalIndex(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	tx := testTokenTx(t)
	txid := tx.Txid()
	store.attached[txid] = tx
	store.pages[chroma.Chroma{}] = map[uint32][]byte{0: txid[:]}

	txs, err := ctrl.ListPage(0)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(txs) != 1 || txs[0] != tx {
		t.Fatalf("expected the single attached transaction back, got %v", txs)
	}
}
