// Package storage implements the six persistence traits the pipeline
// needs (attached transactions, mempool, chroma metadata, frozen
// outpoints, the per-chroma page index, and the recent-blocks window)
// as namespaced regions of a single CometBFT key-value database,
// following the teacher's kvdb.KVAdapter-over-ledger.LedgerStore
// layering. Unlike the teacher, which wraps dbm.DB behind a narrow KV
// interface, Store talks to dbm.DB directly: the extra trait surface
// here (status-indexed scans, atomic multi-key batches) needs Iterator
// and Batch, which the teacher's two-method KV interface does not
// expose.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/confirmation"
	"github.com/yuvchain/yuvd/pkg/txtypes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrNotFound is returned by single-key reads when the key is absent.
var ErrNotFound = errors.New("storage: not found")

// Store is the concrete KV-backed implementation of every storage trait.
// Each high-level operation takes storeMu for its duration, matching the
// "per-store coarse locking sufficient to make each high-level operation
// atomic" policy; dbm.DB's own Batch gives atomicity across the keys a
// single operation touches.
type Store struct {
	db dbm.DB
	mu sync.Mutex
}

// New wraps an already-open CometBFT database.
func New(db dbm.DB) *Store {
	return &Store{db: db}
}

// Open creates or opens a CometBFT-backed database of the given backend
// type (e.g. "goleveldb", "memdb") rooted at dir, following
// dbm.NewDB's (name, backend, dir) convention.
func Open(backend dbm.BackendType, name, dir string) (*Store, error) {
	db, err := dbm.NewDB(name, backend, dir)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	return New(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---- attached transactions ----

// GetAttachedTx returns the persisted token transaction for txid.
func (s *Store) GetAttachedTx(txid chainhash.Hash) (*txtypes.TokenTransaction, bool, error) {
	b, err := s.db.Get(attachedTxKey(txid))
	if err != nil {
		return nil, false, err
	}
	if b == nil {
		return nil, false, nil
	}
	tx, err := decodeTokenTx(b)
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

// AttachResult bundles everything the graph attacher needs to persist
// atomically when a transaction's ancestry fully resolves: the
// transaction record itself, the page-index append for every chroma it
// moves, any newly frozen outpoints, and a chroma supply increment for
// issuances.
type AttachResult struct {
	Txid               chainhash.Hash
	Tx                 *txtypes.TokenTransaction
	PageAppends        map[chroma.Chroma][]byte // opaque per-page append payloads
	FreezeOutpoints    []FreezeOutpoint
	SupplyIncrement    *SupplyIncrement
	ChromaRegistration *chroma.Metadata
	IssuerUpdate       *IssuerUpdate
}

// IssuerUpdate names a chroma whose issuer key is rewritten as part of
// this attach, by a Transfer-ownership announcement.
type IssuerUpdate struct {
	Chroma       chroma.Chroma
	NewIssuerKey []byte
}

// FreezeOutpoint names a single output newly marked frozen.
type FreezeOutpoint struct {
	Txid chainhash.Hash
	Vout uint32
}

// SupplyIncrement names a chroma whose running issued supply grows by
// Amount as part of this attach.
type SupplyIncrement struct {
	Chroma chroma.Chroma
	Amount uint64
}

// Attach persists an AttachResult as a single atomic batch: the
// transaction record, page-index appends, frozen-outpoint markers, and
// the chroma supply update all land together or not at all, so a crash
// mid-attach can never leave the graph attacher's Q/S/D/I state and the
// durable store disagreeing about whether a transaction attached.
func (s *Store) Attach(r AttachResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	txBytes, err := encodeTokenTx(r.Tx)
	if err != nil {
		return err
	}
	if err := batch.Set(attachedTxKey(r.Txid), txBytes); err != nil {
		return err
	}
	// the transaction is attached; drop its mempool bookkeeping, including
	// the status-indexed secondary key, or ListMempoolByStatus keeps
	// surfacing this txid under its last pre-attach status forever.
	if err := s.clearMempoolIndexLocked(batch, r.Txid); err != nil {
		return err
	}
	if err := batch.Delete(mempoolKey(r.Txid)); err != nil {
		return err
	}

	for c, payload := range r.PageAppends {
		if err := s.appendPageLocked(batch, c, payload); err != nil {
			return err
		}
	}
	for _, fo := range r.FreezeOutpoints {
		if err := batch.Set(frozenKey(fo.Txid, fo.Vout), []byte{0x01}); err != nil {
			return err
		}
	}
	if r.ChromaRegistration != nil {
		if err := s.registerChromaLocked(batch, r.ChromaRegistration); err != nil {
			return err
		}
	}
	if r.IssuerUpdate != nil {
		if err := s.updateChromaIssuerLocked(batch, r.IssuerUpdate.Chroma, r.IssuerUpdate.NewIssuerKey); err != nil {
			return err
		}
	}
	if r.SupplyIncrement != nil {
		if err := s.incrementChromaSupplyLocked(batch, r.SupplyIncrement.Chroma, r.SupplyIncrement.Amount); err != nil {
			return err
		}
	}

	return batch.WriteSync()
}

// ---- mempool ----

// encodeMempoolRecord packs a status byte and caller-owned body into the
// single value stored under a mempool key. The mempool package owns the
// body's shape and the Status enum; storage only needs the leading byte
// to maintain the secondary status index.
func encodeMempoolRecord(status byte, body []byte) []byte {
	out := make([]byte, 0, 1+len(body))
	out = append(out, status)
	out = append(out, body...)
	return out
}

func decodeMempoolRecordBytes(b []byte) (byte, []byte, error) {
	if len(b) < 1 {
		return 0, nil, fmt.Errorf("storage: empty mempool record")
	}
	return b[0], b[1:], nil
}

// PutMempoolEntry stores or overwrites the mempool record for txid under
// status, maintaining the status secondary index atomically. The caller
// supplies body pre-encoded (the mempool package owns its own entry
// shape); storage only indexes on the leading status byte.
func (s *Store) PutMempoolEntry(txid chainhash.Hash, status byte, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := s.clearMempoolIndexLocked(batch, txid); err != nil {
		return err
	}
	if err := batch.Set(mempoolKey(txid), encodeMempoolRecord(status, body)); err != nil {
		return err
	}
	if err := batch.Set(mempoolStatusKey(status, txid), []byte{}); err != nil {
		return err
	}
	return batch.WriteSync()
}

// CASMempoolStatus atomically transitions txid from wantStatus to
// newStatus with newBody, failing with ErrCASMismatch if the entry's
// current status differs from wantStatus. This is the durability
// primitive the mempool state machine's TransitionState calls on every
// edge, mirroring the teacher's ProofLifecycleManager.TransitionState
// validate-then-write shape but enforced at the storage layer so two
// concurrent transition attempts can never both succeed.
func (s *Store) CASMempoolStatus(txid chainhash.Hash, wantStatus, newStatus byte, newBody []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.db.Get(mempoolKey(txid))
	if err != nil {
		return err
	}
	if cur == nil {
		return ErrNotFound
	}
	status, _, err := decodeMempoolRecordBytes(cur)
	if err != nil {
		return err
	}
	if status != wantStatus {
		return ErrCASMismatch
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(mempoolStatusKey(wantStatus, txid)); err != nil {
		return err
	}
	if err := batch.Set(mempoolKey(txid), encodeMempoolRecord(newStatus, newBody)); err != nil {
		return err
	}
	if err := batch.Set(mempoolStatusKey(newStatus, txid), []byte{}); err != nil {
		return err
	}
	return batch.WriteSync()
}

// ErrCASMismatch is returned by CASMempoolStatus when the entry's
// observed status does not match the expected one, signalling the
// caller raced another transition and should reload and retry.
var ErrCASMismatch = errors.New("storage: mempool status mismatch")

// GetMempoolEntry returns the current status byte and body for txid.
func (s *Store) GetMempoolEntry(txid chainhash.Hash) (status byte, body []byte, found bool, err error) {
	b, err := s.db.Get(mempoolKey(txid))
	if err != nil {
		return 0, nil, false, err
	}
	if b == nil {
		return 0, nil, false, nil
	}
	status, body, err = decodeMempoolRecordBytes(b)
	return status, body, true, err
}

// DeleteMempoolEntry removes txid's mempool bookkeeping entirely, used
// by the mempool manager's Attached; it does nothing when the entry is
// already gone.
func (s *Store) DeleteMempoolEntry(txid chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.db.Get(mempoolKey(txid))
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	status, _, err := decodeMempoolRecordBytes(cur)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(mempoolKey(txid)); err != nil {
		return err
	}
	if err := batch.Delete(mempoolStatusKey(status, txid)); err != nil {
		return err
	}
	return batch.WriteSync()
}

// ListMempoolByStatus returns every txid currently indexed under status.
func (s *Store) ListMempoolByStatus(status byte) ([]chainhash.Hash, error) {
	prefix := mempoolStatusPrefix(status)
	end := prefixUpperBound(prefix)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []chainhash.Hash
	for ; it.Valid(); it.Next() {
		key := it.Key()
		if len(key) < len(prefix)+32 {
			continue
		}
		var h chainhash.Hash
		copy(h[:], key[len(prefix):])
		out = append(out, h)
	}
	return out, it.Error()
}

func (s *Store) clearMempoolIndexLocked(batch dbm.Batch, txid chainhash.Hash) error {
	cur, err := s.db.Get(mempoolKey(txid))
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	status, _, err := decodeMempoolRecordBytes(cur)
	if err != nil {
		return err
	}
	return batch.Delete(mempoolStatusKey(status, txid))
}

// ---- chroma metadata ----

// Chroma implements checker.Registry: it returns the registered metadata
// for c, satisfying the isolated checker's read-only view of chroma
// state without the checker package importing storage.
func (s *Store) Chroma(c chroma.Chroma) (*chroma.Metadata, bool) {
	b, err := s.db.Get(chromaKey(c))
	if err != nil || b == nil {
		return nil, false
	}
	m, err := decodeChromaState(b)
	if err != nil {
		return nil, false
	}
	return m, true
}

// RegisterChroma creates a new chroma metadata record. It fails if c is
// already registered; chroma registration is append-only, matching the
// checker's DuplicateRegistration rule.
func (s *Store) RegisterChroma(m *chroma.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.registerChromaLocked(batch, m); err != nil {
		return err
	}
	return batch.WriteSync()
}

// registerChromaLocked is RegisterChroma's batch-scoped body, callable
// from within Attach's already-held lock and already-open batch so a
// Chroma-metadata announcement's registration lands atomically with the
// rest of its attach.
func (s *Store) registerChromaLocked(batch dbm.Batch, m *chroma.Metadata) error {
	key := chromaKey(m.Chroma)
	existing, err := s.db.Get(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("storage: chroma %s already registered", m.Chroma)
	}
	return batch.Set(key, encodeChromaState(m))
}

// UpdateChromaIssuer rewrites the issuer key on an already-registered
// chroma, used when a TransferOwnership announcement attaches.
func (s *Store) UpdateChromaIssuer(c chroma.Chroma, newIssuerKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.updateChromaIssuerLocked(batch, c, newIssuerKey); err != nil {
		return err
	}
	return batch.WriteSync()
}

// updateChromaIssuerLocked is UpdateChromaIssuer's batch-scoped body, used
// the same way registerChromaLocked is from within Attach.
func (s *Store) updateChromaIssuerLocked(batch dbm.Batch, c chroma.Chroma, newIssuerKey []byte) error {
	b, err := s.db.Get(chromaKey(c))
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("storage: chroma %s not registered", c)
	}
	m, err := decodeChromaState(b)
	if err != nil {
		return err
	}
	m.IssuerKey = newIssuerKey
	return batch.Set(chromaKey(c), encodeChromaState(m))
}

func (s *Store) incrementChromaSupplyLocked(batch dbm.Batch, c chroma.Chroma, amount uint64) error {
	b, err := s.db.Get(chromaKey(c))
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("storage: chroma %s not registered", c)
	}
	m, err := decodeChromaState(b)
	if err != nil {
		return err
	}
	m.TotalSupply += amount
	return batch.Set(chromaKey(c), encodeChromaState(m))
}

// ---- frozen outpoints ----

// IsFrozen reports whether the given output has been marked frozen by a
// Freeze announcement.
func (s *Store) IsFrozen(txid chainhash.Hash, vout uint32) (bool, error) {
	b, err := s.db.Get(frozenKey(txid, vout))
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// Freeze marks the given output frozen.
func (s *Store) Freeze(txid chainhash.Hash, vout uint32) error {
	return s.db.SetSync(frozenKey(txid, vout), []byte{0x01})
}

// ---- page index ----

// appendPageLocked appends payload to the tail page for c, rolling over
// to a new page when the tail exceeds pageSizeLimit. The caller holds
// s.mu.
func (s *Store) appendPageLocked(batch dbm.Batch, c chroma.Chroma, payload []byte) error {
	tailBytes, err := s.db.Get(pageTailKey(c))
	if err != nil {
		return err
	}
	var tail uint32
	if tailBytes != nil {
		tail = binary.BigEndian.Uint32(tailBytes)
	}

	existing, err := s.db.Get(pageKey(c, tail))
	if err != nil {
		return err
	}

	const pageSizeLimit = 64 * 1024
	if len(existing)+len(payload) > pageSizeLimit && len(existing) > 0 {
		tail++
		existing = nil
	}

	next := append(append([]byte(nil), existing...), payload...)
	if err := batch.Set(pageKey(c, tail), next); err != nil {
		return err
	}
	var tb [4]byte
	binary.BigEndian.PutUint32(tb[:], tail)
	return batch.Set(pageTailKey(c), tb[:])
}

// ReadPage returns the raw bytes stored in page number of chroma c's
// index, and whether that page exists.
func (s *Store) ReadPage(c chroma.Chroma, page uint32) ([]byte, bool, error) {
	b, err := s.db.Get(pageKey(c, page))
	if err != nil {
		return nil, false, err
	}
	return b, b != nil, nil
}

// TailPage returns the highest page number written for c, and whether
// any page has been written at all.
func (s *Store) TailPage(c chroma.Chroma) (uint32, bool, error) {
	b, err := s.db.Get(pageTailKey(c))
	if err != nil {
		return 0, false, err
	}
	if b == nil {
		return 0, false, nil
	}
	return binary.BigEndian.Uint32(b), true, nil
}

// ---- recent blocks window ----

type blockInfoRecord struct {
	Hash     string   `json:"hash"`
	PrevHash string   `json:"prev_hash"`
	Height   int64    `json:"height"`
	Txids    []string `json:"txids"`
}

// SaveRecentBlocks persists the confirmation tracker's current sliding
// window so a restart can resume without re-deriving it from the chain.
func (s *Store) SaveRecentBlocks(window []*confirmation.BlockInfo) error {
	recs := make([]blockInfoRecord, len(window))
	for i, b := range window {
		txids := make([]string, len(b.Txids))
		for j, t := range b.Txids {
			txids[j] = hashHex(t)
		}
		recs[i] = blockInfoRecord{
			Hash:     hashHex(b.Hash),
			PrevHash: hashHex(b.PrevHash),
			Height:   b.Height,
			Txids:    txids,
		}
	}
	payload, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return s.db.SetSync(keyRecentBlocks, encodeEnvelope(payload))
}

// LoadRecentBlocks restores the confirmation tracker's sliding window
// persisted by SaveRecentBlocks, or returns an empty window if none was
// ever saved.
func (s *Store) LoadRecentBlocks() ([]*confirmation.BlockInfo, error) {
	b, err := s.db.Get(keyRecentBlocks)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	payload, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	var recs []blockInfoRecord
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, err
	}
	out := make([]*confirmation.BlockInfo, len(recs))
	for i, r := range recs {
		hash, err := hashFromHex(r.Hash)
		if err != nil {
			return nil, err
		}
		prev, err := hashFromHex(r.PrevHash)
		if err != nil {
			return nil, err
		}
		txids := make([]chainhash.Hash, len(r.Txids))
		for j, t := range r.Txids {
			txids[j], err = hashFromHex(t)
			if err != nil {
				return nil, err
			}
		}
		out[i] = &confirmation.BlockInfo{Hash: hash, PrevHash: prev, Height: r.Height, Txids: txids}
	}
	return out, nil
}

// prefixUpperBound returns the smallest key strictly greater than every
// key with the given prefix, for use as an Iterator's exclusive end
// bound. A prefix of all 0xff bytes has no such bound and yields nil,
// which CometBFT's Iterator treats as "no upper limit".
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
