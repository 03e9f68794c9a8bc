// Package attacher implements the graph attacher: the incremental DAG
// builder that admits a checked transaction to persistent storage once
// every parent output it consumes is itself attached or is a
// protocol-external issuance root. It generalizes the teacher's
// batch.Collector/batch.Processor pair (pkg/batch/collector.go,
// pkg/batch/processor.go) from "accumulate transactions into a Merkle
// batch and anchor it on a timer" into "resolve a transaction's parent
// dependencies and persist it the moment its ancestry completes" — the
// same mutex-guarded in-memory accumulator feeding an atomic storage
// write, but the unit being assembled is a dependency graph rather than
// a Merkle tree.
package attacher

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/collaborators"
	"github.com/yuvchain/yuvd/pkg/eventbus"
	"github.com/yuvchain/yuvd/pkg/mempool"
	"github.com/yuvchain/yuvd/pkg/pixel"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// Store is the narrow persistence surface the attacher needs; storage.Store
// satisfies it structurally.
type Store interface {
	GetAttachedTx(txid chainhash.Hash) (*txtypes.TokenTransaction, bool, error)
	Attach(r storage.AttachResult) error
	IsFrozen(txid chainhash.Hash, vout uint32) (bool, error)
}

// Reason classifies why the attacher rejected a transaction outright
// (as opposed to merely queuing it on a missing parent).
type Reason string

const (
	ReasonFrozenInput       Reason = "Authorization/Frozen"
	ReasonParentsUnreachable Reason = "Dependency/ParentsUnreachable"
)

// pendingEntry is one transaction parked in S, waiting on at least one
// unresolved parent.
type pendingEntry struct {
	tx        *txtypes.TokenTransaction
	firstSeen time.Time
}

// Attacher owns Q/S/D/I exactly as spec.md §4.3 names them: Q is a
// channel standing in for the FIFO queue of transactions newly unblocked
// by a just-attached parent (single-task-owned, per the concurrency
// model's "the attacher's in-memory S/D/I/Q is single-task-owned"); S, D,
// and I are plain maps guarded by the same mutex as every other
// attacher-owned field.
type Attacher struct {
	store      Store
	bus        *eventbus.Bus
	chain      collaborators.ChainClient
	mempool    *mempool.Manager
	reversible bool

	mu sync.Mutex
	s  map[chainhash.Hash]*pendingEntry            // waiting on >=1 parent
	d  map[chainhash.Hash]map[chainhash.Hash]bool   // tx -> unresolved parent txids
	i  map[chainhash.Hash]map[chainhash.Hash]bool   // parent txid -> dependents in S
	q  chan chainhash.Hash                          // FIFO of txids just unblocked

	maxConfirmationTime time.Duration
	sweepInterval       time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	logger *log.Logger
}

// Config carries the attacher's tunable knobs, taken directly from the
// dynamic-config list in the design notes.
type Config struct {
	MaxConfirmationTime time.Duration
	SweepInterval        time.Duration
}

// New builds an Attacher over store, publishing Attached/GetData events
// on bus and consulting chain for protocol-external issuance roots.
func New(store Store, bus *eventbus.Bus, chain collaborators.ChainClient, mp *mempool.Manager, cfg Config) *Attacher {
	if cfg.MaxConfirmationTime <= 0 {
		cfg.MaxConfirmationTime = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	return &Attacher{
		store:               store,
		bus:                 bus,
		chain:               chain,
		mempool:             mp,
		s:                   make(map[chainhash.Hash]*pendingEntry),
		d:                   make(map[chainhash.Hash]map[chainhash.Hash]bool),
		i:                   make(map[chainhash.Hash]map[chainhash.Hash]bool),
		q:                   make(chan chainhash.Hash, 4096),
		maxConfirmationTime: cfg.MaxConfirmationTime,
		sweepInterval:       cfg.SweepInterval,
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
		logger:              log.New(os.Stderr, "[Attacher] ", log.LstdFlags),
	}
}

// Start runs the attacher's TTL sweep loop until ctx is cancelled.
func (a *Attacher) Start(ctx context.Context) {
	go a.sweepLoop(ctx)
}

// Stop cancels the sweep loop and waits for it to exit.
func (a *Attacher) Stop() {
	close(a.stopCh)
	<-a.doneCh
}

func (a *Attacher) sweepLoop(ctx context.Context) {
	defer close(a.doneCh)
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

// IngestBatch runs the per-batch algorithm of spec.md §4.3 step 1 over a
// freshly isolated-checked set of transactions, then drains Q.
func (a *Attacher) IngestBatch(txs []*txtypes.TokenTransaction) error {
	a.mu.Lock()
	for _, tx := range txs {
		if err := a.ingestOneLocked(tx); err != nil {
			a.mu.Unlock()
			return err
		}
	}
	a.mu.Unlock()
	return a.drainQueue()
}

func parentsOf(tx *txtypes.TokenTransaction) []chainhash.Hash {
	xfer, ok := tx.TxType.(*txtypes.Transfer)
	if !ok {
		return nil
	}
	seen := map[chainhash.Hash]bool{}
	var out []chainhash.Hash
	for _, ip := range xfer.InputProofs {
		h := ip.PrevOut.Hash
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

// ingestOneLocked handles a single incoming transaction under a.mu.
func (a *Attacher) ingestOneLocked(tx *txtypes.TokenTransaction) error {
	txid := tx.Txid()

	if frozen, err := a.anyInputFrozenLocked(tx); err != nil {
		return err
	} else if frozen {
		return a.rejectLocked(txid, ReasonFrozenInput)
	}

	parents := parentsOf(tx)
	if len(parents) == 0 {
		return a.attachLocked(txid, tx)
	}

	unresolved := map[chainhash.Hash]bool{}
	for _, p := range parents {
		_, attached, err := a.store.GetAttachedTx(p)
		if err != nil {
			return err
		}
		if attached {
			continue
		}
		external, err := a.isProtocolExternalRoot(p)
		if err != nil {
			return err
		}
		if external {
			continue
		}
		unresolved[p] = true
	}

	if len(unresolved) == 0 {
		return a.attachLocked(txid, tx)
	}

	a.s[txid] = &pendingEntry{tx: tx, firstSeen: time.Now()}
	a.d[txid] = unresolved
	for p := range unresolved {
		if a.i[p] == nil {
			a.i[p] = map[chainhash.Hash]bool{}
			a.requestParent(p)
		}
		a.i[p][txid] = true
	}
	return nil
}

// isProtocolExternalRoot reports whether outpoint txid refers to a plain
// Bitcoin coin rather than a previously attached token transaction —
// satisfying invariant 7's "or is a protocol-external issuance root"
// clause. A chain client is optional (tests may omit one); without it,
// every unresolved parent is treated as genuinely missing.
func (a *Attacher) isProtocolExternalRoot(txid chainhash.Hash) (bool, error) {
	if a.chain == nil {
		return false, nil
	}
	_, err := a.chain.GetRawTransaction(context.Background(), txid)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (a *Attacher) anyInputFrozenLocked(tx *txtypes.TokenTransaction) (bool, error) {
	xfer, ok := tx.TxType.(*txtypes.Transfer)
	if !ok {
		return false, nil
	}
	for _, ip := range xfer.InputProofs {
		frozen, err := a.store.IsFrozen(ip.PrevOut.Hash, ip.PrevOut.Index)
		if err != nil {
			return false, err
		}
		if frozen {
			return true, nil
		}
	}
	return false, nil
}

func (a *Attacher) requestParent(parent chainhash.Hash) {
	if a.bus != nil {
		a.bus.Publish(eventbus.KindGetData, parent)
	}
}

func (a *Attacher) rejectLocked(txid chainhash.Hash, reason Reason) error {
	if a.mempool != nil {
		return a.mempool.MarkInvalid(txid, string(reason))
	}
	return nil
}

// attachLocked persists tx, then enqueues every dependent this attach
// just unblocked for Q's drain pass.
func (a *Attacher) attachLocked(txid chainhash.Hash, tx *txtypes.TokenTransaction) error {
	result, err := buildAttachResult(txid, tx)
	if err != nil {
		return err
	}
	if err := a.store.Attach(*result); err != nil {
		return err
	}
	if a.mempool != nil {
		if err := a.mempool.Attached(txid); err != nil {
			return err
		}
	}
	if a.bus != nil {
		a.bus.Publish(eventbus.KindAttached, txid)
	}

	for dep := range a.i[txid] {
		select {
		case a.q <- dep:
		default:
			// Q's buffer only backpressures an absurdly large simultaneous
			// unblock; a full channel here means drainQueue is already
			// running behind and will pick dep up on its next full scan.
			a.logger.Printf("queue full, dropping fast-path unblock for %s", dep)
		}
	}
	delete(a.i, txid)
	return nil
}

// drainQueue implements spec.md §4.3 step 2: pop every dependent popped
// from Q, remove its just-attached parents from D, and attach it once D
// becomes empty.
func (a *Attacher) drainQueue() error {
	for {
		select {
		case dep := <-a.q:
			if err := a.tryUnblock(dep); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (a *Attacher) tryUnblock(txid chainhash.Hash) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.s[txid]
	if !ok {
		return nil
	}
	for p := range a.d[txid] {
		if _, attached, err := a.store.GetAttachedTx(p); err == nil && attached {
			delete(a.d[txid], p)
			if deps := a.i[p]; deps != nil {
				delete(deps, txid)
				if len(deps) == 0 {
					delete(a.i, p)
				}
			}
		}
	}
	if len(a.d[txid]) > 0 {
		return nil
	}

	delete(a.s, txid)
	delete(a.d, txid)
	return a.attachLocked(txid, entry.tx)
}

// ResolveParent re-runs the unblock check for every dependent waiting on
// parentTxid. Nothing in this repository calls it; dependents are
// otherwise unblocked through Q when their parent attaches.
func (a *Attacher) ResolveParent(parentTxid chainhash.Hash) error {
	a.mu.Lock()
	deps := make([]chainhash.Hash, 0, len(a.i[parentTxid]))
	for dep := range a.i[parentTxid] {
		deps = append(deps, dep)
	}
	a.mu.Unlock()

	for _, dep := range deps {
		if err := a.tryUnblock(dep); err != nil {
			return err
		}
	}
	return nil
}

// sweep drops every S entry older than maxConfirmationTime, marking it
// terminally Invalid(ParentsUnreachable) per the missing-parent policy.
func (a *Attacher) sweep() {
	a.mu.Lock()
	var expired []chainhash.Hash
	now := time.Now()
	for txid, entry := range a.s {
		if now.Sub(entry.firstSeen) > a.maxConfirmationTime {
			expired = append(expired, txid)
		}
	}
	for _, txid := range expired {
		for p := range a.d[txid] {
			if deps := a.i[p]; deps != nil {
				delete(deps, txid)
				if len(deps) == 0 {
					delete(a.i, p)
				}
			}
		}
		delete(a.s, txid)
		delete(a.d, txid)
	}
	a.mu.Unlock()

	sweepID := uuid.New()
	for _, txid := range expired {
		if a.mempool != nil {
			if err := a.mempool.MarkInvalid(txid, string(ReasonParentsUnreachable)); err != nil {
				a.logger.Printf("sweep %s: mark %s invalid: %v", sweepID, txid, err)
			}
		}
	}
	if len(expired) > 0 {
		a.logger.Printf("sweep %s: dropped %d transactions past TTL", sweepID, len(expired))
	}
}

// Pending reports the current size of S, for metrics and tests.
func (a *Attacher) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.s)
}

// buildAttachResult assembles the atomic storage write for a transaction
// whose ancestry is now fully resolved: the record itself, a page-index
// append under every chroma it touches (plus the reserved zero-value
// chroma used as the global insertion-order index that the
// listyuvtransactions RPC paginates over), any new freezes, and a
// chroma supply increment for issuances.
func buildAttachResult(txid chainhash.Hash, tx *txtypes.TokenTransaction) (*storage.AttachResult, error) {
	result := &storage.AttachResult{
		Txid:        txid,
		Tx:          tx,
		PageAppends: map[chroma.Chroma][]byte{},
	}

	chromas := map[chroma.Chroma]bool{}
	addChroma := func(c chroma.Chroma) {
		if !c.IsZero() {
			chromas[c] = true
		}
	}

	switch v := tx.TxType.(type) {
	case *txtypes.Issue:
		for _, op := range v.OutputProofs {
			addChroma(op.Proof.Pix().Chroma)
		}
		result.SupplyIncrement = &storage.SupplyIncrement{
			Chroma: v.Announcement.Chroma,
			Amount: issuedAmount(v),
		}
	case *txtypes.Transfer:
		for _, ip := range v.InputProofs {
			addChroma(ip.Proof.Pix().Chroma)
		}
		for _, op := range v.OutputProofs {
			addChroma(op.Proof.Pix().Chroma)
		}
	case *txtypes.Announcement:
		switch v.Variant {
		case txtypes.AnnouncementFreeze:
			if v.Freeze != nil {
				result.FreezeOutpoints = []storage.FreezeOutpoint{{
					Txid: v.Freeze.TargetTxid,
					Vout: v.Freeze.TargetVout,
				}}
			}
		case txtypes.AnnouncementChromaMetadata:
			if m := v.ChromaMetadata; m != nil {
				result.ChromaRegistration = &chroma.Metadata{
					Chroma:    m.Chroma,
					Name:      m.Name,
					Symbol:    m.Symbol,
					Decimals:  m.Decimals,
					MaxSupply: m.MaxSupply,
					Freezable: m.Freezable,
					IssuerKey: chroma.IssuerKeyFromChroma(m.Chroma),
				}
				addChroma(m.Chroma)
			}
		case txtypes.AnnouncementTransferOwnership:
			if t := v.TransferOwnership; t != nil {
				result.IssuerUpdate = &storage.IssuerUpdate{
					Chroma:       t.Chroma,
					NewIssuerKey: t.NewIssuerKey,
				}
				addChroma(t.Chroma)
			}
		}
	}

	chromas[chroma.Chroma{}] = true
	for c := range chromas {
		result.PageAppends[c] = txid[:]
	}

	return result, nil
}

func issuedAmount(v *txtypes.Issue) uint64 {
	var sum pixel.Luma
	for _, op := range v.OutputProofs {
		px := op.Proof.Pix()
		if px.IsEmpty() || px.Hidden || px.Chroma != v.Announcement.Chroma {
			continue
		}
		sum = sum.Add(px.Luma)
	}
	return sum.Big().Uint64()
}
