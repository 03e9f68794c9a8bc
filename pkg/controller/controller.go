// Package controller implements the thin dispatcher that receives
// inbound token transactions (from RPC, P2P, or the on-chain indexer),
// writes mempool entries, routes work between the isolated checker, the
// confirmation tracker, and the graph attacher, and emits outbound
// inventory. It generalizes the teacher's batch.Processor
// (pkg/batch/processor.go): the same mutex-held coordinator that takes
// a unit of work, fans it out to collaborators, and updates durable
// state as each stage completes — but the unit here is a single token
// transaction moving through the mempool state machine's five stages
// instead of a Merkle batch moving through anchor submission.
package controller

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yuvchain/yuvd/pkg/analytics"
	"github.com/yuvchain/yuvd/pkg/attacher"
	"github.com/yuvchain/yuvd/pkg/checker"
	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/collaborators"
	"github.com/yuvchain/yuvd/pkg/confirmation"
	"github.com/yuvchain/yuvd/pkg/eventbus"
	"github.com/yuvchain/yuvd/pkg/mempool"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/syncmirror"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// Store is the narrow persistence surface the controller needs beyond
// what mempool.Manager and attacher.Store already cover.
type Store interface {
	GetAttachedTx(txid chainhash.Hash) (*txtypes.TokenTransaction, bool, error)
	IsFrozen(txid chainhash.Hash, vout uint32) (bool, error)
	ReadPage(c chroma.Chroma, page uint32) ([]byte, bool, error)
	Chroma(c chroma.Chroma) (*chroma.Metadata, bool)
}

// Status is the coarse submission status the getrawyuvtransaction RPC
// reports, per spec.md §6.
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusChecked  Status = "checked"
	StatusAttached Status = "attached"
)

// checkJob is one unit of work handed to the isolated-check worker pool.
type checkJob struct {
	txid chainhash.Hash
	tx   *txtypes.TokenTransaction
}

// checkResult pairs a job with its verdict.
type checkResult struct {
	txid chainhash.Hash
	tx   *txtypes.TokenTransaction
	err  *checker.CheckError
}

// Config carries the controller's tunable knobs, named directly from
// the dynamic-config list in the design notes.
type Config struct {
	PoolSize         int
	MaxRequestSize   int
	InvShareInterval time.Duration
}

// Controller wires the isolated checker's worker pool, the confirmation
// tracker's events, and the graph attacher's ingestion into a single
// coordinator. Its goroutine fan-out follows the design notes' "producer
// -> channel -> consumer chain" pipeline shape with a shared input
// channel and shared output channel for the checker pool.
type Controller struct {
	store    Store
	mempool  *mempool.Manager
	checker  *checker.Checker
	attacher *attacher.Attacher
	tracker  *confirmation.Tracker
	bus      *eventbus.Bus
	gossip   collaborators.GossipNetwork

	// analyticsRepo and dashboard are optional mirrors: nil when the node
	// runs without the corresponding collaborator configured, in which
	// case mirrorLoop simply has nothing to push.
	analyticsRepo *analytics.Repository
	dashboard     *syncmirror.SyncService

	cfg Config

	checkIn  chan checkJob
	checkOut chan checkResult

	stopCh chan struct{}
	doneCh chan struct{}

	logger *log.Logger
}

// New builds a Controller. gossip may be nil when the node runs without
// a peer layer (e.g. in tests or a solo-indexer configuration); periodic
// inventory is then not published and admitted transactions are not
// broadcast. Parent requests are published on the bus by the attacher
// either way.
func New(
	store Store,
	mp *mempool.Manager,
	ck *checker.Checker,
	at *attacher.Attacher,
	tracker *confirmation.Tracker,
	bus *eventbus.Bus,
	gossip collaborators.GossipNetwork,
	cfg Config,
) *Controller {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 1 << 20
	}
	if cfg.InvShareInterval <= 0 {
		cfg.InvShareInterval = 30 * time.Second
	}
	return &Controller{
		store:    store,
		mempool:  mp,
		checker:  ck,
		attacher: at,
		tracker:  tracker,
		bus:      bus,
		gossip:   gossip,
		cfg:      cfg,
		checkIn:  make(chan checkJob, 256),
		checkOut: make(chan checkResult, 256),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   log.New(os.Stderr, "[Controller] ", log.LstdFlags),
	}
}

// SetMirrors attaches the optional reporting collaborators: an analytics
// repository backing the Postgres mirror and a dashboard sync service
// backing the Firestore mirror. Either may be nil, and the dashboard
// service itself no-ops internally when Firestore sync is disabled;
// mirrorLoop tolerates both being unset. Must be called before Start.
func (c *Controller) SetMirrors(analyticsRepo *analytics.Repository, dashboard *syncmirror.SyncService) {
	c.analyticsRepo = analyticsRepo
	c.dashboard = dashboard
}

// Start launches the isolated-check worker pool, the confirmation-event
// consumer, and (if configured) the periodic inventory announcer.
func (c *Controller) Start(ctx context.Context) {
	for i := 0; i < c.cfg.PoolSize; i++ {
		go c.checkWorker(ctx)
	}
	go c.consumeCheckResults(ctx)
	go c.consumeConfirmationEvents(ctx)
	go c.inventoryLoop(ctx)
	go c.mirrorLoop(ctx)
}

// Stop signals every controller goroutine to exit and waits for the
// confirmation-event consumer, which owns doneCh.
func (c *Controller) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// SubmitTransaction is the entry point for sendrawyuvtransaction, for
// providing proofs, and for indexer-observed candidates alike: it
// admits tx to the mempool in Initialized and queues it for isolated
// checking.
func (c *Controller) SubmitTransaction(tx *txtypes.TokenTransaction) error {
	txid := tx.Txid()
	if err := c.mempool.Admit(txid, tx); err != nil {
		return fmt.Errorf("controller: admit %s: %w", txid, err)
	}

	select {
	case c.checkIn <- checkJob{txid: txid, tx: tx}:
	case <-c.stopCh:
		return fmt.Errorf("controller: shutting down")
	}

	if c.gossip != nil {
		_ = c.gossip.Broadcast(context.Background(), txid)
	}
	return nil
}

// checkWorker is one member of the fixed-size isolated-check pool: pure,
// synchronous work between awaits on the shared input channel, per the
// concurrency model's suspension-point design.
func (c *Controller) checkWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case job := <-c.checkIn:
			err := c.checker.Check(job.tx, chromaRegistry{c.store})
			select {
			case c.checkOut <- checkResult{txid: job.txid, tx: job.tx, err: err}:
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}
}

// chromaRegistry adapts Store to checker.Registry.
type chromaRegistry struct{ store Store }

func (r chromaRegistry) Chroma(c chroma.Chroma) (*chroma.Metadata, bool) { return r.store.Chroma(c) }

func (c *Controller) consumeCheckResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case res := <-c.checkOut:
			if res.err != nil {
				if err := c.mempool.MarkInvalid(res.txid, res.err.Error()); err != nil {
					c.logger.Printf("mark %s invalid: %v", res.txid, err)
				}
				continue
			}
			if err := c.mempool.MarkWaitingMined(res.txid); err != nil {
				c.logger.Printf("mark %s waiting-mined: %v", res.txid, err)
			}
		}
	}
}

// consumeConfirmationEvents subscribes to the confirmation tracker's
// bus kind and drives the corresponding mempool transition, handing
// fully-confirmed transactions to the attacher. This goroutine owns
// doneCh: Stop blocks on it so callers observe a clean shutdown only
// once confirmation handling (and therefore every attach it triggers)
// has drained.
func (c *Controller) consumeConfirmationEvents(ctx context.Context) {
	defer close(c.doneCh)
	sub := c.bus.Subscribe(ctx, eventbus.KindConfirmation)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			ev, ok := msg.(confirmation.Event)
			if !ok {
				continue
			}
			c.handleConfirmationEvent(ev)
		}
	}
}

func (c *Controller) handleConfirmationEvent(ev confirmation.Event) {
	switch ev.Kind {
	case confirmation.EventConfirmed:
		if err := c.mempool.MarkMined(ev.Txid); err != nil {
			c.logger.Printf("mark %s mined: %v", ev.Txid, err)
		}
	case confirmation.EventFullyConfirmed:
		if err := c.mempool.MarkAttaching(ev.Txid); err != nil {
			c.logger.Printf("mark %s attaching: %v", ev.Txid, err)
			return
		}
		tx, err := c.loadMempoolTx(ev.Txid)
		if err != nil {
			c.logger.Printf("load %s for attach: %v", ev.Txid, err)
			return
		}
		if err := c.attacher.IngestBatch([]*txtypes.TokenTransaction{tx}); err != nil {
			c.logger.Printf("ingest %s: %v", ev.Txid, err)
		}
	case confirmation.EventOrphaned:
		if err := c.mempool.MarkOrphaned(ev.Txid); err != nil {
			c.logger.Printf("mark %s orphaned: %v", ev.Txid, err)
		}
	}
}

func (c *Controller) loadMempoolTx(txid chainhash.Hash) (*txtypes.TokenTransaction, error) {
	_, body, found, err := c.mempool.Entry(txid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("controller: %s not in mempool", txid)
	}
	return storage.DecodeTokenTx(body)
}

// ReceiveParent feeds a peer-provided (or locally resolved) parent
// transaction back into the pipeline: admitted and checked exactly like
// any other submission, then re-offered to the attacher's blocked
// dependents once it clears checking and confirmation on its own.
func (c *Controller) ReceiveParent(tx *txtypes.TokenTransaction) error {
	return c.SubmitTransaction(tx)
}

// inventoryLoop periodically publishes the txids of WaitingMined and Mined
// mempool entries on the bus as KindInventory messages, per the
// inv_share_interval knob. It runs only when a gossip collaborator is
// configured.
func (c *Controller) inventoryLoop(ctx context.Context) {
	if c.gossip == nil {
		return
	}
	ticker := time.NewTicker(c.cfg.InvShareInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.shareInventory()
		}
	}
}

func (c *Controller) shareInventory() {
	for _, status := range []mempool.Status{mempool.StatusWaitingMined, mempool.StatusMined} {
		txids, err := c.mempool.ListByStatus(status)
		if err != nil {
			c.logger.Printf("list %s for inventory: %v", status, err)
			continue
		}
		for _, txid := range txids {
			if c.bus != nil {
				c.bus.Publish(eventbus.KindInventory, txid)
			}
		}
	}
}

// mirrorLoop feeds the optional analytics and dashboard collaborators
// from the same bus the rest of the pipeline already publishes on,
// rather than threading mirror calls through every mempool/attacher
// call site. It exits immediately if neither mirror is configured.
func (c *Controller) mirrorLoop(ctx context.Context) {
	if c.analyticsRepo == nil && c.dashboard == nil {
		return
	}
	transitions := c.bus.Subscribe(ctx, eventbus.KindMempoolTransition)
	attached := c.bus.Subscribe(ctx, eventbus.KindAttached)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case msg, ok := <-transitions:
			if !ok {
				continue
			}
			t, ok := msg.(mempool.Transition)
			if !ok {
				continue
			}
			c.pushDashboardStatus(ctx, t.Txid, t.To.String(), chroma.Chroma{})
		case msg, ok := <-attached:
			if !ok {
				continue
			}
			txid, ok := msg.(chainhash.Hash)
			if !ok {
				continue
			}
			c.mirrorAttached(ctx, txid)
		}
	}
}

func (c *Controller) pushDashboardStatus(ctx context.Context, txid chainhash.Hash, status string, chromaID chroma.Chroma) {
	if c.dashboard == nil {
		return
	}
	if err := c.dashboard.PushStatus(ctx, txid, status, chromaID); err != nil {
		c.logger.Printf("dashboard push for %s: %v", txid, err)
	}
}

func (c *Controller) mirrorAttached(ctx context.Context, txid chainhash.Hash) {
	tx, found, err := c.store.GetAttachedTx(txid)
	if err != nil {
		c.logger.Printf("load %s for mirror: %v", txid, err)
		return
	}
	if !found {
		return
	}
	chromaID := representativeChroma(tx)
	c.pushDashboardStatus(ctx, txid, "attached", chromaID)
	if c.analyticsRepo != nil {
		if err := c.analyticsRepo.RecordAttached(ctx, txid, tx.TxType.Kind(), chromaID); err != nil {
			c.logger.Printf("analytics record %s: %v", txid, err)
		}
	}
}

// representativeChroma picks one chroma to tag an attached transaction
// with for reporting purposes: the announced chroma for an Issue or
// Announcement, or the first non-empty output's chroma for a Transfer.
// Transfers spanning several chromas are only tagged with one; the
// per-chroma page index (not these mirrors) is the source of truth for
// chroma-scoped queries.
func representativeChroma(tx *txtypes.TokenTransaction) chroma.Chroma {
	switch v := tx.TxType.(type) {
	case *txtypes.Issue:
		return v.Announcement.Chroma
	case *txtypes.Transfer:
		for _, op := range v.OutputProofs {
			px := op.Proof.Pix()
			if !px.IsEmpty() {
				return px.Chroma
			}
		}
	case *txtypes.Announcement:
		switch v.Variant {
		case txtypes.AnnouncementChromaMetadata:
			if v.ChromaMetadata != nil {
				return v.ChromaMetadata.Chroma
			}
		case txtypes.AnnouncementFreeze:
			if v.Freeze != nil {
				return v.Freeze.Chroma
			}
		case txtypes.AnnouncementTransferOwnership:
			if v.TransferOwnership != nil {
				return v.TransferOwnership.Chroma
			}
		}
	}
	return chroma.Chroma{}
}

// --- JSON-RPC-facing read operations ---

// TxStatus reports getrawyuvtransaction's status classification for txid.
func (c *Controller) TxStatus(txid chainhash.Hash) (Status, *txtypes.TokenTransaction, error) {
	if tx, found, err := c.store.GetAttachedTx(txid); err != nil {
		return StatusNone, nil, err
	} else if found {
		return StatusAttached, tx, nil
	}

	status, body, found, err := c.mempool.Entry(txid)
	if err != nil {
		return StatusNone, nil, err
	}
	if !found {
		return StatusNone, nil, nil
	}
	tx, err := storage.DecodeTokenTx(body)
	if err != nil {
		return StatusNone, nil, err
	}
	switch status {
	case mempool.StatusInitialized:
		return StatusPending, tx, nil
	case mempool.StatusWaitingMined, mempool.StatusMined, mempool.StatusAttaching:
		return StatusChecked, tx, nil
	default:
		return StatusPending, tx, nil
	}
}

// IsOutputFrozen answers isyuvtxoutfrozen.
func (c *Controller) IsOutputFrozen(txid chainhash.Hash, vout uint32) (bool, error) {
	return c.store.IsFrozen(txid, vout)
}

// Emulate answers emulateyuvtransaction: runs the isolated checker
// without admitting tx anywhere, reporting its verdict only.
func (c *Controller) Emulate(tx *txtypes.TokenTransaction) *checker.CheckError {
	return c.checker.Check(tx, chromaRegistry{c.store})
}

// ListPage answers listyuvtransactions: decodes the global insertion-order
// page (the reserved zero-value chroma index) into attached transactions.
func (c *Controller) ListPage(page uint32) ([]*txtypes.TokenTransaction, error) {
	raw, found, err := c.store.ReadPage(chroma.Chroma{}, page)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if len(raw)%32 != 0 {
		return nil, fmt.Errorf("controller: malformed page %d (%d bytes)", page, len(raw))
	}
	out := make([]*txtypes.TokenTransaction, 0, len(raw)/32)
	for off := 0; off < len(raw); off += 32 {
		var txid chainhash.Hash
		copy(txid[:], raw[off:off+32])
		tx, found, err := c.store.GetAttachedTx(txid)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, tx)
		}
	}
	return out, nil
}

// GetRawTransactions answers getlistrawyuvtransactions: fetches each
// txid, silently skipping ones that are not present anywhere.
func (c *Controller) GetRawTransactions(txids []chainhash.Hash) []*txtypes.TokenTransaction {
	out := make([]*txtypes.TokenTransaction, 0, len(txids))
	for _, txid := range txids {
		if _, tx, err := c.TxStatus(txid); err == nil && tx != nil {
			out = append(out, tx)
		}
	}
	return out
}

