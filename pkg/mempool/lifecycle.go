// Package mempool implements the durable mempool state machine: every
// admitted token transaction moves Initialized -> WaitingMined -> Mined
// -> Attaching -> {Attached | Invalid}, with every edge persisted before
// it is reported to the caller. It generalizes the teacher's
// ProofLifecycleManager (pkg/proof/lifecycle.go): the same
// ValidTransitions-table-plus-CAS-guard shape, the same
// StateChangeListener callback idiom (here wired to the event bus
// instead of an in-process slice of closures), but state lives in the
// KV store rather than a Postgres repository so a crash mid-transition
// recovers from exactly where it left off.
package mempool

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yuvchain/yuvd/pkg/eventbus"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// Status is a mempool entry's lifecycle state, per spec §4.4.
type Status byte

const (
	StatusInitialized Status = iota + 1
	StatusWaitingMined
	StatusMined
	StatusAttaching
	// StatusAttached and StatusInvalid are terminal. An Attached entry is
	// removed from the mempool store (its record lives in the
	// attached-transaction store). An Invalid entry stays in the mempool
	// store under StatusInvalid with the rejection reason as its body;
	// nothing in this package purges it, and Admit overwrites it if the
	// same txid is submitted again.
	StatusAttached
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusWaitingMined:
		return "waiting_mined"
	case StatusMined:
		return "mined"
	case StatusAttaching:
		return "attaching"
	case StatusAttached:
		return "attached"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// transition names one allowed edge in the state machine.
type transition struct {
	From, To Status
}

// validTransitions is spec §4.4's table, transcribed directly.
var validTransitions = []transition{
	{StatusInitialized, StatusWaitingMined},
	{StatusInitialized, StatusInvalid},
	{StatusWaitingMined, StatusMined},
	{StatusWaitingMined, StatusWaitingMined}, // orphaned, counter reset
	{StatusMined, StatusAttaching},
	{StatusMined, StatusWaitingMined}, // orphaned
	{StatusAttaching, StatusInvalid}, // parents-unreachable TTL
}

func isValidTransition(from, to Status) bool {
	for _, t := range validTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Store is the narrow persistence surface the lifecycle manager needs;
// storage.Store satisfies it structurally.
type Store interface {
	PutMempoolEntry(txid chainhash.Hash, status byte, body []byte) error
	CASMempoolStatus(txid chainhash.Hash, wantStatus, newStatus byte, newBody []byte) error
	GetMempoolEntry(txid chainhash.Hash) (status byte, body []byte, found bool, err error)
	DeleteMempoolEntry(txid chainhash.Hash) error
	ListMempoolByStatus(status byte) ([]chainhash.Hash, error)
}

// Manager owns every mempool state transition. It does not itself decide
// when a transaction should move (the controller, confirmator, and
// attacher call in at the right moments); it only enforces that the
// move is legal and durable, exactly mirroring
// ProofLifecycleManager.TransitionState's "validate, persist, notify"
// shape.
type Manager struct {
	store Store
	bus   *eventbus.Bus
}

// New builds a lifecycle manager over store, publishing every transition
// on bus.
func New(store Store, bus *eventbus.Bus) *Manager {
	return &Manager{store: store, bus: bus}
}

// Transition carries one mempool state change for KindMempoolTransition
// subscribers.
type Transition struct {
	Txid chainhash.Hash
	From Status
	To   Status
}

// Admit creates a new mempool entry in Initialized, the only state a
// transaction can enter without a prior entry existing.
func (m *Manager) Admit(txid chainhash.Hash, tx *txtypes.TokenTransaction) error {
	body, err := storage.EncodeTokenTx(tx)
	if err != nil {
		return fmt.Errorf("mempool: encode entry: %w", err)
	}
	if err := m.store.PutMempoolEntry(txid, byte(StatusInitialized), body); err != nil {
		return err
	}
	m.publish(txid, 0, StatusInitialized)
	return nil
}

// TransitionState moves txid from its current status to to, validating
// the edge before any write lands (as
// ProofLifecycleManager.isValidTransition does) and writing it with a
// compare-and-swap on the status it read. If another writer changed the
// entry in between, it returns an error and does not retry.
func (m *Manager) TransitionState(txid chainhash.Hash, to Status, newBody []byte) error {
	status, body, found, err := m.store.GetMempoolEntry(txid)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mempool: %s not found", txid)
	}
	from := Status(status)
	if !isValidTransition(from, to) {
		return fmt.Errorf("mempool: invalid transition %s -> %s", from, to)
	}
	if newBody == nil {
		newBody = body
	}

	err = m.store.CASMempoolStatus(txid, status, byte(to), newBody)
	if err == storage.ErrCASMismatch {
		// Another goroutine moved the entry between our read and our
		// write; the controller/confirmator/attacher driving this
		// transition is expected to re-derive its intent from the fresh
		// state rather than blindly retry with stale data.
		return fmt.Errorf("mempool: %s changed concurrently, retry", txid)
	}
	if err != nil {
		return err
	}

	m.publish(txid, from, to)
	return nil
}

// MarkWaitingMined records that txid passed the isolated checker.
func (m *Manager) MarkWaitingMined(txid chainhash.Hash) error {
	return m.TransitionState(txid, StatusWaitingMined, nil)
}

// MarkInvalid terminally rejects txid, recording reason in the entry
// body.
func (m *Manager) MarkInvalid(txid chainhash.Hash, reason string) error {
	_, _, found, err := m.store.GetMempoolEntry(txid)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mempool: %s not found", txid)
	}
	return m.TransitionState(txid, StatusInvalid, []byte(reason))
}

// MarkMined records a transaction's first confirmation.
func (m *Manager) MarkMined(txid chainhash.Hash) error {
	return m.TransitionState(txid, StatusMined, nil)
}

// MarkOrphaned returns a transaction to WaitingMined after its
// containing block is reorged out, resetting confirmation progress.
// Either Mined or WaitingMined may be the origin, per spec §4.4's two
// "orphaned" edges.
func (m *Manager) MarkOrphaned(txid chainhash.Hash) error {
	status, _, found, err := m.store.GetMempoolEntry(txid)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mempool: %s not found", txid)
	}
	if Status(status) != StatusMined && Status(status) != StatusWaitingMined {
		return fmt.Errorf("mempool: %s not confirmable, status %s", txid, Status(status))
	}
	return m.TransitionState(txid, StatusWaitingMined, nil)
}

// MarkAttaching records that a transaction reached full confirmation
// depth and has entered the graph attacher's working set.
func (m *Manager) MarkAttaching(txid chainhash.Hash) error {
	return m.TransitionState(txid, StatusAttaching, nil)
}

// Attached removes txid from the live mempool entirely; the caller is
// responsible for having already written the attached-transaction
// record (storage.Store.Attach already deletes the mempool key as part
// of that same batch, so this is only needed for callers that attach
// through a different path).
func (m *Manager) Attached(txid chainhash.Hash) error {
	if err := m.store.DeleteMempoolEntry(txid); err != nil {
		return err
	}
	m.publish(txid, StatusAttaching, StatusAttached)
	if m.bus != nil {
		m.bus.Publish(eventbus.KindAttached, txid)
	}
	return nil
}

// Entry returns the current status and encoded body for txid.
func (m *Manager) Entry(txid chainhash.Hash) (status Status, body []byte, found bool, err error) {
	s, b, found, err := m.store.GetMempoolEntry(txid)
	return Status(s), b, found, err
}

// ListByStatus returns every txid currently in status.
func (m *Manager) ListByStatus(status Status) ([]chainhash.Hash, error) {
	return m.store.ListMempoolByStatus(byte(status))
}

func (m *Manager) publish(txid chainhash.Hash, from, to Status) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.KindMempoolTransition, Transition{Txid: txid, From: from, To: to})
	if to == StatusInvalid {
		m.bus.Publish(eventbus.KindInvalid, txid)
	}
}
