// Package confirmation implements the confirmation tracker: a sliding
// window over the last N Bitcoin blocks that emits confirmation events
// and replays orphaned transactions on reorg.
package confirmation

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// BlockInfo is the bookkeeping record of a single window entry: enough
// to detect a reorg and to know which token transactions it contained.
type BlockInfo struct {
	Hash     chainhash.Hash
	PrevHash chainhash.Hash
	Height   int64
	// Txids lists, in txindex order, the token transactions this block
	// contains (by their Bitcoin txid).
	Txids []chainhash.Hash
}

// BlockInfoProvider is the chain-client collaborator the tracker consumes
// to fetch block headers and walk back on reorg.
type BlockInfoProvider interface {
	// BlockByHash returns the BlockInfo for hash, or an error if the
	// chain client cannot serve it.
	BlockByHash(hash chainhash.Hash) (*BlockInfo, error)
}

// EventKind tags the two confirmation events the tracker emits.
type EventKind int

const (
	// EventConfirmed fires the first time a transaction's containing
	// block enters the window.
	EventConfirmed EventKind = iota
	// EventFullyConfirmed fires once the transaction reaches N
	// confirmations (its block falls off the trailing edge of the
	// window).
	EventFullyConfirmed
	// EventOrphaned fires when a previously windowed block is reorged
	// out; the transaction returns to WaitingMined with its
	// confirmation progress reset.
	EventOrphaned
)

// Event is published on the event bus for every transaction whose
// confirmation status changes.
type Event struct {
	Kind EventKind
	Txid chainhash.Hash
}
