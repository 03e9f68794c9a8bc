package confirmation

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/yuvchain/yuvd/pkg/eventbus"
)

// Tracker maintains the ordered window RecentBlocks[0..N-1] and emits
// confirmation events as new blocks arrive.
type Tracker struct {
	mu sync.Mutex

	window   []*BlockInfo // index 0 is the oldest entry
	depth    int
	provider BlockInfoProvider
	bus      *eventbus.Bus

	blocks chan chainhash.Hash
	stopCh chan struct{}
	doneCh chan struct{}

	logger *log.Logger
}

// NewTracker builds a Tracker with the given confirmation depth (window
// size N).
func NewTracker(provider BlockInfoProvider, bus *eventbus.Bus, depth int) *Tracker {
	if depth < 1 {
		depth = 1
	}
	return &Tracker{
		depth:    depth,
		provider: provider,
		bus:      bus,
		blocks:   make(chan chainhash.Hash, 64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   log.New(os.Stderr, "[ConfirmationTracker] ", log.LstdFlags),
	}
}

// NotifyBlock feeds a newly observed block hash to the tracker. The chain
// client collaborator calls this as blocks arrive.
func (t *Tracker) NotifyBlock(hash chainhash.Hash) {
	select {
	case t.blocks <- hash:
	case <-t.stopCh:
	}
}

// Start runs the tracker's block-processing loop until ctx is cancelled
// or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	go t.run(ctx)
}

// Stop cancels the tracker's loop and waits for it to exit.
func (t *Tracker) Stop() {
	close(t.stopCh)
	<-t.doneCh
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case hash := <-t.blocks:
			block, err := t.provider.BlockByHash(hash)
			if err != nil {
				t.logger.Printf("fetch block %s: %v", hash, err)
				continue
			}
			if err := t.ProcessBlock(block); err != nil {
				t.logger.Printf("fatal: %v", err)
			}
		}
	}
}

// ProcessBlock advances the window by one new block, following the
// normal path when it extends the window's tip and the reorg path
// otherwise.
func (t *Tracker) ProcessBlock(b *BlockInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == 0 || b.PrevHash == t.window[len(t.window)-1].Hash {
		return t.advance(b)
	}
	return t.reorg(b)
}

// advance is the normal path: push B, and if the window is now over
// depth, pop the front (oldest) block and fully confirm its
// transactions.
func (t *Tracker) advance(b *BlockInfo) error {
	t.window = append(t.window, b)

	for _, txid := range b.Txids {
		t.bus.Publish(eventbus.KindConfirmation, Event{Kind: EventConfirmed, Txid: txid})
	}

	if len(t.window) > t.depth {
		popped := t.window[0]
		t.window = t.window[1:]
		for _, txid := range popped.Txids {
			t.bus.Publish(eventbus.KindConfirmation, Event{Kind: EventFullyConfirmed, Txid: txid})
		}
	}
	return nil
}

// reorg walks backward from b.PrevHash until it finds an entry already in
// the window, orphaning every window entry from the tip down to (but not
// including) the common ancestor, then replays the new suffix forward.
func (t *Tracker) reorg(b *BlockInfo) error {
	ancestorIdx := -1
	for i := len(t.window) - 1; i >= 0; i-- {
		if t.window[i].Hash == b.PrevHash {
			ancestorIdx = i
			break
		}
	}

	if ancestorIdx == -1 {
		walked, err := t.walkBackToAncestor(b)
		if err != nil {
			return fmt.Errorf("fatal: reorg exceeds confirmation depth %d: %w", t.depth, err)
		}
		return t.replaceSuffix(walked)
	}

	orphaned := t.window[ancestorIdx+1:]
	t.window = t.window[:ancestorIdx+1]
	t.orphan(orphaned)
	return t.advance(b)
}

// walkBackToAncestor fetches B.prev, B.prev.prev, ... from the chain
// client, checking each discovered ancestor against every remaining
// window entry (not just the one at the matching recursion depth, since
// the new tip's height relative to the old tip is not guaranteed to
// align 1:1 with window position), until either a common ancestor is
// found or the window is exhausted.
func (t *Tracker) walkBackToAncestor(tip *BlockInfo) ([]*BlockInfo, error) {
	windowIndex := make(map[chainhash.Hash]int, len(t.window))
	for idx, b := range t.window {
		windowIndex[b.Hash] = idx
	}

	chain := []*BlockInfo{tip}
	cursor := tip

	for steps := 0; steps < len(t.window); steps++ {
		prev, err := t.provider.BlockByHash(cursor.PrevHash)
		if err != nil {
			return nil, fmt.Errorf("fetch ancestor %s: %w", cursor.PrevHash, err)
		}
		if idx, ok := windowIndex[prev.Hash]; ok {
			orphaned := t.window[idx+1:]
			t.window = t.window[:idx+1]
			t.orphan(orphaned)
			return chain, nil
		}
		chain = append([]*BlockInfo{prev}, chain...)
		cursor = prev
	}

	return nil, errWindowExhausted
}

func (t *Tracker) replaceSuffix(chain []*BlockInfo) error {
	for _, b := range chain {
		if err := t.advance(b); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) orphan(blocks []*BlockInfo) {
	for _, b := range blocks {
		for _, txid := range b.Txids {
			t.bus.Publish(eventbus.KindConfirmation, Event{Kind: EventOrphaned, Txid: txid})
		}
	}
}

// Depth returns the tracker's configured window depth.
func (t *Tracker) Depth() int {
	return t.depth
}

// WindowLen reports the current number of blocks held in the window.
func (t *Tracker) WindowLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.window)
}
