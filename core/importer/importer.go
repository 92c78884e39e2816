// Package importer is the import engine: it drains stateless-verified
// blocks from the block queue, runs family verification and execution,
// commits the result through a single shared KV batch, accrues the running
// ClientReport, and fans the result out to subscribers — in that order,
// so a subscriber never observes a block the chain store hasn't published.
package importer

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/corechain/corechain/core/chainstore"
	"github.com/corechain/corechain/core/journaldb"
	"github.com/corechain/corechain/core/queue"
	"github.com/corechain/corechain/core/rawdb"
	"github.com/corechain/corechain/core/statedb"
	"github.com/corechain/corechain/core/tracedb"
	domaintypes "github.com/corechain/corechain/core/types"
	"github.com/corechain/corechain/core/verifier"
)

// MaxTxQueueSize bounds the transaction backlog downstream subscribers are
// expected to absorb per notification; tx-pool policy itself lives with
// the subscriber, not here.
const MaxTxQueueSize = 4096

// ChainEvent is broadcast once per imported block. Sealed marks blocks
// produced locally by a sealing collaborator rather than pulled from the
// verification queue.
type ChainEvent struct {
	Block  *domaintypes.SealedBlock
	Route  domaintypes.ImportRoute
	Sealed bool
}

// Miner is the optional sealing collaborator: it is told which blocks
// joined or left the canonical chain after an import batch that leaves the
// queue empty, and after every sealed-block import, so it can rebuild
// its pending block on top of the new tip and resurrect transactions from
// retracted blocks.
type Miner interface {
	ChainNewBlocks(imported, invalid, enacted, retracted, sealed []common.Hash)
}

// Importer wires together the chain store, state DB, journal, trace DB,
// and verifier into the block-import pipeline.
type Importer struct {
	chain    *chainstore.ChainStore
	state    *statedb.StateDB
	journal  *journaldb.JournalDB
	trace    *tracedb.TraceDB
	verifier *verifier.Verifier
	queue    *queue.Queue
	diskdb   ethdb.Database

	chainmu *closableMutex

	mu     sync.Mutex
	report domaintypes.ClientReport
	miner  Miner

	feed  event.Feed
	scope event.SubscriptionScope
}

// New builds an Importer. q should already be wired with the Verifier's
// VerifyStateless as its queue-side verification stage; family verification
// runs here, in the import loop, once a batch has been drained.
func New(chain *chainstore.ChainStore, sdb *statedb.StateDB, journal *journaldb.JournalDB, trace *tracedb.TraceDB, v *verifier.Verifier, q *queue.Queue, diskdb ethdb.Database) *Importer {
	return &Importer{
		chain:    chain,
		state:    sdb,
		journal:  journal,
		trace:    trace,
		verifier: v,
		queue:    q,
		diskdb:   diskdb,
		chainmu:  newClosableMutex(),
	}
}

// SubscribeChainEvent registers a subscriber for imported-block
// notifications through go-ethereum's Feed/Subscription/SubscriptionScope:
// a dropped subscription stops receiving on Unsubscribe, and the scope
// unsubscribes everyone on Close, so no manual liveness bookkeeping of the
// subscriber list is needed.
func (im *Importer) SubscribeChainEvent(ch chan<- ChainEvent) event.Subscription {
	return im.scope.Track(im.feed.Subscribe(ch))
}

// Close unsubscribes all listeners and stops accepting new chain mutation.
func (im *Importer) Close() {
	im.scope.Close()
	im.chainmu.Close()
}

// ImportVerifiedBlocks drains up to `max` stateless-verified blocks from
// the queue and, in order: runs family verification (deferred here from
// the queue, since a block's parent may be earlier in this same batch and
// not yet committed), executes, commits, and accrues the report. A block that fails
// family verification or execution is marked bad on the queue instead of
// aborting the batch; since MarkAsBad cascades through the queue's own
// child-adjacency map, any not-yet-processed descendant already queued
// alongside it is skipped here via IsBad without needing batch-local
// bookkeeping of its own. Once the batch is fully processed, the queue is
// told which hashes resolved cleanly via MarkAsGood, whose queue-empty-after
// result is the "caught up" signal the notification fan-out keys off of.
func (im *Importer) ImportVerifiedBlocks(max int) (domaintypes.ImportRoute, error) {
	var total domaintypes.ImportRoute

	drained := im.queue.Drain(max)
	if len(drained) == 0 {
		return total, nil
	}

	if ok := im.chainmu.Lock(); !ok {
		return total, errors.New("importer closed")
	}
	defer im.chainmu.Unlock()

	// fold aggregates per-block routes across the batch: a block enacted by
	// one insertion and retracted by a later one in the same batch must end
	// as retracted only, never appear in both lists.
	var (
		good    []common.Hash
		invalid []common.Hash
		fold    = make(map[common.Hash]bool)
	)
	for _, pb := range drained {
		if im.queue.IsBad(pb.Hash()) {
			// Already cascaded bad by an earlier sibling/ancestor processed
			// earlier in this same batch.
			invalid = append(invalid, pb.Hash())
			continue
		}

		// Ancestry gate: a block older than the journal's retained history
		// cannot be executed, since its parent state is gone.
		if h := im.journal.PruningHistory(); h != 0 {
			if best := im.chain.CurrentHeader().Number.Uint64(); best >= h && pb.NumberU64() <= best-h {
				log.Warn("Block is older than retained state history", "number", pb.NumberU64(), "hash", pb.Hash())
				im.queue.MarkAsBad([]common.Hash{pb.Hash()})
				invalid = append(invalid, pb.Hash())
				continue
			}
		}

		lb, err := im.verifier.VerifyFamily(pb)
		if err != nil {
			log.Warn("Block failed family verification", "number", pb.NumberU64(), "hash", pb.Hash(), "err", err)
			im.queue.MarkAsBad([]common.Hash{pb.Hash()})
			invalid = append(invalid, pb.Hash())
			continue
		}

		sealed, err := im.verifier.Execute(lb)
		if err != nil {
			log.Warn("Block execution failed", "number", pb.NumberU64(), "hash", pb.Hash(), "err", err)
			im.queue.MarkAsBad([]common.Hash{pb.Hash()})
			invalid = append(invalid, pb.Hash())
			continue
		}

		route, err := im.commitBlock(sealed)
		if err != nil {
			return total, fmt.Errorf("commit block %d: %w", sealed.NumberU64(), err)
		}

		im.mu.Lock()
		im.report.Accrue(sealed)
		im.mu.Unlock()

		for _, h := range route.Enacted {
			fold[h] = true
		}
		for _, h := range route.Retracted {
			fold[h] = false
		}
		good = append(good, sealed.Hash())

		im.feed.Send(ChainEvent{Block: sealed, Route: route})
	}

	for h, enacted := range fold {
		if enacted {
			total.Enacted = append(total.Enacted, h)
		} else {
			total.Retracted = append(total.Retracted, h)
		}
	}

	if emptyAfter := im.queue.MarkAsGood(good); emptyAfter {
		log.Debug("Import queue drained, caught up with known blocks")
		im.notifyMiner(good, invalid, total.Enacted, total.Retracted, nil)
	}
	return total, nil
}

// SetMiner attaches the sealing collaborator notified when the import
// pipeline catches up with its queue. Set once at startup; nil disables
// the notification.
func (im *Importer) SetMiner(m Miner) {
	im.mu.Lock()
	im.miner = m
	im.mu.Unlock()
}

func (im *Importer) notifyMiner(imported, invalid, enacted, retracted, sealed []common.Hash) {
	im.mu.Lock()
	m := im.miner
	im.mu.Unlock()
	if m != nil {
		m.ChainNewBlocks(imported, invalid, enacted, retracted, sealed)
	}
}

// ImportSealedBlock commits a block produced by the local sealing
// collaborator through the same commit path as queue-imported blocks, then
// notifies subscribers with the block marked as self-sealed.
func (im *Importer) ImportSealedBlock(sealed *domaintypes.SealedBlock) (domaintypes.ImportRoute, error) {
	if ok := im.chainmu.Lock(); !ok {
		return domaintypes.ImportRoute{}, errors.New("importer closed")
	}
	defer im.chainmu.Unlock()

	route, err := im.commitBlock(sealed)
	if err != nil {
		return route, fmt.Errorf("commit sealed block %d: %w", sealed.NumberU64(), err)
	}
	im.mu.Lock()
	im.report.Accrue(sealed)
	im.mu.Unlock()

	im.feed.Send(ChainEvent{Block: sealed, Route: route, Sealed: true})
	im.notifyMiner([]common.Hash{sealed.Hash()}, nil, route.Enacted, route.Retracted, []common.Hash{sealed.Hash()})
	return route, nil
}

// commitBlock writes a sealed block's body, receipts, header/TD,
// canonical-hash rewrite, and trace set through a single shared batch, so
// a crash between any two of them is impossible: either the whole set lands
// or none of it does. The state trie commit is a separate durability
// boundary from that batch (the journal owns it), written before the batch
// so a reader can never observe the batch's canonical-hash/header pointer
// referencing a root whose trie nodes aren't yet on disk. Only once the
// batch is durable does the in-memory head pointer move and the
// journal/cache/last-hashes bookkeeping advance.
func (im *Importer) commitBlock(sealed *domaintypes.SealedBlock) (domaintypes.ImportRoute, error) {
	var route domaintypes.ImportRoute

	header := sealed.Block.Header()
	prevHead := im.chain.CurrentHeader().Hash()

	batch := im.diskdb.NewBatch()

	rawdb.WriteBody(batch, header.Hash(), header.Number.Uint64(), sealed.Block.Body())
	gethrawdb.WriteReceipts(batch, header.Hash(), header.Number.Uint64(), sealed.Receipts)

	if _, err := im.chain.WriteHeadersBatch(batch, []*types.Header{header}); err != nil {
		return route, err
	}

	// Canonicality rule: only a chain carrying strictly more
	// total difficulty than the current head displaces it. A block that
	// doesn't beat the incumbent is still stored (so it can later become
	// the ancestor of a heavier fork) but stays out of the canonical set,
	// so its own canonical-hash rewrite and head-pointer move are skipped.
	heavier := im.chain.IsHeavier(header.Hash(), header.Number.Uint64())
	if heavier {
		if err := im.chain.ReorgBatch(batch, []*types.Header{header}); err != nil {
			return route, err
		}
		// The new header and its number mapping are already visible through
		// the chain store's caches (WriteHeadersBatch adds them before the
		// batch lands), so the tree route can be computed here — and the
		// retracted fork's trace entries staged for removal in the same
		// batch that enacts the winner.
		if prevHead != header.ParentHash {
			if tr, err := im.chain.TreeRoute(prevHead, header.Hash()); err == nil {
				route.Enacted = tr.Enacted
				route.Retracted = tr.Retracted
			}
		} else {
			route.Enacted = []common.Hash{header.Hash()}
		}
		for _, h := range route.Retracted {
			if n := im.chain.GetBlockNumber(h); n != nil {
				im.trace.InvalidateBatch(batch, *n, h)
			}
		}
	}

	if err := im.trace.WriteBatch(batch, blockTraceOf(sealed)); err != nil {
		return route, err
	}
	gethrawdb.WriteTxLookupEntriesByBlock(batch, sealed.Block)

	if err := im.state.JournalUnder(sealed.Parent.Root, sealed.Root); err != nil {
		return route, err
	}

	if err := batch.Write(); err != nil {
		return route, fmt.Errorf("write commit batch: %w", err)
	}

	if !heavier {
		route.Omitted = []common.Hash{header.Hash()}
		return route, nil
	}

	im.chain.CommitReorg([]*types.Header{header})
	im.state.MarkCanonical(header.Number.Uint64(), sealed.Root)

	im.state.SyncCache(im.rootsOf(route.Enacted), im.rootsOf(route.Retracted), sealed.Root, true)
	im.chain.UpdateLastHashes(header.ParentHash, header.Hash())

	return route, nil
}

// rootsOf resolves each hash's post-state root via the chain store, for
// feeding SyncCache's enacted/retracted root lists.
func (im *Importer) rootsOf(hashes []common.Hash) []common.Hash {
	if len(hashes) == 0 {
		return nil
	}
	roots := make([]common.Hash, 0, len(hashes))
	for _, h := range hashes {
		number := im.chain.GetBlockNumber(h)
		if number == nil {
			continue
		}
		if hdr := im.chain.GetHeader(h, *number); hdr != nil {
			roots = append(roots, hdr.Root)
		}
	}
	return roots
}

// blockTraceOf builds the flat trace set the trace DB stores for a block. There is no
// call-frame tracer wired into Execute, so this records one top-level CALL
// entry per transaction from its receipt rather than the nested call tree a
// real vm.EVMLogger hook would produce — enough to support Filter queries
// over per-transaction outcome (reverted, gas used) without teaching the
// EVM to collect a full trace on every import.
func blockTraceOf(sealed *domaintypes.SealedBlock) *tracedb.BlockTrace {
	txs := sealed.Block.Transactions()
	traces := make([]tracedb.Trace, 0, len(sealed.Receipts))
	for i, receipt := range sealed.Receipts {
		if i >= len(txs) {
			break
		}
		tx := txs[i]
		var to common.Address
		if tx.To() != nil {
			to = *tx.To()
		}
		traces = append(traces, tracedb.Trace{
			TxHash:   receipt.TxHash,
			Type:     "CALL",
			To:       to,
			Value:    tx.Value().Bytes(),
			GasUsed:  receipt.GasUsed,
			Reverted: receipt.Status == types.ReceiptStatusFailed,
		})
	}
	return &tracedb.BlockTrace{
		BlockHash: sealed.Block.Hash(),
		Number:    sealed.Block.NumberU64(),
		Traces:    traces,
	}
}

// Report returns a snapshot of the running import statistics.
func (im *Importer) Report() domaintypes.ClientReport {
	im.mu.Lock()
	defer im.mu.Unlock()
	r := im.report
	r.StateDBMem = im.state.MemSize()
	return r
}

// StateAt opens read-only state as of the post-state root of the given
// block hash.
func (im *Importer) StateAt(hash common.Hash) (*state.StateDB, error) {
	header := im.chain.GetHeaderByHash(hash)
	if header == nil {
		return nil, fmt.Errorf("unknown block %x", hash)
	}
	return im.state.StateAt(header.Root)
}

// StateAtBeginning opens read-only state as of the parent of the given
// block, i.e. the state the block itself executed against.
func (im *Importer) StateAtBeginning(hash common.Hash) (*state.StateDB, error) {
	header := im.chain.GetHeaderByHash(hash)
	if header == nil {
		return nil, fmt.Errorf("unknown block %x", hash)
	}
	parent := im.chain.GetHeader(header.ParentHash, header.Number.Uint64()-1)
	if parent == nil {
		return nil, fmt.Errorf("unknown parent of block %x", hash)
	}
	return im.state.StateAt(parent.Root)
}

// ImportOldBlock stores a block's header/body/receipts without executing
// it or making it canonical — used to backfill history below the
// journal's retained window, e.g. during a snapshot restore. Execution is
// bypassed, but the block's self-consistency (transaction/uncle roots,
// gas bounds) and the receipts' claimed root are still checked before
// anything is written. The writes share one batch, for the same
// torn-commit reasons as commitBlock.
func (im *Importer) ImportOldBlock(block *types.Block, receipts types.Receipts) error {
	if err := im.verifier.VerifyStateless(&domaintypes.PreverifiedBlock{Block: block}); err != nil {
		return fmt.Errorf("old block %d failed format verification: %w", block.NumberU64(), err)
	}
	if receiptSha := types.DeriveSha(receipts, trie.NewStackTrie(nil)); receiptSha != block.ReceiptHash() {
		return fmt.Errorf("old block %d receipt root mismatch: have %x, want %x", block.NumberU64(), receiptSha, block.ReceiptHash())
	}

	if ok := im.chainmu.Lock(); !ok {
		return errors.New("importer closed")
	}
	defer im.chainmu.Unlock()

	header := block.Header()
	batch := im.diskdb.NewBatch()
	rawdb.WriteHeader(batch, header)
	rawdb.WriteBody(batch, header.Hash(), header.Number.Uint64(), block.Body())
	gethrawdb.WriteReceipts(batch, header.Hash(), header.Number.Uint64(), receipts)
	if header.Number.Uint64() > 0 {
		if parentTd := gethrawdb.ReadTd(im.diskdb, header.ParentHash, header.Number.Uint64()-1); parentTd != nil {
			td := new(big.Int).Add(parentTd, header.Difficulty)
			gethrawdb.WriteTd(batch, header.Hash(), header.Number.Uint64(), td)
		}
	} else {
		gethrawdb.WriteTd(batch, header.Hash(), 0, header.Difficulty)
	}
	return batch.Write()
}

// snapshotWriter is supplied by the caller; this module only guarantees
// bounded, consistent read access to the state a snapshot would
// serialize, not the encoding a snapshot file uses on disk.
type snapshotWriter interface {
	WriteSnapshot(root common.Hash, progress func(accounts, bytes int)) error
}

// TakeSnapshot writes a point-in-time snapshot of state at block `at`,
// bounded by the journal's retained history.
func (im *Importer) TakeSnapshot(at common.Hash, writer snapshotWriter, progress func(accounts, bytes int)) error {
	header := im.chain.GetHeaderByHash(at)
	if header == nil {
		return fmt.Errorf("unknown block %x", at)
	}
	if _, ok := im.journal.EraAt(header.Number.Uint64()); !ok {
		return journaldb.ErrStatePruned
	}
	return writer.WriteSnapshot(header.Root, progress)
}

// Restore replays every key/value pair held by newBacking (e.g. a database
// reconstructed from a downloaded snapshot) into the importer's live
// store. The caller is responsible for
// quiescing the queue first (Flush): this takes chainmu so it cannot
// interleave with a commit batch, but it does not itself stop new blocks
// from being queued for verification while the copy runs.
func (im *Importer) Restore(newBacking ethdb.Iteratee) (int, error) {
	if ok := im.chainmu.Lock(); !ok {
		return 0, errors.New("importer closed")
	}
	defer im.chainmu.Unlock()
	return rawdb.Restore(newBacking, im.diskdb)
}
