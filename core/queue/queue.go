// Package queue is the multi-stage verifying block queue: blocks move
// Unverified -> Verifying -> Verified -> Ready, with the middle stage
// parallelized across a bounded worker pool while the drain side stays
// ordered by block number. Family verification (parent lookup, consensus
// rules) and execution happen downstream, in the import engine's own loop,
// once a batch has been drained here.
package queue

import (
	"context"
	"sync"

	"github.com/JekaMas/workerpool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/prque"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/corechain/corechain/core/rawdb"
	domaintypes "github.com/corechain/corechain/core/types"
)

// VerifyFunc performs cheap, parent-independent verification on a
// preverified block (e.g. seal/PoW format checks) — nothing here may touch
// chain state or a parent header, since blocks of unknown ancestry still
// pass through this stage while queued.
type VerifyFunc func(*domaintypes.PreverifiedBlock) error

// ChainReader is the minimal chain-store surface the queue needs to decide
// whether an incoming block is already canonical or chains onto a known
// ancestor.
type ChainReader interface {
	HasHeader(hash common.Hash, number uint64) bool
}

// Result is the outcome of an Import call.
type Result int

const (
	// ResultQueued means the block was accepted and is now pending
	// verification.
	ResultQueued Result = iota
	// ResultAlreadyInChain means the block (by hash) is already part of the
	// canonical chain; the caller need do nothing further.
	ResultAlreadyInChain
	// ResultUnknownParent means neither the chain store nor this queue has
	// the block's parent, so it cannot be ordered for drain.
	ResultUnknownParent
	// ResultBadFormat means the block failed a cheap, synchronous
	// self-consistency check before it was even queued.
	ResultBadFormat
)

func (r Result) String() string {
	switch r {
	case ResultQueued:
		return "queued"
	case ResultAlreadyInChain:
		return "already in chain"
	case ResultUnknownParent:
		return "unknown parent"
	case ResultBadFormat:
		return "bad format"
	default:
		return "unknown result"
	}
}

// Config tunes queue concurrency and bounds.
type Config struct {
	Workers  int // size of the parallel verification pool
	MaxQueue int // soft backlog cap; not read by this package or by core/mode
}

// DefaultConfig pairs a modest worker pool with a backlog cap equal to
// mode.MaxQueueSizeToSleepOn.
var DefaultConfig = Config{Workers: 4, MaxQueue: 2}

// Info reports queue occupancy for telemetry. core/mode's backlog guard
// reads Len instead.
type Info struct {
	Unverified int // submitted, not yet through the verification stage
	Verified   int // verified, not yet drained
}

// Total is the combined depth of the unverified and verified stages.
func (i Info) Total() int { return i.Unverified + i.Verified }

// Queue accepts preverified blocks, verifies them concurrently, and serves
// them back out in ascending block-number order once verified.
type Queue struct {
	verify VerifyFunc
	chain  ChainReader
	pool   *workerpool.WorkerPool

	mu       sync.Mutex
	verified *prque.Prque[int64, *domaintypes.PreverifiedBlock] // verified, ordered by -number, ready to drain
	inFlight map[common.Hash]struct{}                           // submitted but not yet verified (Unverified/Verifying stages)

	// queued tracks every hash this queue is currently responsible for:
	// submitted, verifying, verified-undrained, or drained-but-not-yet-
	// resolved by the importer via MarkAsGood/MarkAsBad. children maps a
	// parent hash to the queued hashes chained onto it, so MarkAsBad can
	// cascade to dependants even after the parent itself has been drained.
	queued   map[common.Hash]struct{}
	children map[common.Hash][]common.Hash
	bad      map[common.Hash]struct{}

	db ethdb.Database // optional; persists queued-but-unimported blocks

	closed bool
	cond   *sync.Cond
}

// New builds a Queue using verify as the stateless-verification stage and
// chain to resolve already-in-chain/known-ancestor checks at Import time.
func New(cfg Config, chain ChainReader, verify VerifyFunc) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	q := &Queue{
		verify:   verify,
		chain:    chain,
		pool:     workerpool.New(cfg.Workers),
		verified: prque.New[int64, *domaintypes.PreverifiedBlock](nil),
		inFlight: make(map[common.Hash]struct{}),
		queued:   make(map[common.Hash]struct{}),
		children: make(map[common.Hash][]common.Hash),
		bad:      make(map[common.Hash]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// WithPersistence attaches db so queued-but-unimported blocks survive a
// restart instead of waiting for re-propagation. Does not itself replay
// anything already persisted; call Replay for that once the chain store
// this queue checks against is ready.
func (q *Queue) WithPersistence(db ethdb.Database) *Queue {
	q.mu.Lock()
	q.db = db
	q.mu.Unlock()
	return q
}

// Replay resubmits every block persisted by a prior run and not yet
// resolved, decoding each with decode (typically rlp.DecodeBytes against a
// *types.Block). Returns the number of blocks re-queued; decode failures
// and rejected results are logged and skipped rather than aborting the
// rest of the replay.
func (q *Queue) Replay(decode func([]byte) (*domaintypes.PreverifiedBlock, error)) int {
	if q.db == nil {
		return 0
	}
	var n int
	for _, enc := range rawdb.IterateQueuedBlocks(q.db) {
		b, err := decode(enc)
		if err != nil {
			log.Warn("Failed to decode persisted queued block", "err", err)
			continue
		}
		if res := q.Import(b); res == ResultQueued {
			n++
		}
	}
	return n
}

// Import submits a block to the queue, matching the block queue's
// `import(unverified) -> result` operation. It returns synchronously:
// AlreadyInChain/UnknownParent are resolved immediately against known
// state, and a minimal self-consistency check can fail fast with
// BadFormat; the (necessarily asynchronous) deeper stateless check runs in
// the worker pool and, on failure, silently drops the block instead of
// surfacing here — it is logged and never appears in a later Drain.
func (q *Queue) Import(b *domaintypes.PreverifiedBlock) Result {
	if b == nil || b.Block == nil || b.Block.Header() == nil {
		return ResultBadFormat
	}
	hash := b.Hash()
	parent := b.ParentHash()

	q.mu.Lock()
	if q.chain != nil && q.chain.HasHeader(hash, b.NumberU64()) {
		q.mu.Unlock()
		return ResultAlreadyInChain
	}
	if _, ok := q.queued[hash]; ok {
		q.mu.Unlock()
		return ResultQueued // already tracked, duplicate submission
	}
	_, parentBad := q.bad[parent]
	parentKnown := !parentBad && ((q.chain != nil && q.chain.HasHeader(parent, b.NumberU64()-1)) || q.hasQueuedLocked(parent))
	if !parentKnown {
		q.mu.Unlock()
		return ResultUnknownParent
	}
	q.queued[hash] = struct{}{}
	q.inFlight[hash] = struct{}{}
	q.children[parent] = append(q.children[parent], hash)
	if q.db != nil && len(b.Bytes) > 0 {
		rawdb.WriteQueuedBlock(q.db, hash, b.Bytes)
	}
	q.mu.Unlock()

	q.pool.Submit(context.Background(), func() error {
		err := q.verify(b)
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.inFlight, hash)
		if _, marked := q.bad[hash]; marked {
			q.cond.Broadcast()
			return nil // marked bad (via a bad ancestor) while verification was in flight
		}
		if err != nil {
			log.Debug("Block failed stateless verification", "hash", hash, "err", err)
			delete(q.queued, hash)
			if q.db != nil {
				rawdb.DeleteQueuedBlock(q.db, hash)
			}
			q.cond.Broadcast()
			return nil
		}
		// Negate the priority so prque (a max-heap by priority) pops the
		// lowest block number first.
		q.verified.Push(b, -int64(b.NumberU64()))
		q.cond.Broadcast()
		return nil
	}, 0)
	return ResultQueued
}

func (q *Queue) hasQueuedLocked(hash common.Hash) bool {
	_, ok := q.queued[hash]
	return ok
}

// Drain returns up to `max` verified blocks in ascending number order,
// still only stateless-verified: their parent is either already canonical
// or earlier in this same batch, but family verification and execution
// remain the caller's job. It never blocks: an empty queue returns an
// empty slice immediately, so the import engine can poll without holding
// its lock over an idle wait.
func (q *Queue) Drain(max int) []*domaintypes.PreverifiedBlock {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domaintypes.PreverifiedBlock
	for !q.verified.Empty() && len(out) < max {
		item, _ := q.verified.Pop()
		out = append(out, item)
	}
	return out
}

// MarkAsBad marks the given (already drained) block hashes as permanently
// bad and transitively marks every block still tracked by this queue that
// chains onto one of them, cascading through the children adjacency built
// up since Import.
func (q *Queue) MarkAsBad(hashes []common.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stack := append([]common.Hash(nil), hashes...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, already := q.bad[h]; already {
			continue
		}
		q.bad[h] = struct{}{}
		delete(q.queued, h)
		if q.db != nil {
			rawdb.DeleteQueuedBlock(q.db, h)
		}
		kids := q.children[h]
		delete(q.children, h)
		stack = append(stack, kids...)
	}
	q.cond.Broadcast()
}

// MarkAsGood releases the given (already drained and successfully
// committed) block hashes from this queue's bookkeeping and reports
// whether the queue is now completely empty. The import engine uses the
// return value to decide whether to fan out a "caught up" notification.
func (q *Queue) MarkAsGood(hashes []common.Hash) (queueEmptyAfter bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, h := range hashes {
		delete(q.queued, h)
		delete(q.children, h)
		if q.db != nil {
			rawdb.DeleteQueuedBlock(q.db, h)
		}
	}
	q.cond.Broadcast()
	return len(q.queued) == 0
}

// IsBad reports whether hash has been marked bad (directly or as a
// descendant of a bad block).
func (q *Queue) IsBad(hash common.Hash) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.bad[hash]
	return ok
}

// Info reports current queue occupancy, matching `queue_info()`.
func (q *Queue) Info() Info {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Info{Unverified: len(q.inFlight), Verified: q.verified.Size()}
}

// Flush blocks until every block submitted before this call has reached
// the verified stage, or the queue is closed.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.inFlight) > 0 && !q.closed {
		q.cond.Wait()
	}
}

// Len reports the total number of blocks this queue is still responsible
// for (submitted, verifying, verified-undrained, or drained-but-not-yet-
// resolved), used by core/mode to decide when to sleep.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// Close stops accepting new verification work and releases the pool.
func (q *Queue) Close() {
	q.pool.StopWait()
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
