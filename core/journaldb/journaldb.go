// Package journaldb is the pruning journal sitting in front of
// go-ethereum's trie database. It tracks, per block number ("era"), which
// state root became canonical, so that old eras outside the configured
// history window can be dereferenced and reclaimed instead of being kept
// forever.
//
// The journal owns the era bookkeeping (earliest/latest, MarkCanonical
// recording one canonical root per era, the `latest - earliest <= history`
// invariant); the actual node storage and pruning mechanics are
// go-ethereum's own trie.Database (HashDB/PathDB backed).
package journaldb

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/triedb/hashdb"
	"github.com/ethereum/go-ethereum/trie/triedb/pathdb"
)

// MinHistorySize is the floor below which the history window is rejected;
// a journal shorter than this cannot reliably serve reorgs of realistic
// depth.
const MinHistorySize = 8

// Era records the canonical state root known for one block number.
type Era struct {
	Number uint64
	Root   common.Hash
}

// JournalDB is the era-indexed view over a trie.Database. It is safe for
// concurrent use; all era bookkeeping is guarded by mu, while node reads
// and commits are delegated to the underlying trie.Database, which has its
// own internal locking.
type JournalDB struct {
	db      *trie.Database
	history uint64 // H: number of eras retained behind the canonical head

	mu       sync.RWMutex
	earliest uint64
	latest   uint64
	eras     map[uint64]Era // number -> canonical era in [earliest, latest]
}

// Config selects the backing scheme for the underlying trie.Database.
type Config struct {
	History  uint64 // H, the pruning window; 0 disables pruning (archive mode)
	PathMode bool   // use path-based scheme (pathdb) instead of hash-based (hashdb)

	// Preimages records the keccak preimages of trie keys as state is
	// written. Required for fat-db account iteration, which resolves
	// hashed account keys back to addresses through this store.
	Preimages bool

	CleanCacheSize int // bytes, shared clean-node cache
	DirtyCacheSize int // bytes, dirty-node buffer before a flush (pathdb only)
}

// New opens a journal over diskdb using the given config. When cfg.History
// is non-zero and below MinHistorySize it is rounded up.
func New(diskdb ethdb.Database, cfg Config) *JournalDB {
	if cfg.History != 0 && cfg.History < MinHistorySize {
		log.Warn("Journal history below minimum, clamping", "have", cfg.History, "want", MinHistorySize)
		cfg.History = MinHistorySize
	}

	tdbConfig := &trie.Config{Preimages: cfg.Preimages}
	if cfg.PathMode {
		tdbConfig.PathDB = &pathdb.Config{
			StateHistory:   cfg.History,
			CleanCacheSize: cfg.CleanCacheSize,
			DirtyCacheSize: cfg.DirtyCacheSize,
		}
	} else {
		tdbConfig.HashDB = &hashdb.Config{
			CleanCacheSize: cfg.CleanCacheSize,
		}
	}

	j := &JournalDB{
		db:      trie.NewDatabase(diskdb, tdbConfig),
		history: cfg.History,
		eras:    make(map[uint64]Era),
	}
	j.repair(diskdb)
	return j
}

// repair reconstructs earliest/latest from the on-disk head after a
// restart or unclean shutdown: walk back from the head header, one era per
// block, until either genesis or the history window is exhausted.
func (j *JournalDB) repair(diskdb ethdb.Database) {
	head := rawdb.ReadHeadHeaderHash(diskdb)
	if head == (common.Hash{}) {
		return
	}
	number := rawdb.ReadHeaderNumber(diskdb, head)
	if number == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	n, h := *number, head
	count := uint64(0)
	for {
		header := rawdb.ReadHeader(diskdb, h, n)
		if header == nil {
			break
		}
		j.eras[n] = Era{Number: n, Root: header.Root}
		if j.latest < n || len(j.eras) == 1 {
			j.latest = n
		}
		j.earliest = n
		count++
		if n == 0 || (j.history != 0 && count >= j.history) {
			break
		}
		h = header.ParentHash
		n--
	}
}

// TrieDB returns the underlying go-ethereum trie database, for components
// (state DB, verifier) that need to open state tries directly.
func (j *JournalDB) TrieDB() *trie.Database { return j.db }

// MarkCanonical records that `root` at `number` is now the canonical era,
// replacing any root recorded for that number before, then enforces
// `latest - earliest <= history` by dereferencing the oldest retained eras.
// The journal keeps no entries for non-canonical blocks, so their roots are
// neither tracked nor dereferenced here.
func (j *JournalDB) MarkCanonical(number uint64, root common.Hash) {
	j.mu.Lock()
	defer j.mu.Unlock()

	first := len(j.eras) == 0
	j.eras[number] = Era{Number: number, Root: root}
	if number > j.latest {
		j.latest = number
	}
	if first || number < j.earliest {
		j.earliest = number
	}

	if j.history == 0 {
		return // archive mode, never prune
	}
	for j.latest-j.earliest > j.history {
		old, ok := j.eras[j.earliest]
		if ok {
			if err := j.db.Dereference(old.Root); err != nil {
				log.Warn("Failed to dereference pruned era", "number", old.Number, "root", old.Root, "err", err)
			}
			delete(j.eras, j.earliest)
		}
		j.earliest++
	}
}

// Earliest returns the oldest era number still retained by the journal.
func (j *JournalDB) Earliest() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.earliest
}

// Latest returns the newest era number recorded by the journal.
func (j *JournalDB) Latest() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest
}

// EraAt returns the recorded era for a block number, or false if it has
// been pruned or was never recorded.
func (j *JournalDB) EraAt(number uint64) (Era, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	e, ok := j.eras[number]
	return e, ok
}

// PruningHistory reports the configured retention window, 0 meaning
// archive mode.
func (j *JournalDB) PruningHistory() uint64 { return j.history }

// IsPruned reports whether this journal ever discards eras, i.e. it is not
// running in archive mode.
func (j *JournalDB) IsPruned() bool { return j.history != 0 }

// Contains reports whether root is reachable through the underlying trie
// database, i.e. whether State(root) would succeed.
func (j *JournalDB) Contains(root common.Hash) bool {
	if root == (common.Hash{}) || root == types.EmptyRootHash {
		return true
	}
	_, err := j.State(root)
	return err == nil
}

// State returns the raw encoded root trie node for root, or ErrStatePruned
// if it is not retained (either never written, or pruned behind the
// history window).
func (j *JournalDB) State(root common.Hash) ([]byte, error) {
	reader, err := j.db.Reader(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatePruned, err)
	}
	blob, err := reader.Node(common.Hash{}, nil, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatePruned, err)
	}
	return blob, nil
}

// ErrStatePruned is returned by components that try to read state for an
// era the journal no longer retains.
var ErrStatePruned = fmt.Errorf("state for requested block not available (pruned)")
