// Package statedb is the state-access layer: it opens go-ethereum
// state.StateDBs against roots recorded by the journal, keeps a small LRU
// of recently opened state tries so repeated reads of the live head don't
// re-walk the trie from disk, and accounts for the memory the cache holds.
package statedb

import (
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/state/snapshot"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/fjl/memsize"

	"github.com/corechain/corechain/core/journaldb"
)

// Config tunes the state DB's caching behavior.
type Config struct {
	TrieCacheEntries int // number of recently-opened state.Database handles to keep
	SnapshotEnabled  bool
	FatDB            bool // retain the account-iteration trie needed by ListAccounts
}

// DefaultConfig keeps only a handful of state.Database handles alive:
// each one is far heavier than a header or body cache entry, and the
// import pipeline only ever needs the head, its parent, and a short tail
// of recent roots hot.
var DefaultConfig = Config{
	TrieCacheEntries: 8,
	SnapshotEnabled:  true,
}

// StateDB opens and caches account/storage state as of recorded eras.
type StateDB struct {
	journal *journaldb.JournalDB
	disk    ethdb.Database
	config  Config

	snaps *snapshot.Tree
	cache *lru.Cache[common.Hash, state.Database]

	// cleanCache is a fastcache instance owned by this package, counted by
	// MemSize. It is not the trie database's clean cache (the journal sizes
	// that one through trie.Config.HashDB.CleanCacheSize), and nothing in
	// this package writes to it.
	cleanCache *fastcache.Cache

	mu        sync.RWMutex
	canonRoot common.Hash // root BoxedClone reads; advanced by SyncCache(isCanon=true)
}

// New builds a StateDB over the given journal and disk backing store.
func New(journal *journaldb.JournalDB, disk ethdb.Database, cfg Config) *StateDB {
	if cfg.TrieCacheEntries <= 0 {
		cfg.TrieCacheEntries = DefaultConfig.TrieCacheEntries
	}
	sd := &StateDB{
		journal:    journal,
		disk:       disk,
		config:     cfg,
		cache:      lru.NewCache[common.Hash, state.Database](cfg.TrieCacheEntries),
		cleanCache: fastcache.New(32 * 1024 * 1024),
	}
	return sd
}

// StateAt opens a *state.StateDB as of the given post-state root. It
// returns journaldb.ErrStatePruned if the era backing that root has
// already been pruned out of the journal.
func (sd *StateDB) StateAt(root common.Hash) (*state.StateDB, error) {
	db, ok := sd.cache.Get(root)
	if !ok {
		db = state.NewDatabaseWithNodeDB(sd.disk, sd.journal.TrieDB())
		sd.cache.Add(root, db)
	}
	stdb, err := state.New(root, db, sd.snaps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", journaldb.ErrStatePruned, err)
	}
	return stdb, nil
}

// StateAtBlock is a convenience wrapper that resolves a block number to
// its recorded era before opening state. State "at" a block is the
// post-state of that block; state "before" is its parent's post-state.
func (sd *StateDB) StateAtBlock(number uint64) (*state.StateDB, error) {
	era, ok := sd.journal.EraAt(number)
	if !ok {
		return nil, journaldb.ErrStatePruned
	}
	return sd.StateAt(era.Root)
}

// BoxedClone opens a cheap read-only view at the current canonical root,
// the root most recently advanced by SyncCache(isCanon=true). Safe to call
// concurrently with commits in flight.
func (sd *StateDB) BoxedClone() (*state.StateDB, error) {
	sd.mu.RLock()
	root := sd.canonRoot
	sd.mu.RUnlock()
	return sd.StateAt(root)
}

// BoxedCloneCanon opens a mutable state view rooted at the parent block's
// post-state, pre-warmed through the same root-keyed state.Database cache
// StateAt uses, for a block about to execute against it. Takes the
// already-resolved parent root rather than a parent hash: hash-to-root
// resolution is the chain store's job (see Importer.commitBlock), and this
// package has no chain-store dependency of its own.
func (sd *StateDB) BoxedCloneCanon(parentRoot common.Hash) (*state.StateDB, error) {
	return sd.StateAt(parentRoot)
}

// JournalUnder stages a newly executed block's state delta: it commits the
// trie nodes state.Commit produced at root into the journal's trie.Database,
// then references root under its parent so the pruning journal's
// reachability tracking covers it until MarkCanonical or a later evict
// frees it.
func (sd *StateDB) JournalUnder(parentRoot, root common.Hash) error {
	triedb := sd.journal.TrieDB()
	if err := triedb.Commit(root, false); err != nil {
		return err
	}
	if parentRoot != (common.Hash{}) {
		triedb.Reference(root, parentRoot)
	}
	return nil
}

// MarkCanonical forwards to the journal's era-pruning bookkeeping.
func (sd *StateDB) MarkCanonical(number uint64, root common.Hash) {
	sd.journal.MarkCanonical(number, root)
}

// SyncCache reconciles the state cache after a commit: cached views rooted
// at a retracted block are dropped since that state is no longer part of
// the canonical chain and may be pruned behind it; if isCanon, the
// canonical-cache pointer BoxedClone reads advances to newRoot. Enacted
// roots need no explicit promotion — the LRU already orders by access, and
// the newly committed root enters it the first time StateAt opens it.
func (sd *StateDB) SyncCache(enactedRoots, retractedRoots []common.Hash, newRoot common.Hash, isCanon bool) {
	for _, root := range retractedRoots {
		sd.cache.Remove(root)
	}
	if isCanon {
		sd.mu.Lock()
		sd.canonRoot = newRoot
		sd.mu.Unlock()
	}
}

// EnableSnapshots attaches a snapshot tree rooted at root, used as the
// fast path for the live head's account/storage reads.
func (sd *StateDB) EnableSnapshots(root common.Hash) error {
	if !sd.config.SnapshotEnabled {
		return nil
	}
	tree, err := snapshot.New(snapshot.Config{
		CacheSize:  16,
		Recovery:   false,
		NoBuild:    false,
		AsyncBuild: true,
	}, sd.disk, sd.journal.TrieDB(), root)
	if err != nil {
		return err
	}
	sd.snaps = tree
	return nil
}

// MemSize reports the approximate memory held by the state cache, for
// ClientReport.StateDBMem.
func (sd *StateDB) MemSize() uint64 {
	var stats fastcache.Stats
	sd.cleanCache.UpdateStats(&stats)
	return stats.BytesSize + uint64(memsize.Scan(sd.cache).Total)
}

// ListAccounts performs fat-db style account iteration over the trie at
// root. Returns at most `count` addresses starting after `after` in trie-key
// order. Requires Config.FatDB, since iterating the full account trie is
// expensive and most deployments don't want the preimage index it implies.
func (sd *StateDB) ListAccounts(root common.Hash, after *common.Address, count int) ([]common.Address, error) {
	if !sd.config.FatDB {
		return nil, fmt.Errorf("account listing requires fat-db")
	}
	tr, err := trie.NewStateTrie(trie.StateTrieID(root), sd.journal.TrieDB())
	if err != nil {
		return nil, err
	}
	it, err := tr.NodeIterator(nil)
	if err != nil {
		return nil, err
	}
	accIt := trie.NewIterator(it)

	var (
		out  []common.Address
		skip = after != nil
	)
	for accIt.Next() {
		if len(out) >= count {
			break
		}
		addrBytes := tr.GetKey(accIt.Key)
		if addrBytes == nil {
			continue
		}
		addr := common.BytesToAddress(addrBytes)
		if skip {
			if addr == *after {
				skip = false
			}
			continue
		}
		out = append(out, addr)
	}
	return out, accIt.Err
}
