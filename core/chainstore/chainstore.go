// Package chainstore is the block-chain store: header/body/receipt
// storage, canonical-number bookkeeping, and the enacted/retracted route
// computation reorgs need. It generalizes the header-chain half of
// go-ethereum's own core.BlockChain into something that also knows how to
// report a TreeRoute between two arbitrary blocks, not just extend or
// replace the head.
package chainstore

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand"
	"sync"
	"time"

	crand "crypto/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	gethconsensus "github.com/ethereum/go-ethereum/consensus"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/corechain/corechain/consensus"
	"github.com/corechain/corechain/core/rawdb"
	domaintypes "github.com/corechain/corechain/core/types"
	"github.com/corechain/corechain/params"
)

const (
	headerCacheLimit = 512
	numberCacheLimit = 2048
	bodyCacheLimit   = 256

	// lastHashesWindowSize is the number of ancestor hashes BLOCKHASH
	// execution may address, per EVM spec.
	lastHashesWindowSize = 256
)

// lastHashes is the ordered cache of the most recent canonical block
// hashes, front being the tip's own hash. UpdateLastHashes keeps it warm
// across sequential imports; any non-sequential jump (reorg, gap) just
// invalidates it, and BuildLastHashes lazily rebuilds by walking parent
// pointers on next use.
type lastHashes struct {
	mu     sync.Mutex
	front  common.Hash
	hashes []common.Hash // front-to-back, most recent first; empty means invalidated
}

var headHeaderGauge = metrics.NewRegisteredGauge("corechain/chainstore/head", nil)

// ChainStore owns header/body/receipt persistence and the canonical number
// index. It is not safe for concurrent mutation (Reorg/WriteHeaders) without
// external locking, matching the header-chain convention the encapsulating
// importer follows; reads are safe to call concurrently with writes and
// never observe a partially written batch.
type ChainStore struct {
	config  *params.ChainConfig
	db      ethdb.Database
	genesis *types.Header

	mu            sync.RWMutex // guards currentHeader swap only; batch writes hold their own consistency via atomic disk batch.Write
	currentHeader *types.Header

	headerCache *lru.Cache[common.Hash, *types.Header]
	numberCache *lru.Cache[common.Hash, uint64]
	bodyCache   *lru.Cache[common.Hash, *types.Body]
	tdCache     *lru.Cache[common.Hash, *big.Int]

	procInterrupt func() bool
	rand          *mrand.Rand
	engine        consensus.Engine

	lastHashes lastHashes
}

// New opens a ChainStore over chainDb, requiring the genesis header to
// already be written (core/genesis.go's job).
func New(chainDb ethdb.Database, config *params.ChainConfig, engine consensus.Engine, procInterrupt func() bool) (*ChainStore, error) {
	seed, err := crand.Int(crand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return nil, err
	}
	cs := &ChainStore{
		config:        config,
		db:            chainDb,
		headerCache:   lru.NewCache[common.Hash, *types.Header](headerCacheLimit),
		numberCache:   lru.NewCache[common.Hash, uint64](numberCacheLimit),
		bodyCache:     lru.NewCache[common.Hash, *types.Body](bodyCacheLimit),
		tdCache:       lru.NewCache[common.Hash, *big.Int](headerCacheLimit),
		procInterrupt: procInterrupt,
		rand:          mrand.New(mrand.NewSource(seed.Int64())),
		engine:        engine,
	}
	cs.genesis = cs.GetHeaderByNumber(config.Import.GenesisBlock.Uint64())
	if cs.genesis == nil {
		return nil, gethcore.ErrNoGenesis
	}
	cs.currentHeader = cs.genesis
	if head := gethrawdb.ReadHeadBlockHash(chainDb); head != (common.Hash{}) {
		if chead := cs.GetHeaderByHash(head); chead != nil {
			cs.currentHeader = chead
		}
	}
	headHeaderGauge.Update(cs.CurrentHeader().Number.Int64())
	return cs, nil
}

// GetBlockNumber retrieves the block number belonging to the given hash
// from cache or database.
func (cs *ChainStore) GetBlockNumber(hash common.Hash) *uint64 {
	if cached, ok := cs.numberCache.Get(hash); ok {
		return &cached
	}
	number := gethrawdb.ReadHeaderNumber(cs.db, hash)
	if number != nil {
		cs.numberCache.Add(hash, *number)
	}
	return number
}

// GetHeader retrieves a header by hash and number, caching it if found.
func (cs *ChainStore) GetHeader(hash common.Hash, number uint64) *types.Header {
	if header, ok := cs.headerCache.Get(hash); ok {
		return header
	}
	header := rawdb.ReadHeader(cs.db, hash, number)
	if header == nil {
		return nil
	}
	cs.headerCache.Add(hash, header)
	return header
}

// GetHeaderByHash retrieves a header by hash, caching it if found.
func (cs *ChainStore) GetHeaderByHash(hash common.Hash) *types.Header {
	number := cs.GetBlockNumber(hash)
	if number == nil {
		return nil
	}
	return cs.GetHeader(hash, *number)
}

// GetHeaderByNumber retrieves a header by its canonical number.
func (cs *ChainStore) GetHeaderByNumber(number uint64) *types.Header {
	hash := gethrawdb.ReadCanonicalHash(cs.db, number)
	if hash == (common.Hash{}) {
		return nil
	}
	return cs.GetHeader(hash, number)
}

// HasHeader checks whether a header is present, in cache or on disk.
func (cs *ChainStore) HasHeader(hash common.Hash, number uint64) bool {
	if cs.numberCache.Contains(hash) || cs.headerCache.Contains(hash) {
		return true
	}
	return gethrawdb.HasHeader(cs.db, hash, number)
}

// GetCanonicalHash returns the canonical hash recorded for a number.
func (cs *ChainStore) GetCanonicalHash(number uint64) common.Hash {
	return gethrawdb.ReadCanonicalHash(cs.db, number)
}

// CurrentHeader returns the current head header. Safe for concurrent use.
func (cs *ChainStore) CurrentHeader() *types.Header {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.currentHeader
}

func (cs *ChainStore) setCurrentHeader(h *types.Header) {
	cs.mu.Lock()
	cs.currentHeader = h
	cs.mu.Unlock()
	headHeaderGauge.Update(h.Number.Int64())
}

// Config returns the chain configuration.
func (cs *ChainStore) Config() *params.ChainConfig { return cs.config }

// GetBody retrieves a block body by hash and number, caching it if found.
func (cs *ChainStore) GetBody(hash common.Hash, number uint64) *types.Body {
	if body, ok := cs.bodyCache.Get(hash); ok {
		return body
	}
	body := rawdb.ReadBody(cs.db, hash, number)
	if body == nil {
		return nil
	}
	cs.bodyCache.Add(hash, body)
	return body
}

// GetReceipts retrieves all receipts belonging to a block.
func (cs *ChainStore) GetReceipts(hash common.Hash, number uint64) types.Receipts {
	return gethrawdb.ReadReceipts(cs.db, hash, number, cs.GetHeader(hash, number).Time, cs.config.Eth)
}

// GetAncestor retrieves the Nth ancestor of a given block, assuming the
// given block or a close ancestor of it is canonical. maxNonCanonical
// bounds how many blocks are individually walked before giving up.
func (cs *ChainStore) GetAncestor(hash common.Hash, number, ancestor uint64, maxNonCanonical *uint64) (common.Hash, uint64) {
	if ancestor > number {
		return common.Hash{}, 0
	}
	if ancestor == 1 {
		if header := cs.GetHeader(hash, number); header != nil {
			return header.ParentHash, number - 1
		}
		return common.Hash{}, 0
	}
	for ancestor != 0 {
		if cs.GetCanonicalHash(number) == hash {
			ancestorHash := cs.GetCanonicalHash(number - ancestor)
			if cs.GetCanonicalHash(number) == hash {
				return ancestorHash, number - ancestor
			}
		}
		if *maxNonCanonical == 0 {
			return common.Hash{}, 0
		}
		*maxNonCanonical--
		ancestor--
		header := cs.GetHeader(hash, number)
		if header == nil {
			return common.Hash{}, 0
		}
		hash, number = header.ParentHash, number-1
	}
	return hash, number
}

// TreeRoute computes the path between two blocks already present in the
// header tree: the common ancestor, and the blocks retracted walking up
// from `from` versus enacted walking up from `to`. The import engine uses
// this to decide which blocks leave and which join the canonical chain on
// a reorg.
func (cs *ChainStore) TreeRoute(from, to common.Hash) (domaintypes.TreeRoute, error) {
	var (
		route                domaintypes.TreeRoute
		fromHeader, toHeader = cs.GetHeaderByHash(from), cs.GetHeaderByHash(to)
	)
	if fromHeader == nil || toHeader == nil {
		return route, errors.New("unknown block in tree route")
	}
	fromChain := []common.Hash{}
	toChain := []common.Hash{}

	for fromHeader.Number.Uint64() > toHeader.Number.Uint64() {
		fromChain = append(fromChain, fromHeader.Hash())
		fromHeader = cs.GetHeaderByHash(fromHeader.ParentHash)
		if fromHeader == nil {
			return route, errors.New("missing ancestor while computing tree route")
		}
	}
	for toHeader.Number.Uint64() > fromHeader.Number.Uint64() {
		toChain = append(toChain, toHeader.Hash())
		toHeader = cs.GetHeaderByHash(toHeader.ParentHash)
		if toHeader == nil {
			return route, errors.New("missing ancestor while computing tree route")
		}
	}
	for fromHeader.Hash() != toHeader.Hash() {
		fromChain = append(fromChain, fromHeader.Hash())
		toChain = append(toChain, toHeader.Hash())
		fromHeader = cs.GetHeaderByHash(fromHeader.ParentHash)
		toHeader = cs.GetHeaderByHash(toHeader.ParentHash)
		if fromHeader == nil || toHeader == nil {
			return route, errors.New("missing common ancestor while computing tree route")
		}
	}

	route.Ancestor = fromHeader.Hash()
	route.Retracted = fromChain
	// Both chains were built tip-first, in descending order. Retracted keeps
	// that order (from -> ancestor); toChain is reversed so Enacted reads
	// ancestor -> to.
	route.Enacted = make([]common.Hash, len(toChain))
	for i, h := range toChain {
		route.Enacted[len(toChain)-1-i] = h
	}
	return route, nil
}

// FindUncleHashes collects the uncle hashes included by the maxAge most
// recent ancestors of the given block (itself included), the set a
// sealing collaborator must exclude when picking fresh uncles.
func (cs *ChainStore) FindUncleHashes(hash common.Hash, maxAge int) []common.Hash {
	var out []common.Hash
	number := cs.GetBlockNumber(hash)
	for depth := 0; depth < maxAge && number != nil; depth++ {
		header := cs.GetHeader(hash, *number)
		if header == nil {
			break
		}
		if body := cs.GetBody(hash, *number); body != nil {
			for _, uncle := range body.Uncles {
				out = append(out, uncle.Hash())
			}
		}
		if *number == 0 {
			break
		}
		n := *number - 1
		hash, number = header.ParentHash, &n
	}
	return out
}

// bloomCovers reports whether every bit set in want is also set in have,
// i.e. have may contain the logs want describes.
func bloomCovers(have, want types.Bloom) bool {
	for i := range want {
		if have[i]&want[i] != want[i] {
			return false
		}
	}
	return true
}

// BlocksWithBloom returns the canonical block numbers in [from, to] whose
// header bloom covers the query bloom — the candidates a ranged log query
// must then confirm against real receipts, since blooms admit false
// positives but never false negatives.
func (cs *ChainStore) BlocksWithBloom(query types.Bloom, from, to uint64) []uint64 {
	var out []uint64
	for n := from; n <= to; n++ {
		header := cs.GetHeaderByNumber(n)
		if header == nil {
			continue
		}
		if bloomCovers(header.Bloom, query) {
			out = append(out, n)
		}
	}
	return out
}

// Logs collects receipts' logs from the given canonical block numbers,
// keeping those predicate accepts, up to limit total (limit <= 0 means
// unbounded). Numbers whose receipts are missing are skipped.
func (cs *ChainStore) Logs(numbers []uint64, predicate func(*types.Log) bool, limit int) []*types.Log {
	var out []*types.Log
	for _, n := range numbers {
		hash := cs.GetCanonicalHash(n)
		if hash == (common.Hash{}) {
			continue
		}
		for _, receipt := range cs.GetReceipts(hash, n) {
			for _, logEntry := range receipt.Logs {
				if predicate != nil && !predicate(logEntry) {
					continue
				}
				out = append(out, logEntry)
				if limit > 0 && len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// TransactionAddress resolves a transaction hash to its canonical block
// hash, block number, and in-block index via the lookup entries staged at
// commit time.
func (cs *ChainStore) TransactionAddress(txHash common.Hash) (blockHash common.Hash, blockNumber uint64, index uint64, ok bool) {
	numberPtr := gethrawdb.ReadTxLookupEntry(cs.db, txHash)
	if numberPtr == nil {
		return common.Hash{}, 0, 0, false
	}
	blockNumber = *numberPtr
	blockHash = cs.GetCanonicalHash(blockNumber)
	if blockHash == (common.Hash{}) {
		return common.Hash{}, 0, 0, false
	}
	body := cs.GetBody(blockHash, blockNumber)
	if body == nil {
		return common.Hash{}, 0, 0, false
	}
	for i, tx := range body.Transactions {
		if tx.Hash() == txHash {
			return blockHash, blockNumber, uint64(i), true
		}
	}
	return common.Hash{}, 0, 0, false
}

// TransactionReceipt returns the receipt belonging to a transaction hash,
// resolved through TransactionAddress.
func (cs *ChainStore) TransactionReceipt(txHash common.Hash) (*types.Receipt, bool) {
	blockHash, blockNumber, index, ok := cs.TransactionAddress(txHash)
	if !ok {
		return nil, false
	}
	receipts := cs.GetReceipts(blockHash, blockNumber)
	if index >= uint64(len(receipts)) {
		return nil, false
	}
	return receipts[index], true
}

type headerWriteResult struct {
	canon      bool
	ignored    int
	imported   int
	lastHash   common.Hash
	lastHeader *types.Header
}

// WriteHeadersBatch writes a chain of headers (and their accumulated total
// difficulty) assuming their parents are already known, into the caller's
// batch rather than a batch of its own. It performs no I/O and updates no
// head pointer; the caller decides when (and alongside what else) to write
// the batch, so several stores can share one atomic commit.
func (cs *ChainStore) WriteHeadersBatch(batch ethdb.KeyValueWriter, headers []*types.Header) (int, error) {
	if len(headers) == 0 {
		return 0, nil
	}
	parentTd := cs.GetTd(headers[0].ParentHash, headers[0].Number.Uint64()-1)
	if parentTd == nil {
		return 0, gethconsensus.ErrUnknownAncestor
	}
	if cs.procInterrupt() {
		log.Debug("Premature abort during headers import")
		return 0, errors.New("aborted")
	}
	var (
		inserted    []gethrawdb.NumberHash
		parentKnown = true
		td          = new(big.Int).Set(parentTd)
	)
	for _, header := range headers {
		hash := header.Hash()
		number := header.Number.Uint64()
		td = new(big.Int).Add(td, header.Difficulty)

		alreadyKnown := parentKnown && cs.HasHeader(hash, number)
		if !alreadyKnown {
			rawdb.WriteHeader(batch, header)
			gethrawdb.WriteTd(batch, hash, number, td)
			inserted = append(inserted, gethrawdb.NumberHash{Number: number, Hash: hash})
			cs.headerCache.Add(hash, header)
			cs.numberCache.Add(hash, number)
			cs.tdCache.Add(hash, new(big.Int).Set(td))
		}
		parentKnown = alreadyKnown
	}
	return len(inserted), nil
}

// WriteHeaders writes a chain of headers assuming their parents are
// already known, accumulating each header's total difficulty from its
// parent's. The head pointer is not updated; callers finish the procedure
// with Reorg once they have decided (via GetTd) that this chain outweighs
// the current canonical one. This is a self-contained, single-batch
// convenience wrapper around WriteHeadersBatch for callers (InsertHeaderChain,
// tests) that are not threading a shared batch of their own.
func (cs *ChainStore) WriteHeaders(headers []*types.Header) (int, error) {
	batch := cs.db.NewBatch()
	inserted, err := cs.WriteHeadersBatch(batch, headers)
	if err != nil {
		return 0, err
	}
	if err := batch.Write(); err != nil {
		log.Crit("Failed to write headers", "error", err)
	}
	return inserted, nil
}

// GetTd returns the total difficulty accumulated up to and including the
// given header, or nil if the header (or one of its ancestors) is unknown.
func (cs *ChainStore) GetTd(hash common.Hash, number uint64) *big.Int {
	if cached, ok := cs.tdCache.Get(hash); ok {
		return cached
	}
	td := gethrawdb.ReadTd(cs.db, hash, number)
	if td != nil {
		cs.tdCache.Add(hash, td)
	}
	return td
}

// IsHeavier reports whether candidate (identified by hash/number) carries
// strictly more total difficulty than the current canonical head. The
// canonical chain is the one with maximum total difficulty, ties broken by
// first-seen, so a tie never displaces the incumbent.
func (cs *ChainStore) IsHeavier(hash common.Hash, number uint64) bool {
	candidateTd := cs.GetTd(hash, number)
	if candidateTd == nil {
		return false
	}
	head := cs.CurrentHeader()
	headTd := cs.GetTd(head.Hash(), head.Number.Uint64())
	if headTd == nil {
		return true
	}
	return candidateTd.Cmp(headTd) > 0
}

// ReorgBatch rewrites the canonical-number mapping to the given headers,
// which must form a contiguous chain ending at the new head, into the
// caller's batch. It performs no I/O and does not move the in-memory head
// pointer — callers apply that with CommitReorg only after the batch holding
// this write (and whatever else shares it) has been durably written, so a
// reader can never observe the pointer moved ahead of the data it points to.
func (cs *ChainStore) ReorgBatch(batch ethdb.KeyValueWriter, headers []*types.Header) error {
	if len(headers) == 0 {
		return nil
	}
	var (
		first = headers[0]
		last  = headers[len(headers)-1]
	)
	if first.ParentHash != cs.CurrentHeader().Hash() {
		for i := last.Number.Uint64() + 1; ; i++ {
			hash := gethrawdb.ReadCanonicalHash(cs.db, i)
			if hash == (common.Hash{}) {
				break
			}
			gethrawdb.DeleteCanonicalHash(batch, i)
		}
		var (
			header     = first
			headNumber = header.Number.Uint64()
			headHash   = header.Hash()
		)
		for gethrawdb.ReadCanonicalHash(cs.db, headNumber) != headHash {
			gethrawdb.WriteCanonicalHash(batch, headHash, headNumber)
			if headNumber == 0 {
				break
			}
			headHash, headNumber = header.ParentHash, header.Number.Uint64()-1
			header = cs.GetHeader(headHash, headNumber)
			if header == nil {
				return fmt.Errorf("missing parent %d %x", headNumber, headHash)
			}
		}
	}
	for _, header := range headers {
		gethrawdb.WriteCanonicalHash(batch, header.Hash(), header.Number.Uint64())
		gethrawdb.WriteHeadHeaderHash(batch, header.Hash())
		gethrawdb.WriteHeadBlockHash(batch, header.Hash())
	}
	return nil
}

// CommitReorg moves the in-memory head pointer to the last of headers. Must
// only be called after a batch containing ReorgBatch's writes for the same
// headers has been durably written.
func (cs *ChainStore) CommitReorg(headers []*types.Header) {
	if len(headers) == 0 {
		return
	}
	cs.setCurrentHeader(types.CopyHeader(headers[len(headers)-1]))
}

// UpdateLastHashes pushes hash to the front of the last-hashes window if
// parent is the window's current front, keeping it warm across sequential
// imports; otherwise it invalidates the window, to be rebuilt lazily by the
// next BuildLastHashes call.
func (cs *ChainStore) UpdateLastHashes(parent, hash common.Hash) {
	lh := &cs.lastHashes
	lh.mu.Lock()
	defer lh.mu.Unlock()
	if len(lh.hashes) > 0 && lh.hashes[0] == parent {
		lh.hashes = append([]common.Hash{hash}, lh.hashes...)
		if len(lh.hashes) > lastHashesWindowSize {
			lh.hashes = lh.hashes[:lastHashesWindowSize]
		}
	} else {
		lh.hashes = nil
	}
	lh.front = hash
}

// BuildLastHashes returns the up-to-256 most recent canonical hashes ending
// at tip, rebuilding by walking parent pointers if the cached window is
// stale or was never built for this tip.
func (cs *ChainStore) BuildLastHashes(tip common.Hash) []common.Hash {
	lh := &cs.lastHashes
	lh.mu.Lock()
	defer lh.mu.Unlock()
	if len(lh.hashes) == 0 || lh.front != tip {
		lh.hashes = cs.walkLastHashes(tip, lastHashesWindowSize)
		lh.front = tip
	}
	out := make([]common.Hash, len(lh.hashes))
	copy(out, lh.hashes)
	return out
}

func (cs *ChainStore) walkLastHashes(tip common.Hash, max int) []common.Hash {
	out := make([]common.Hash, 0, max)
	number := cs.GetBlockNumber(tip)
	hash := tip
	for len(out) < max && number != nil {
		header := cs.GetHeader(hash, *number)
		if header == nil {
			break
		}
		out = append(out, hash)
		if *number == 0 {
			break
		}
		n := *number - 1
		hash, number = header.ParentHash, &n
	}
	return out
}

// Reorg reorgs the canonical chain to the given headers, which must form a
// contiguous chain ending at the new head. Self-contained, single-batch
// convenience wrapper around ReorgBatch/CommitReorg for callers
// (InsertHeaderChain, tests) not threading a shared batch of their own.
func (cs *ChainStore) Reorg(headers []*types.Header) error {
	batch := cs.db.NewBatch()
	if err := cs.ReorgBatch(batch, headers); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}
	cs.CommitReorg(headers)
	return nil
}

// InsertHeaderChain validates then inserts headers, returning whether the
// insert became canonical.
func (cs *ChainStore) InsertHeaderChain(chain []*types.Header, start time.Time) (bool, error) {
	if cs.procInterrupt() {
		return false, errors.New("aborted")
	}
	if err := cs.validateHeaderChain(chain); err != nil {
		return false, err
	}
	inserted, err := cs.WriteHeaders(chain)
	if err != nil {
		return false, err
	}
	var (
		last   = chain[len(chain)-1]
		result = headerWriteResult{
			ignored:    len(chain) - inserted,
			imported:   inserted,
			lastHash:   last.Hash(),
			lastHeader: last,
		}
	)
	if cs.GetCanonicalHash(last.Number.Uint64()) == last.Hash() && last.Number.Uint64() <= cs.CurrentHeader().Number.Uint64() {
		cs.logInsert(result)
		return false, nil
	}
	if err := cs.Reorg(chain); err != nil {
		return false, err
	}
	result.canon = true
	cs.logInsert(result)
	return true, nil
}

func (cs *ChainStore) logInsert(res headerWriteResult) {
	context := []interface{}{"count", res.imported}
	if last := res.lastHeader; last != nil {
		context = append(context, "number", last.Number, "hash", res.lastHash)
	}
	if res.ignored > 0 {
		context = append(context, "ignored", res.ignored)
	}
	log.Debug("Imported new block headers", context...)
}

func (cs *ChainStore) validateHeaderChain(chain []*types.Header) error {
	for i := 1; i < len(chain); i++ {
		if chain[i].Number.Uint64() != chain[i-1].Number.Uint64()+1 {
			return fmt.Errorf("non contiguous insert: item %d is #%d, item %d is #%d",
				i-1, chain[i-1].Number, i, chain[i].Number)
		}
	}
	abort, results := cs.engine.VerifyHeaders(cs, chain)
	defer close(abort)
	for range chain {
		if cs.procInterrupt() {
			return errors.New("aborted")
		}
		if err := <-results; err != nil {
			return err
		}
	}
	return nil
}
