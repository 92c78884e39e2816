// Package core wires the components below it (journal, state, chain
// store, trace index, block queue, verifier, import engine, mode
// controller) into a single facade, the same role go-ethereum's own
// core.BlockChain plays for its components, adapted here to front this
// module's own pipeline instead of re-implementing it.
package core

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/corechain/corechain/consensus"
	"github.com/corechain/corechain/core/chainstore"
	"github.com/corechain/corechain/core/importer"
	"github.com/corechain/corechain/core/journaldb"
	"github.com/corechain/corechain/core/mode"
	"github.com/corechain/corechain/core/queue"
	"github.com/corechain/corechain/core/rawdb"
	"github.com/corechain/corechain/core/statedb"
	"github.com/corechain/corechain/core/tracedb"
	domaintypes "github.com/corechain/corechain/core/types"
	"github.com/corechain/corechain/core/verifier"
	"github.com/corechain/corechain/params"
)

// Config bundles the tunables for each component BlockChain wires together.
type Config struct {
	Journal journaldb.Config
	State   statedb.Config
	Queue   queue.Config
	VM      vm.Config
	Mode    domaintypes.Mode // starting liveness mode; the zero value is Active
}

// DefaultConfig mirrors the component packages' own defaults.
var DefaultConfig = Config{
	State: statedb.DefaultConfig,
	Queue: queue.DefaultConfig,
	Mode:  domaintypes.ModeActive(),
}

// BlockChain is the top-level facade: it owns the journal, state, chain
// store, trace index, block queue, verifier, import engine, and mode
// controller, and exposes the operations the node/RPC layer needs without
// requiring callers to wire the components themselves.
type BlockChain struct {
	db     ethdb.Database
	config *params.ChainConfig
	engine consensus.Engine

	journal  *journaldb.JournalDB
	state    *statedb.StateDB
	chain    *chainstore.ChainStore
	trace    *tracedb.TraceDB
	queue    *queue.Queue
	verifier *verifier.Verifier
	importer *importer.Importer
	mode     *mode.Controller

	procInterrupt int32 // atomic; set by Stop to abort in-flight header inserts
}

// NewBlockChain opens or initializes a chain database: it commits genesis if
// the database is empty, then constructs every component in dependency
// order (journal -> chain store -> state -> verifier -> queue -> importer).
func NewBlockChain(db ethdb.Database, cfg Config, genesis *Genesis, engine consensus.Engine) (*BlockChain, error) {
	if genesis == nil {
		genesis = DefaultGenesisBlock()
	}
	// Fat-db account iteration needs the trie-key preimage store, so the
	// chain config's flag has to reach the journal before the trie
	// database underneath it is built.
	if genesis.Config != nil && genesis.Config.Import != nil && genesis.Config.Import.FatDB {
		cfg.Journal.Preimages = true
		cfg.State.FatDB = true
	}
	// The chain config's pruning window becomes the journal's history
	// unless the caller set one explicitly.
	if cfg.Journal.History == 0 && genesis.Config != nil && genesis.Config.Import != nil {
		cfg.Journal.History = genesis.Config.Import.PruningHistory
	}
	journal := journaldb.New(db, cfg.Journal)

	chainConfig, _, err := SetupGenesisBlock(db, journal.TrieDB(), genesis)
	if err != nil {
		return nil, fmt.Errorf("setup genesis: %w", err)
	}

	bc := &BlockChain{
		db:      db,
		config:  chainConfig,
		engine:  engine,
		journal: journal,
	}

	bc.chain, err = chainstore.New(db, chainConfig, engine, bc.isInterrupted)
	if err != nil {
		return nil, fmt.Errorf("open chain store: %w", err)
	}

	bc.state = statedb.New(journal, db, cfg.State)
	if err := bc.state.EnableSnapshots(bc.chain.CurrentHeader().Root); err != nil {
		return nil, fmt.Errorf("enable snapshots: %w", err)
	}

	bc.verifier = verifier.New(chainConfig, engine, bc.chain, bc.state.StateAt, cfg.VM)
	bc.queue = queue.New(cfg.Queue, bc.chain, bc.verifier.VerifyStateless).WithPersistence(db)
	bc.trace = tracedb.New(db, chainConfig.Import.TraceWindow)
	bc.importer = importer.New(bc.chain, bc.state, journal, bc.trace, bc.verifier, bc.queue, db)

	if n := bc.queue.Replay(decodeQueuedBlock); n > 0 {
		log.Info("Replayed queued blocks from prior run", "count", n)
	}

	bc.mode = mode.New(bc.queue.Len, nil).WithPersistence(db)
	if _, ok := rawdb.ReadMode(db); !ok {
		bc.mode.SetMode(cfg.Mode) // no persisted mode yet; zero value is ModeActive(), a safe default
	}

	return bc, nil
}

// decodeQueuedBlock reconstructs a PreverifiedBlock from the RLP-encoded
// wire bytes the block queue persists, for replaying a prior run's
// queued-but-unimported blocks on restart.
func decodeQueuedBlock(enc []byte) (*domaintypes.PreverifiedBlock, error) {
	var block types.Block
	if err := rlp.DecodeBytes(enc, &block); err != nil {
		return nil, err
	}
	return &domaintypes.PreverifiedBlock{Block: &block, Bytes: enc, Received: time.Now().UnixNano()}, nil
}

func (bc *BlockChain) isInterrupted() bool {
	return atomic.LoadInt32(&bc.procInterrupt) != 0
}

// Stop aborts any in-flight header insertion, closes the importer (which
// unblocks and rejects any lock holder waiting on a chain mutation), and
// releases the block queue's worker pool.
func (bc *BlockChain) Stop() {
	atomic.StoreInt32(&bc.procInterrupt, 1)
	bc.importer.Close()
	bc.queue.Close()
}

// Config returns the chain configuration genesis established.
func (bc *BlockChain) Config() *params.ChainConfig { return bc.config }

// CurrentHeader returns the current canonical head header.
func (bc *BlockChain) CurrentHeader() *types.Header { return bc.chain.CurrentHeader() }

// GetHeader retrieves a header by hash and number.
func (bc *BlockChain) GetHeader(hash common.Hash, number uint64) *types.Header {
	return bc.chain.GetHeader(hash, number)
}

// GetHeaderByHash retrieves a header by hash.
func (bc *BlockChain) GetHeaderByHash(hash common.Hash) *types.Header {
	return bc.chain.GetHeaderByHash(hash)
}

// GetHeaderByNumber retrieves a header by canonical number.
func (bc *BlockChain) GetHeaderByNumber(number uint64) *types.Header {
	return bc.chain.GetHeaderByNumber(number)
}

// GetBody retrieves a block body by hash and number.
func (bc *BlockChain) GetBody(hash common.Hash, number uint64) *types.Body {
	return bc.chain.GetBody(hash, number)
}

// GetReceipts retrieves the receipts belonging to a block.
func (bc *BlockChain) GetReceipts(hash common.Hash, number uint64) types.Receipts {
	return bc.chain.GetReceipts(hash, number)
}

// Import hands a freshly received block to the block queue for stateless
// verification; it does not block waiting for verification to finish.
func (bc *BlockChain) Import(b *domaintypes.PreverifiedBlock) queue.Result {
	bc.mode.KeepAlive()
	return bc.queue.Import(b)
}

// ProcessQueue drains up to max verified blocks from the queue and
// executes, commits, and notifies on each in order.
func (bc *BlockChain) ProcessQueue(max int) (domaintypes.ImportRoute, error) {
	return bc.importer.ImportVerifiedBlocks(max)
}

// Flush blocks until every block submitted to the queue before this call has
// finished stateless verification.
func (bc *BlockChain) Flush() { bc.queue.Flush() }

// Tick drives the mode controller's idle/sleep/wake evaluation; callers run
// this on a periodic timer.
func (bc *BlockChain) Tick() { bc.mode.Tick() }

// Mode returns the current liveness mode.
func (bc *BlockChain) Mode() domaintypes.Mode { return bc.mode.Mode() }

// SetMode forces the liveness mode, e.g. from an admin RPC call.
func (bc *BlockChain) SetMode(m domaintypes.Mode) { bc.mode.SetMode(m) }

// SetMiner attaches the sealing collaborator notified when the import
// pipeline catches up with its queue.
func (bc *BlockChain) SetMiner(m importer.Miner) { bc.importer.SetMiner(m) }

// ImportSealedBlock commits a locally produced block through the same
// commit path as queue-imported blocks.
func (bc *BlockChain) ImportSealedBlock(sealed *domaintypes.SealedBlock) (domaintypes.ImportRoute, error) {
	return bc.importer.ImportSealedBlock(sealed)
}

// SubscribeChainEvent registers a subscriber for imported-block notifications.
func (bc *BlockChain) SubscribeChainEvent(ch chan<- importer.ChainEvent) event.Subscription {
	return bc.importer.SubscribeChainEvent(ch)
}

// Report returns a snapshot of the running import statistics.
func (bc *BlockChain) Report() domaintypes.ClientReport { return bc.importer.Report() }

// StateAt opens read-only state as of the post-state of the given block.
func (bc *BlockChain) StateAt(hash common.Hash) (*state.StateDB, error) {
	return bc.importer.StateAt(hash)
}

// StateAtBeginning opens read-only state as of the given block's parent,
// i.e. the state the block itself executed against.
func (bc *BlockChain) StateAtBeginning(hash common.Hash) (*state.StateDB, error) {
	return bc.importer.StateAtBeginning(hash)
}

// ListAccounts performs fat-db account iteration over the state at root.
func (bc *BlockChain) ListAccounts(root common.Hash, after *common.Address, count int) ([]common.Address, error) {
	return bc.state.ListAccounts(root, after, count)
}

// Trace retrieves the stored trace set for a block, or nil if none was ever
// recorded (pruned or never traced).
func (bc *BlockChain) Trace(number uint64, hash common.Hash) (*tracedb.BlockTrace, error) {
	return bc.trace.Read(number, hash)
}

// TransactionTraces returns the call frames recorded for one transaction of
// a stored block.
func (bc *BlockChain) TransactionTraces(number uint64, hash, txHash common.Hash) ([]tracedb.Trace, error) {
	return bc.trace.TransactionTraces(number, hash, txHash)
}

// FilterTraces evaluates a go-bexpr predicate over every canonical block's
// trace set in [from, to].
func (bc *BlockChain) FilterTraces(from, to uint64, expr string) ([]tracedb.Trace, error) {
	return bc.trace.FilterRange(from, to, bc.chain.GetCanonicalHash, expr)
}

// FindUncleHashes collects the uncle hashes included by the maxAge most
// recent ancestors of the given block.
func (bc *BlockChain) FindUncleHashes(hash common.Hash, maxAge int) []common.Hash {
	return bc.chain.FindUncleHashes(hash, maxAge)
}

// BlocksWithBloom returns the canonical block numbers in [from, to] whose
// header bloom covers the query bloom.
func (bc *BlockChain) BlocksWithBloom(query types.Bloom, from, to uint64) []uint64 {
	return bc.chain.BlocksWithBloom(query, from, to)
}

// Logs collects matching logs from the given canonical block numbers, up to
// limit total.
func (bc *BlockChain) Logs(numbers []uint64, predicate func(*types.Log) bool, limit int) []*types.Log {
	return bc.chain.Logs(numbers, predicate, limit)
}

// TransactionAddress resolves a transaction hash to its canonical block
// hash, number, and in-block index.
func (bc *BlockChain) TransactionAddress(txHash common.Hash) (common.Hash, uint64, uint64, bool) {
	return bc.chain.TransactionAddress(txHash)
}

// TransactionReceipt returns the receipt belonging to a transaction hash.
func (bc *BlockChain) TransactionReceipt(txHash common.Hash) (*types.Receipt, bool) {
	return bc.chain.TransactionReceipt(txHash)
}

// Call executes msg read-only against the state at `at`, without mutating
// any persistent state.
func (bc *BlockChain) Call(at common.Hash, msg *gethcore.Message) (*gethcore.ExecutionResult, error) {
	header := bc.chain.GetHeaderByHash(at)
	if header == nil {
		return nil, fmt.Errorf("unknown block %x", at)
	}
	statedb, err := bc.state.StateAt(header.Root)
	if err != nil {
		return nil, err
	}
	blockContext := NewEVMBlockContext(header, chainContext{bc}, &header.Coinbase, bc.config)
	evm := vm.NewEVM(blockContext, gethcore.NewEVMTxContext(msg), statedb, bc.config.Eth, vm.Config{NoBaseFee: true})
	gp := new(gethcore.GasPool).AddGas(msg.GasLimit)
	return gethcore.ApplyMessage(evm, msg, gp)
}

// Replay re-executes the transaction at txIndex within block `at` against
// the state that block saw at that point: its parent's state plus every
// preceding transaction in the same block. Returns ErrStatePruned if the
// block's parent state is no longer retained.
func (bc *BlockChain) Replay(at common.Hash, txIndex int) (*gethcore.ExecutionResult, error) {
	header := bc.chain.GetHeaderByHash(at)
	if header == nil {
		return nil, fmt.Errorf("unknown block %x", at)
	}
	body := bc.chain.GetBody(at, header.Number.Uint64())
	if body == nil || txIndex < 0 || txIndex >= len(body.Transactions) {
		return nil, fmt.Errorf("unknown transaction index %d in block %x", txIndex, at)
	}
	parent := bc.chain.GetHeader(header.ParentHash, header.Number.Uint64()-1)
	if parent == nil {
		return nil, fmt.Errorf("unknown parent of block %x", at)
	}
	statedb, err := bc.state.StateAt(parent.Root)
	if err != nil {
		return nil, err
	}

	blockContext := NewEVMBlockContext(header, chainContext{bc}, &header.Coinbase, bc.config)
	signer := types.MakeSigner(bc.config.Eth, header.Number, header.Time)
	evm := vm.NewEVM(blockContext, vm.TxContext{}, statedb, bc.config.Eth, vm.Config{})
	gp := new(gethcore.GasPool).AddGas(header.GasLimit)

	var result *gethcore.ExecutionResult
	for i, tx := range body.Transactions {
		msg, err := verifier.TransactionToMessage(tx, signer)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		statedb.SetTxContext(tx.Hash(), i)
		evm.Reset(gethcore.NewEVMTxContext(msg), statedb)
		result, err = gethcore.ApplyMessage(evm, msg, gp)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		if i == txIndex {
			break
		}
	}
	return result, nil
}

// TakeSnapshot writes a point-in-time snapshot of state at block `at`.
func (bc *BlockChain) TakeSnapshot(at common.Hash, writer importerSnapshotWriter, progress func(accounts, bytes int)) error {
	return bc.importer.TakeSnapshot(at, writer, progress)
}

// ImportOldBlock backfills an ancient block below the journal's retained
// window: its format and receipts are verified, but it is neither executed
// nor made canonical. Used for old-block backfill during a restore.
func (bc *BlockChain) ImportOldBlock(block *types.Block, receipts types.Receipts) error {
	return bc.importer.ImportOldBlock(block, receipts)
}

// Restore replays a freshly populated backing store into the live one.
// Callers should Flush first so no verified block is mid-commit when the
// copy runs.
func (bc *BlockChain) Restore(newBacking ethdb.Iteratee) (int, error) {
	return bc.importer.Restore(newBacking)
}

// importerSnapshotWriter mirrors core/importer's unexported snapshotWriter
// contract so callers outside this module can satisfy TakeSnapshot without
// reaching into the importer package.
type importerSnapshotWriter interface {
	WriteSnapshot(root common.Hash, progress func(accounts, bytes int)) error
}

// AdditionalParams reports the import-pipeline configuration an RPC layer
// might surface alongside whatever the consensus engine reports about
// itself.
func (bc *BlockChain) AdditionalParams() map[string]string {
	return map[string]string{
		"pruningHistory": fmt.Sprintf("%d", bc.journal.PruningHistory()),
		"fatDb":          fmt.Sprintf("%t", bc.config.Import.FatDB),
	}
}

// extraInfoEngine is an optional interface a consensus.Engine may implement
// to attach engine-specific metadata to a header, e.g. seal/signature
// details not already exposed on types.Header.
type extraInfoEngine interface {
	BlockExtraInfo(header *types.Header) map[string]string
}

// BlockExtraInfo forwards to the engine's BlockExtraInfo if it implements
// extraInfoEngine, or returns nil otherwise.
func (bc *BlockChain) BlockExtraInfo(hash common.Hash) map[string]string {
	header := bc.chain.GetHeaderByHash(hash)
	if header == nil {
		return nil
	}
	if ei, ok := bc.engine.(extraInfoEngine); ok {
		return ei.BlockExtraInfo(header)
	}
	return nil
}
