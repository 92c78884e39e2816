package core_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethparams "github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/consensus"
	"github.com/corechain/corechain/core"
	"github.com/corechain/corechain/core/queue"
	domaintypes "github.com/corechain/corechain/core/types"
	"github.com/corechain/corechain/params"
)

func newGenesis() *core.Genesis {
	return &core.Genesis{
		Config:   params.MainnetChainConfig,
		GasLimit: params.DefaultMinBlockGasLimit,
		Alloc:    make(core.GenesisAlloc),
	}
}

// noopEngine accepts every header, standing in for the pluggable consensus
// engine this module delegates rule-checking to.
type noopEngine struct{}

func (noopEngine) VerifyHeader(consensus.ChainHeaderReader, *types.Header) error { return nil }

func (noopEngine) VerifyHeaders(_ consensus.ChainHeaderReader, headers []*types.Header) (chan<- struct{}, <-chan error) {
	abort := make(chan struct{})
	results := make(chan error, len(headers))
	for range headers {
		results <- nil
	}
	return abort, results
}

func (noopEngine) APIs(consensus.ChainHeaderReader) []rpc.API { return nil }
func (noopEngine) Close() error                               { return nil }

// rejectingEngine behaves like noopEngine except it fails family
// verification for one specific header number, standing in for a
// consensus rule violation discovered only once a block reaches the
// import loop (its parent-independent checks already passed the queue).
type rejectingEngine struct {
	noopEngine
	reject uint64
}

func (e rejectingEngine) VerifyHeader(_ consensus.ChainHeaderReader, header *types.Header) error {
	if header.Number.Uint64() == e.reject {
		return errRejected
	}
	return nil
}

var errRejected = errors.New("rejected by consensus rule")

func newTestChain(t *testing.T) *core.BlockChain {
	t.Helper()
	db := rawdb.NewMemoryDatabase()
	bc, err := core.NewBlockChain(db, core.DefaultConfig, newGenesis(), noopEngine{})
	require.NoError(t, err)
	return bc
}

// chainExtension builds n empty (no-transaction) blocks extending parent,
// each preserving the parent's state root since nothing touches state —
// which keeps this a pure chain-store/import-pipeline exercise without
// needing signed transactions.
func chainExtension(parent *types.Header, n int, startTime uint64) []*domaintypes.PreverifiedBlock {
	var out []*domaintypes.PreverifiedBlock
	for i := 0; i < n; i++ {
		header := &types.Header{
			ParentHash:  parent.Hash(),
			Number:      new(big.Int).Add(parent.Number, big.NewInt(1)),
			Time:        startTime + uint64(i),
			GasLimit:    parent.GasLimit,
			Difficulty:  new(big.Int).Add(parent.Difficulty, big.NewInt(1)),
			Root:        parent.Root,
			ReceiptHash: types.EmptyReceiptsHash,
			TxHash:      types.EmptyTxsHash,
			UncleHash:   types.EmptyUncleHash,
		}
		block := types.NewBlockWithHeader(header)
		out = append(out, &domaintypes.PreverifiedBlock{Block: block, Received: time.Now().UnixNano()})
		parent = header
	}
	return out
}

// importSequentially submits and commits each block one at a time, in
// parent-before-child order, with its own ProcessQueue call, and returns
// the enacted and retracted hashes of those calls concatenated.
func importSequentially(t *testing.T, bc *core.BlockChain, blocks []*domaintypes.PreverifiedBlock) domaintypes.ImportRoute {
	t.Helper()
	var total domaintypes.ImportRoute
	for _, b := range blocks {
		bc.Import(b)
		bc.Flush()
		route, err := bc.ProcessQueue(10)
		require.NoError(t, err)
		total.Enacted = append(total.Enacted, route.Enacted...)
		total.Retracted = append(total.Retracted, route.Retracted...)
	}
	return total
}

// TestLinearExtension: importing a straight-line extension of three
// blocks advances the tip to the last one with nothing retracted.
func TestLinearExtension(t *testing.T) {
	bc := newTestChain(t)
	defer bc.Stop()

	blocks := chainExtension(bc.CurrentHeader(), 3, 1000)
	route := importSequentially(t, bc, blocks)

	require.Len(t, route.Enacted, 3)
	require.Empty(t, route.Retracted)

	want := blocks[len(blocks)-1].Hash()
	require.Equal(t, want, bc.CurrentHeader().Hash())

	report := bc.Report()
	require.Equal(t, uint64(3), report.BlocksImported)
}

// TestReorg: a side chain with a later-but-heavier extension becomes
// canonical and the first chain's blocks are retracted.
func TestReorg(t *testing.T) {
	bc := newTestChain(t)
	defer bc.Stop()

	original := chainExtension(bc.CurrentHeader(), 2, 1000)
	importSequentially(t, bc, original)

	genesis := bc.GetHeaderByNumber(0)
	side := chainExtension(genesis, 3, 2000)
	route := importSequentially(t, bc, side)

	require.NotEmpty(t, route.Retracted)
	require.Equal(t, side[len(side)-1].Hash(), bc.CurrentHeader().Hash())
}

func TestModeDefaultsToActive(t *testing.T) {
	bc := newTestChain(t)
	defer bc.Stop()
	require.Equal(t, domaintypes.ModeActive(), bc.Mode())
}

// TestModePersistsAcrossRestart: a liveness mode set on one BlockChain
// instance must still be in effect after reopening the same database,
// instead of silently resetting to Active.
func TestModePersistsAcrossRestart(t *testing.T) {
	db := rawdb.NewMemoryDatabase()
	genesis := newGenesis()

	bc, err := core.NewBlockChain(db, core.DefaultConfig, genesis, noopEngine{})
	require.NoError(t, err)
	bc.SetMode(domaintypes.ModeDark(time.Minute))
	bc.Stop()

	bc2, err := core.NewBlockChain(db, core.DefaultConfig, genesis, noopEngine{})
	require.NoError(t, err)
	defer bc2.Stop()
	require.Equal(t, domaintypes.ModeDark(time.Minute), bc2.Mode())
}

// TestHeadPersistsAcrossRestart: the canonical tip reached on one
// BlockChain instance must be restored when the same database is
// reopened, rather than the chain store falling back to genesis.
func TestHeadPersistsAcrossRestart(t *testing.T) {
	db := rawdb.NewMemoryDatabase()
	genesis := newGenesis()

	bc, err := core.NewBlockChain(db, core.DefaultConfig, genesis, noopEngine{})
	require.NoError(t, err)

	blocks := chainExtension(bc.CurrentHeader(), 3, 1000)
	importSequentially(t, bc, blocks)
	want := bc.CurrentHeader().Hash()
	bc.Stop()

	bc2, err := core.NewBlockChain(db, core.DefaultConfig, genesis, noopEngine{})
	require.NoError(t, err)
	defer bc2.Stop()
	require.Equal(t, want, bc2.CurrentHeader().Hash())
}

// TestTraceWiredAfterImport: every committed block's trace set must be
// readable back through the same atomic commit that wrote its header and
// body.
func TestTraceWiredAfterImport(t *testing.T) {
	bc := newTestChain(t)
	defer bc.Stop()

	blocks := chainExtension(bc.CurrentHeader(), 1, 1000)
	importSequentially(t, bc, blocks)

	header := blocks[0].Block.Header()
	bt, err := bc.Trace(header.Number.Uint64(), header.Hash())
	require.NoError(t, err)
	require.NotNil(t, bt)
	require.Equal(t, header.Hash(), bt.BlockHash)
	require.Equal(t, header.Number.Uint64(), bt.Number)
}

// TestRetractedTracesInvalidatedOnReorg pins down the trace DB's reorg
// contract: once a fork displaces the canonical chain, the losing blocks'
// trace entries are removed in the same commit that enacts the winner.
func TestRetractedTracesInvalidatedOnReorg(t *testing.T) {
	bc := newTestChain(t)
	defer bc.Stop()

	original := chainExtension(bc.CurrentHeader(), 2, 1000)
	importSequentially(t, bc, original)

	retracted := original[0].Block.Header()
	bt, err := bc.Trace(retracted.Number.Uint64(), retracted.Hash())
	require.NoError(t, err)
	require.NotNil(t, bt)

	genesis := bc.GetHeaderByNumber(0)
	side := chainExtension(genesis, 3, 2000)
	importSequentially(t, bc, side)
	require.Equal(t, side[len(side)-1].Hash(), bc.CurrentHeader().Hash())

	bt, err = bc.Trace(retracted.Number.Uint64(), retracted.Hash())
	require.NoError(t, err)
	require.Nil(t, bt)

	winner := side[len(side)-1].Block.Header()
	bt, err = bc.Trace(winner.Number.Uint64(), winner.Hash())
	require.NoError(t, err)
	require.NotNil(t, bt)
}

// TestBadBlockCascadesWithinSameImportBatch: three blocks submitted
// together as one uncommitted chain (not driven through the pipeline one
// at a time) must still import correctly up to the point of family
// verification failure, with the failing block's descendant already
// drained in the same batch quarantined too instead of being committed on
// top of a block that never landed.
func TestBadBlockCascadesWithinSameImportBatch(t *testing.T) {
	db := rawdb.NewMemoryDatabase()
	bc, err := core.NewBlockChain(db, core.DefaultConfig, newGenesis(), rejectingEngine{reject: 2})
	require.NoError(t, err)
	defer bc.Stop()

	blocks := chainExtension(bc.CurrentHeader(), 3, 1000)
	for _, b := range blocks {
		require.Equal(t, queue.ResultQueued, bc.Import(b))
	}
	bc.Flush()

	route, err := bc.ProcessQueue(10)
	require.NoError(t, err)

	require.Equal(t, []common.Hash{blocks[0].Hash()}, route.Enacted)
	require.Equal(t, blocks[0].Hash(), bc.CurrentHeader().Hash())

	report := bc.Report()
	require.Equal(t, uint64(1), report.BlocksImported)
}

// recordingMiner captures the sealing-collaborator notifications the
// import engine fans out when it catches up with its queue.
type recordingMiner struct {
	sealed []common.Hash
}

func (m *recordingMiner) ChainNewBlocks(imported, invalid, enacted, retracted, sealed []common.Hash) {
	m.sealed = append(m.sealed, sealed...)
}

// TestImportSealedBlockNotifiesMiner drives a locally produced block
// through the commit path and checks the miner hears about it as sealed.
func TestImportSealedBlockNotifiesMiner(t *testing.T) {
	bc := newTestChain(t)
	defer bc.Stop()

	miner := &recordingMiner{}
	bc.SetMiner(miner)

	parent := bc.CurrentHeader()
	pb := chainExtension(parent, 1, 1000)[0]
	sealed := &domaintypes.SealedBlock{
		LockedBlock: domaintypes.LockedBlock{PreverifiedBlock: *pb, Parent: parent},
		Root:        pb.Block.Root(),
	}

	route, err := bc.ImportSealedBlock(sealed)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{pb.Hash()}, route.Enacted)
	require.Equal(t, pb.Hash(), bc.CurrentHeader().Hash())
	require.Equal(t, []common.Hash{pb.Hash()}, miner.sealed)
}

// TestImportOldBlockBackfill: an old block is stored and queryable after
// backfill, but neither executed nor made canonical; a malformed one is
// rejected before anything is written.
func TestImportOldBlockBackfill(t *testing.T) {
	bc := newTestChain(t)
	defer bc.Stop()

	genesisHash := bc.CurrentHeader().Hash()
	pb := chainExtension(bc.CurrentHeader(), 1, 1000)[0]
	require.NoError(t, bc.ImportOldBlock(pb.Block, nil))

	require.NotNil(t, bc.GetHeaderByHash(pb.Hash()))
	require.Equal(t, genesisHash, bc.CurrentHeader().Hash())

	badHeader := &types.Header{
		ParentHash:  genesisHash,
		Number:      big.NewInt(1),
		Time:        1,
		GasLimit:    params.DefaultMinBlockGasLimit,
		Difficulty:  big.NewInt(1),
		TxHash:      common.Hash{1},
		UncleHash:   types.EmptyUncleHash,
		ReceiptHash: types.EmptyReceiptsHash,
	}
	bad := types.NewBlockWithHeader(badHeader)
	require.Error(t, bc.ImportOldBlock(bad, nil))
	require.Nil(t, bc.GetHeaderByHash(bad.Hash()))
}

// TestListAccountsWithFatDBGenesis: with fat-db enabled in the chain
// config, the preimage store reaches the journal's trie database and
// genesis-allocated accounts resolve back to their addresses.
func TestListAccountsWithFatDBGenesis(t *testing.T) {
	db := rawdb.NewMemoryDatabase()
	addr := common.HexToAddress("0xbeef")

	genesis := &core.Genesis{
		Config: &params.ChainConfig{
			Eth: gethparams.MainnetChainConfig,
			Import: &params.ImportConfig{
				GenesisBlock:   new(big.Int),
				PruningHistory: params.DefaultPruningHistory,
				FatDB:          true,
			},
		},
		GasLimit: params.DefaultMinBlockGasLimit,
		Alloc: core.GenesisAlloc{
			addr: gethcore.GenesisAccount{Balance: big.NewInt(1)},
		},
	}
	bc, err := core.NewBlockChain(db, core.DefaultConfig, genesis, noopEngine{})
	require.NoError(t, err)
	defer bc.Stop()

	accounts, err := bc.ListAccounts(bc.CurrentHeader().Root, nil, 10)
	require.NoError(t, err)
	require.Contains(t, accounts, addr)
}

// TestRestoreReplaysIntoLiveStore: Restore must land every key/value pair
// from the supplied backing store into the live one.
func TestRestoreReplaysIntoLiveStore(t *testing.T) {
	db := rawdb.NewMemoryDatabase()
	bc, err := core.NewBlockChain(db, core.DefaultConfig, newGenesis(), noopEngine{})
	require.NoError(t, err)
	defer bc.Stop()

	src := memorydb.New()
	require.NoError(t, src.Put([]byte("restored-key"), []byte("restored-value")))

	n, err := bc.Restore(src)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := db.Get([]byte("restored-key"))
	require.NoError(t, err)
	require.Equal(t, []byte("restored-value"), got)
}
