package verifier_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/consensus"
	domaintypes "github.com/corechain/corechain/core/types"
	"github.com/corechain/corechain/core/verifier"
	cparams "github.com/corechain/corechain/params"
	gethparams "github.com/ethereum/go-ethereum/params"
)

type fakeChain struct{ headers map[uint64]*types.Header }

func (c *fakeChain) Config() *cparams.ChainConfig { return nil }
func (c *fakeChain) CurrentHeader() *types.Header { return nil }
func (c *fakeChain) GetHeader(_ common.Hash, number uint64) *types.Header {
	return c.headers[number]
}
func (c *fakeChain) GetHeaderByNumber(number uint64) *types.Header { return c.headers[number] }
func (c *fakeChain) GetHeaderByHash(common.Hash) *types.Header     { return nil }

type fakeEngine struct{}

func (fakeEngine) VerifyHeader(consensus.ChainHeaderReader, *types.Header) error { return nil }
func (fakeEngine) VerifyHeaders(_ consensus.ChainHeaderReader, headers []*types.Header) (chan<- struct{}, <-chan error) {
	abort := make(chan struct{})
	results := make(chan error, len(headers))
	for range headers {
		results <- nil
	}
	return abort, results
}
func (fakeEngine) APIs(consensus.ChainHeaderReader) []rpc.API { return nil }
func (fakeEngine) Close() error                               { return nil }

func TestVerifyFamilyRejectsNonIncreasingTimestamp(t *testing.T) {
	parent := &types.Header{Number: big.NewInt(1), Time: 100, GasLimit: cparams.DefaultMinBlockGasLimit, Difficulty: big.NewInt(0)}
	chain := &fakeChain{headers: map[uint64]*types.Header{1: parent}}

	cfg := &cparams.ChainConfig{Eth: gethparams.TestChainConfig, Import: cparams.DefaultImportConfig}
	v := verifier.New(cfg, fakeEngine{}, chain, func(common.Hash) (*state.StateDB, error) { return nil, nil }, vm.Config{})

	header := &types.Header{ParentHash: parent.Hash(), Number: big.NewInt(2), Time: 100, GasLimit: cparams.DefaultMinBlockGasLimit, Difficulty: big.NewInt(0)}
	block := types.NewBlockWithHeader(header)
	_, err := v.VerifyFamily(&domaintypes.PreverifiedBlock{Block: block})
	require.ErrorContains(t, err, "non-increasing timestamp")
}

func TestVerifyStatelessRejectsBadTxRoot(t *testing.T) {
	cfg := &cparams.ChainConfig{Eth: gethparams.TestChainConfig, Import: cparams.DefaultImportConfig}
	v := verifier.New(cfg, fakeEngine{}, &fakeChain{}, func(common.Hash) (*state.StateDB, error) { return nil, nil }, vm.Config{})

	header := &types.Header{Number: big.NewInt(1), Time: 100, GasLimit: 1_000_000, TxHash: common.Hash{1}}
	block := types.NewBlockWithHeader(header)
	err := v.VerifyStateless(&domaintypes.PreverifiedBlock{Block: block})
	require.Error(t, err)
}

func TestVerifyStatelessAcceptsEmptyBlock(t *testing.T) {
	cfg := &cparams.ChainConfig{Eth: gethparams.TestChainConfig, Import: cparams.DefaultImportConfig}
	v := verifier.New(cfg, fakeEngine{}, &fakeChain{}, func(common.Hash) (*state.StateDB, error) { return nil, nil }, vm.Config{})

	header := &types.Header{
		Number:    big.NewInt(1),
		Time:      100,
		GasLimit:  1_000_000,
		TxHash:    types.EmptyTxsHash,
		UncleHash: types.EmptyUncleHash,
	}
	block := types.NewBlockWithHeader(header)
	err := v.VerifyStateless(&domaintypes.PreverifiedBlock{Block: block})
	require.NoError(t, err)
}
