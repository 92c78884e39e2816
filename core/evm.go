package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	cmath "github.com/ethereum/go-ethereum/common/math"
	gethconsensus "github.com/ethereum/go-ethereum/consensus"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/corechain/corechain/params"
)

// chainContext adapts BlockChain's header lookup to go-ethereum's
// core.ChainContext, the type the EVM block context builder uses to walk
// back ancestor headers for the BLOCKHASH opcode. Read-only call paths
// (Call, Replay) always pass an explicit author, so Engine() is never
// actually invoked by NewEVMBlockContext; it exists only to satisfy the
// interface.
type chainContext struct {
	bc *BlockChain
}

func (chainContext) Engine() gethconsensus.Engine { return nil }

func (c chainContext) GetHeader(hash common.Hash, number uint64) *types.Header {
	return c.bc.GetHeader(hash, number)
}

// NewEVMBlockContext builds the block context the executor runs transactions
// against, adjusted by this module's fee-reduction and gas-limit-multiplier
// rules on top of go-ethereum's own elasticity bounds.
func NewEVMBlockContext(header *types.Header, chain gethcore.ChainContext, author *common.Address, config *params.ChainConfig) vm.BlockContext {
	if author == nil {
		author = &common.Address{}
	}

	ctx := gethcore.NewEVMBlockContext(header, chain, author)

	denom := new(big.Int).SetUint64(config.FeeReductionDenominator())
	if ctx.BaseFee != nil {
		ctx.BaseFee = new(big.Int).Div(ctx.BaseFee, denom)
	}
	if ctx.BlobBaseFee != nil {
		ctx.BlobBaseFee = new(big.Int).Div(ctx.BlobBaseFee, denom)
	}
	ctx.GasLimit = blockGasLimit(ctx.GasLimit, config)
	return ctx
}

func blockGasLimit(gasLimit uint64, config *params.ChainConfig) uint64 {
	gasLimit, overflow := cmath.SafeMul(gasLimit, config.BlockGasLimitMultiplier())
	if overflow {
		gasLimit = cmath.MaxUint64
	}
	if gasLimit < config.MinBlockGasLimit() {
		gasLimit = config.MinBlockGasLimit()
	}
	return gasLimit
}
