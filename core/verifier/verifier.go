// Package verifier performs family verification and execution: verify a
// block's header against its parent (family), execute its transactions
// against the parent's state, then compare the resulting root, receipts,
// and gas used against what the header claims before handing back a
// SealedBlock ready to commit.
package verifier

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	cmath "github.com/ethereum/go-ethereum/common/math"
	gethconsensus "github.com/ethereum/go-ethereum/consensus"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/corechain/corechain/consensus"
	domaintypes "github.com/corechain/corechain/core/types"
	"github.com/corechain/corechain/params"
)

// chainContext adapts the verifier's ChainHeaderReader to go-ethereum's
// core.ChainContext so the EVM block context can resolve ancestor headers
// for BLOCKHASH instead of panicking on a nil chain context. Execute always
// supplies a non-nil author (the header's own coinbase), so Engine() is
// never actually called by NewEVMBlockContext.
type chainContext struct {
	consensus.ChainHeaderReader
}

func (chainContext) Engine() gethconsensus.Engine { return nil }

// ErrRootMismatch is returned when the post-execution state root disagrees
// with the root claimed by the header.
var ErrRootMismatch = fmt.Errorf("invalid merkle root")

// ErrGasUsedMismatch is returned when the cumulative gas used by execution
// disagrees with the header's claim.
var ErrGasUsedMismatch = fmt.Errorf("invalid gas used")

// StateOpener resolves the state a block should execute against, i.e. its
// parent's post-state.
type StateOpener func(parentRoot common.Hash) (*state.StateDB, error)

// Verifier performs family verification and execution.
type Verifier struct {
	config    *params.ChainConfig
	engine    consensus.Engine
	chain     consensus.ChainHeaderReader
	openState StateOpener
	vmConfig  vm.Config
}

// New builds a Verifier.
func New(config *params.ChainConfig, engine consensus.Engine, chain consensus.ChainHeaderReader, openState StateOpener, vmConfig vm.Config) *Verifier {
	return &Verifier{config: config, engine: engine, chain: chain, openState: openState, vmConfig: vmConfig}
}

// VerifyStateless performs the block queue's own verification stage:
// checks computable from the block alone, with no parent or chain access,
// mirroring the transactions-root/uncle-hash/gas-used sanity checks
// go-ethereum's own block validator runs before family verification. This
// is what core/queue.Queue runs concurrently across its worker pool; family
// verification (which needs the parent header) stays out of the queue and
// runs in the import engine's own loop instead.
func (v *Verifier) VerifyStateless(b *domaintypes.PreverifiedBlock) error {
	header := b.Block.Header()
	if header.GasUsed > header.GasLimit {
		return fmt.Errorf("invalid gas used: have %d, limit %d", header.GasUsed, header.GasLimit)
	}
	if hash := types.DeriveSha(b.Block.Transactions(), trie.NewStackTrie(nil)); hash != header.TxHash {
		return fmt.Errorf("transaction root mismatch: have %x, want %x", hash, header.TxHash)
	}
	if hash := types.CalcUncleHash(b.Block.Uncles()); hash != header.UncleHash {
		return fmt.Errorf("uncle root mismatch: have %x, want %x", hash, header.UncleHash)
	}
	if header.Time == 0 {
		return fmt.Errorf("invalid timestamp: zero")
	}
	return nil
}

// VerifyFamily checks a preverified block's header against its parent:
// engine consensus rules plus the bounds this module layers on top
// (multiplier-bounded gas limit, strictly increasing timestamp), then
// returns a LockedBlock once the parent is confirmed known.
func (v *Verifier) VerifyFamily(b *domaintypes.PreverifiedBlock) (*domaintypes.LockedBlock, error) {
	parent := v.chain.GetHeader(b.ParentHash(), b.NumberU64()-1)
	if parent == nil {
		return nil, fmt.Errorf("unknown parent %x", b.ParentHash())
	}
	if err := v.engine.VerifyHeader(v.chain, b.Block.Header()); err != nil {
		return nil, err
	}
	if err := v.verifyGasLimit(parent, b.Block.Header()); err != nil {
		return nil, err
	}
	if b.Block.Time() <= parent.Time {
		return nil, fmt.Errorf("non-increasing timestamp: %d <= %d", b.Block.Time(), parent.Time)
	}
	return &domaintypes.LockedBlock{PreverifiedBlock: *b, Parent: parent}, nil
}

// verifyGasLimit enforces the multiplier-bounded gas limit this module
// imposes beyond go-ethereum's own +/-1/1024 elasticity check.
func (v *Verifier) verifyGasLimit(parent, header *types.Header) error {
	limit, overflow := cmath.SafeMul(parent.GasLimit, v.config.BlockGasLimitMultiplier())
	if overflow {
		limit = cmath.MaxUint64
	}
	if limit < v.config.MinBlockGasLimit() {
		limit = v.config.MinBlockGasLimit()
	}
	if header.GasLimit > limit {
		return fmt.Errorf("invalid gas limit: have %d, max %d", header.GasLimit, limit)
	}
	if header.GasLimit < v.config.MinBlockGasLimit() {
		return fmt.Errorf("invalid gas limit: have %d, min %d", header.GasLimit, v.config.MinBlockGasLimit())
	}
	return nil
}

// Execute runs a LockedBlock's transactions against its parent's
// post-state and returns a SealedBlock once the resulting root, gas used,
// and receipts are validated against the header's claims.
func (v *Verifier) Execute(lb *domaintypes.LockedBlock) (*domaintypes.SealedBlock, error) {
	statedb, err := v.openState(lb.Parent.Root)
	if err != nil {
		return nil, err
	}

	header := lb.Block.Header()
	blockContext := v.newEVMBlockContext(header)
	evm := vm.NewEVM(blockContext, vm.TxContext{}, statedb, v.config.Eth, v.vmConfig)

	var (
		receipts types.Receipts
		usedGas  = new(uint64)
		gp       = new(gethcore.GasPool).AddGas(header.GasLimit)
	)
	for i, tx := range lb.Block.Transactions() {
		msg, err := TransactionToMessage(tx, types.MakeSigner(v.config.Eth, header.Number, header.Time))
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		statedb.SetTxContext(tx.Hash(), i)
		evm.Reset(gethcore.NewEVMTxContext(msg), statedb)

		result, err := gethcore.ApplyMessage(evm, msg, gp)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		*usedGas += result.UsedGas

		receipt := &types.Receipt{Type: tx.Type(), TxHash: tx.Hash(), GasUsed: result.UsedGas}
		if result.Failed() {
			receipt.Status = types.ReceiptStatusFailed
		} else {
			receipt.Status = types.ReceiptStatusSuccessful
		}
		receipt.CumulativeGasUsed = *usedGas
		receipt.Logs = statedb.GetLogs(tx.Hash(), header.Number.Uint64(), header.Hash())
		receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
		receipt.BlockHash = header.Hash()
		receipt.BlockNumber = header.Number
		receipt.TransactionIndex = uint(i)
		receipts = append(receipts, receipt)
	}

	if *usedGas != header.GasUsed {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrGasUsedMismatch, *usedGas, header.GasUsed)
	}
	if bloom := types.CreateBloom(receipts); bloom != header.Bloom {
		return nil, fmt.Errorf("invalid bloom: have %x, want %x", bloom, header.Bloom)
	}
	if receiptSha := types.DeriveSha(receipts, trie.NewStackTrie(nil)); receiptSha != header.ReceiptHash {
		return nil, fmt.Errorf("invalid receipt root: have %x, want %x", receiptSha, header.ReceiptHash)
	}

	root, err := statedb.Commit(header.Number.Uint64(), v.config.Eth.IsEIP158(header.Number))
	if err != nil {
		return nil, err
	}
	if root != header.Root {
		return nil, fmt.Errorf("%w: have %x, want %x", ErrRootMismatch, root, header.Root)
	}

	return &domaintypes.SealedBlock{LockedBlock: *lb, Receipts: receipts, Root: root}, nil
}

// newEVMBlockContext adapts go-ethereum's block context builder with the
// fee-reduction and gas-limit-multiplier adjustments this module's chain
// config layers on top of upstream's own elasticity rules.
func (v *Verifier) newEVMBlockContext(header *types.Header) vm.BlockContext {
	author := header.Coinbase
	ctx := gethcore.NewEVMBlockContext(header, chainContext{v.chain}, &author)

	denom := new(big.Int).SetUint64(v.config.FeeReductionDenominator())
	if ctx.BaseFee != nil {
		ctx.BaseFee = new(big.Int).Div(ctx.BaseFee, denom)
	}
	if ctx.BlobBaseFee != nil {
		ctx.BlobBaseFee = new(big.Int).Div(ctx.BlobBaseFee, denom)
	}
	gasLimit, overflow := cmath.SafeMul(ctx.GasLimit, v.config.BlockGasLimitMultiplier())
	if overflow {
		gasLimit = cmath.MaxUint64
	}
	if gasLimit < v.config.MinBlockGasLimit() {
		gasLimit = v.config.MinBlockGasLimit()
	}
	ctx.GasLimit = gasLimit
	return ctx
}

// TransactionToMessage converts a transaction into an applyable Message,
// carrying the gas price and fee cap fields through unmodified.
func TransactionToMessage(tx *types.Transaction, s types.Signer) (*gethcore.Message, error) {
	msg := &gethcore.Message{
		Nonce:             tx.Nonce(),
		GasLimit:          tx.Gas(),
		GasPrice:          new(big.Int).Set(tx.GasPrice()),
		GasFeeCap:         new(big.Int).Set(tx.GasFeeCap()),
		GasTipCap:         new(big.Int).Set(tx.GasTipCap()),
		To:                tx.To(),
		Value:             tx.Value(),
		Data:              tx.Data(),
		AccessList:        tx.AccessList(),
		SkipAccountChecks: false,
		BlobHashes:        tx.BlobHashes(),
		BlobGasFeeCap:     tx.BlobGasFeeCap(),
	}
	var err error
	msg.From, err = types.Sender(s, tx)
	return msg, err
}
