// Package consensus defines the pluggable-engine boundary this module
// verifies block families against. Rule definitions themselves live in
// engine implementations; only the collaborator interfaces family
// verification calls through are defined here.
package consensus

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/corechain/corechain/params"
)

// ChainHeaderReader defines a small collection of methods needed to access
// the local chain during header verification.
type ChainHeaderReader interface {
	// Config retrieves the blockchain's chain configuration.
	Config() *params.ChainConfig

	// CurrentHeader retrieves the current header from the local chain.
	CurrentHeader() *types.Header

	// GetHeader retrieves a block header from the database by hash and number.
	GetHeader(hash common.Hash, number uint64) *types.Header

	// GetHeaderByNumber retrieves a block header from the database by number.
	GetHeaderByNumber(number uint64) *types.Header

	// GetHeaderByHash retrieves a block header from the database by its hash.
	GetHeaderByHash(hash common.Hash) *types.Header
}

// Engine is an algorithm-agnostic consensus engine. Family verification
// delegates header-level rule checks to an Engine implementation; this
// module supplies none itself.
type Engine interface {
	// VerifyHeader checks whether a header conforms to the consensus rules
	// of a given engine.
	VerifyHeader(chain ChainHeaderReader, header *types.Header) error

	// VerifyHeaders is similar to VerifyHeader, but verifies a batch of
	// headers concurrently. The method returns a quit channel to abort the
	// operations and a results channel to retrieve the async
	// verifications (the order is that of the input slice).
	VerifyHeaders(chain ChainHeaderReader, headers []*types.Header) (chan<- struct{}, <-chan error)

	// APIs returns the RPC APIs this consensus engine provides.
	APIs(chain ChainHeaderReader) []rpc.API

	// Close terminates any background threads maintained by the engine.
	Close() error
}
