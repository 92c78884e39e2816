package params

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

var (
	// MainnetChainConfig is the chain parameters to run a node on the main
	// network with this module's default import settings.
	MainnetChainConfig = &ChainConfig{
		Eth:    params.MainnetChainConfig,
		Import: DefaultImportConfig,
	}
)

// ChainConfig embeds go-ethereum's own fork-schedule config and adds the
// import-pipeline-specific settings (pruning window, trace retention,
// fat-db) this module's components read from.
type ChainConfig struct {
	Eth    *params.ChainConfig `json:"eth,omitempty"`
	Import *ImportConfig       `json:"import,omitempty"`
}

// ImportConfig holds the settings specific to the block-import and
// state-commit core, distinct from the consensus fork schedule.
type ImportConfig struct {
	// GenesisBlock is the block number the import pipeline starts at.
	GenesisBlock *big.Int `json:"genesisBlock,omitempty"`

	// PruningHistory is H, the number of eras the journal retains behind
	// the canonical head. 0 means archive mode (never prune).
	PruningHistory uint64 `json:"pruningHistory"`

	// TraceWindow is handed to core/tracedb: a non-zero value enables
	// TraceDB.Prune, and 0 makes Prune a no-op so traces are kept
	// indefinitely. The import path does not call Prune itself.
	TraceWindow uint64 `json:"traceWindow"`

	// FatDB enables the account-iteration trie needed by ListAccounts.
	FatDB bool `json:"fatDb"`
}

// DefaultImportConfig sets PruningHistory to DefaultPruningHistory, so a
// freshly configured chain is never accidentally run archive-only by
// omission.
var DefaultImportConfig = &ImportConfig{
	GenesisBlock:   new(big.Int),
	PruningHistory: DefaultPruningHistory,
}

// FeeReductionDenominator bounds the reduction amount the various fees may
// have.
func (c *ChainConfig) FeeReductionDenominator() uint64 {
	return DefaultFeeReductionDenominator
}

// BlockGasLimitMultiplier bounds the maximum gas limit a block may have.
func (c *ChainConfig) BlockGasLimitMultiplier() uint64 {
	return DefaultBlockGasLimitMultiplier
}

// MinBlockGasLimit is the minimum gas limit for a block.
func (c *ChainConfig) MinBlockGasLimit() uint64 {
	return DefaultMinBlockGasLimit
}

// CheckCompatible checks whether scheduled fork transitions have been
// imported with a mismatching chain configuration.
func (c *ChainConfig) CheckCompatible(newcfg *ChainConfig, height uint64, time uint64) *params.ConfigCompatError {
	return c.Eth.CheckCompatible(newcfg.Eth, height, time)
}

// CheckConfigForkOrder checks that we don't "skip" any forks.
func (c *ChainConfig) CheckConfigForkOrder() error {
	return c.Eth.CheckConfigForkOrder()
}

// Description returns a human-readable description of ChainConfig.
func (c *ChainConfig) Description() string {
	network := params.NetworkNames[c.Eth.ChainID.String()]
	if network == "" {
		network = "unknown"
	}
	return fmt.Sprintf("Chain ID: %v (%s), pruning history: %d\n", c.Eth.ChainID, network, c.Import.PruningHistory)
}
