package mive

import (
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state/pruner"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/node"

	"github.com/corechain/corechain/core"
	"github.com/corechain/corechain/internal/shutdowncheck"
	"github.com/corechain/corechain/mive/miveconfig"
)

// Mive implements the Mive indexer and execution layer service.
type Mive struct {
	config *miveconfig.Config

	ethClient *ethclient.Client

	// DB interfaces
	chainDb ethdb.Database // Block chain database

	chain *core.BlockChain // facade over journal, state, chain store, queue, importer, mode

	handler *handler // follows the upstream chain and drives the import pipeline

	shutdownTracker *shutdowncheck.ShutdownTracker // Tracks if and when the node has shutdown ungracefully
}

func New(stack *node.Node, config *miveconfig.Config) (*Mive, error) {
	ethClient, err := ethclient.Dial(config.EthRpcUrl)
	if err != nil {
		return nil, err
	}

	chainDb, err := stack.OpenDatabaseWithFreezer(
		"chaindata",
		config.DatabaseCache,
		config.DatabaseHandles,
		config.DatabaseFreezer,
		"eth/db/chaindata/",
		false,
	)
	if err != nil {
		return nil, err
	}
	scheme, err := rawdb.ParseStateScheme(config.StateScheme, chainDb)
	if err != nil {
		return nil, err
	}
	// Try to recover offline state pruning only in hash-based.
	if scheme == rawdb.HashScheme {
		if err := pruner.RecoverPruning(stack.ResolvePath(""), chainDb); err != nil {
			log.Error("Failed to recover state", "error", err)
		}
	}

	chainCfg := core.DefaultConfig
	chainCfg.VM = vm.Config{
		EnablePreimageRecording: config.EnablePreimageRecording,
	}
	chain, err := core.NewBlockChain(chainDb, chainCfg, core.DefaultGenesisBlock(), trustedUpstreamEngine{})
	if err != nil {
		return nil, err
	}

	handler, err := newHandler(&handlerConfig{ethClient: ethClient, database: chainDb, chain: chain})
	if err != nil {
		return nil, err
	}

	mive := &Mive{
		config:          config,
		ethClient:       ethClient,
		chainDb:         chainDb,
		chain:           chain,
		handler:         handler,
		shutdownTracker: shutdowncheck.NewShutdownTracker(chainDb),
	}

	stack.RegisterLifecycle(mive)

	// Successful startup; push a marker and check previous unclean shutdowns.
	mive.shutdownTracker.MarkStartup()

	return mive, nil
}

// Start implements node.Lifecycle, starting all internal goroutines needed by the
// Mive protocol implementation.
func (s *Mive) Start() error {
	// Regularly update shutdown marker
	s.shutdownTracker.Start()

	s.handler.Start()

	return nil
}

// Stop implements node.Lifecycle, terminating all internal goroutines used by the
// Mive protocol.
func (s *Mive) Stop() error {
	s.handler.Stop()
	s.shutdownTracker.Stop()
	s.chain.Stop()
	return s.chainDb.Close()
}
