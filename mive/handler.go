package mive

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/corechain/corechain/core"
	"github.com/corechain/corechain/core/queue"
	domaintypes "github.com/corechain/corechain/core/types"
)

// processBatch caps how many queued blocks a single drain tick commits.
const processBatch = 64

// drainInterval is how often the handler drains the block queue and runs
// the mode controller's idle/sleep evaluation between new heads.
const drainInterval = 2 * time.Second

// handlerConfig is the collection of initialization parameters to create a
// full node network handler.
type handlerConfig struct {
	ethClient *ethclient.Client
	database  ethdb.Database
	chain     *core.BlockChain
}

// handler follows the upstream chain dialed via ethClient and feeds every
// block it reports into the core facade's import pipeline: this module
// indexes and re-executes blocks already finalized upstream rather than
// reaching them through its own p2p layer, so "the network" here is a
// single JSON-RPC peer.
type handler struct {
	ethClient *ethclient.Client
	database  ethdb.Database
	chain     *core.BlockChain

	quit chan struct{}
}

// newHandler returns a handler for all Mive chain management protocol.
func newHandler(config *handlerConfig) (*handler, error) {
	return &handler{
		ethClient: config.ethClient,
		database:  config.database,
		chain:     config.chain,
		quit:      make(chan struct{}),
	}, nil
}

func (h *handler) Start() {
	go h.followChain()
}

func (h *handler) Stop() {
	close(h.quit)
}

// followChain subscribes to the upstream node's new-head notifications and,
// on every notification, backfills and imports every block between the
// local head and the reported one. A ticker independently drains the block
// queue and runs the mode controller so import progress isn't gated purely
// on new heads arriving.
func (h *handler) followChain() {
	heads := make(chan *types.Header, 16)
	sub, err := h.ethClient.SubscribeNewHead(context.Background(), heads)
	if err != nil {
		log.Error("Mive: failed to subscribe to upstream new heads", "err", err)
		return
	}
	defer sub.Unsubscribe()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			return
		case err := <-sub.Err():
			log.Error("Mive: upstream head subscription ended", "err", err)
			return
		case head := <-heads:
			h.importUpTo(head.Number)
			h.drain()
		case <-ticker.C:
			h.drain()
		}
	}
}

// importUpTo fetches and submits every block between the local head
// (exclusive) and target (inclusive) to the block queue, which runs the
// stateless verification stage.
func (h *handler) importUpTo(target *big.Int) {
	ctx := context.Background()
	next := new(big.Int).Add(h.chain.CurrentHeader().Number, big.NewInt(1))
	for next.Cmp(target) <= 0 {
		block, err := h.ethClient.BlockByNumber(ctx, next)
		if err != nil {
			log.Warn("Mive: failed to fetch upstream block", "number", next, "err", err)
			return
		}
		encoded, err := rlp.EncodeToBytes(block)
		if err != nil {
			log.Warn("Mive: failed to encode upstream block", "number", next, "err", err)
			return
		}
		if res := h.chain.Import(&domaintypes.PreverifiedBlock{
			Block:    block,
			Bytes:    encoded,
			Received: time.Now().UnixNano(),
		}); res != queue.ResultQueued && res != queue.ResultAlreadyInChain {
			log.Warn("Mive: upstream block rejected", "number", next, "result", res)
		}
		next = next.Add(next, big.NewInt(1))
	}
}

// drain family-verifies, executes and commits whatever queue-verified
// blocks are ready, and advances the liveness mode controller.
func (h *handler) drain() {
	if _, err := h.chain.ProcessQueue(processBatch); err != nil {
		log.Error("Mive: failed to process verified blocks", "err", err)
	}
	h.chain.Tick()
}
