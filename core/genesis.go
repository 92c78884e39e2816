package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/triedb/pathdb"

	"github.com/corechain/corechain/core/rawdb"
	"github.com/corechain/corechain/params"
)

var errGenesisNoConfig = errors.New("genesis has no chain configuration")

// Genesis specifies the header fields and initial state of block zero, the
// era the journal and chain store both bootstrap from.
type Genesis struct {
	Config     *params.ChainConfig `json:"config"`
	Timestamp  uint64              `json:"timestamp"`
	ExtraData  []byte              `json:"extraData"`
	GasLimit   uint64              `json:"gasLimit"`
	Difficulty *big.Int            `json:"difficulty"`
	Alloc      GenesisAlloc        `json:"alloc" gencodec:"required"`
}

// GenesisAlloc specifies the initial account state that is part of the
// genesis block.
type GenesisAlloc gethcore.GenesisAlloc

func (ga *GenesisAlloc) UnmarshalJSON(data []byte) error {
	m := make(map[common.UnprefixedAddress]gethcore.GenesisAccount)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*ga = make(GenesisAlloc)
	for addr, a := range m {
		(*ga)[common.Address(addr)] = a
	}
	return nil
}

// hash computes the state root the genesis specification produces without
// touching disk, used to build the genesis header before it is committed.
func (ga *GenesisAlloc) hash(isVerkle bool) (common.Hash, error) {
	var config *trie.Config
	if isVerkle {
		config = &trie.Config{PathDB: pathdb.Defaults, IsVerkle: true}
	}
	db := state.NewDatabaseWithConfig(gethrawdb.NewMemoryDatabase(), config)
	statedb, err := state.New(types.EmptyRootHash, db, nil)
	if err != nil {
		return common.Hash{}, err
	}
	ga.apply(statedb)
	return statedb.Commit(0, false)
}

// flush persists the generated genesis state into the given database,
// alongside the genesis allocation specification itself.
func (ga *GenesisAlloc) flush(db ethdb.Database, triedb *trie.Database, blockhash common.Hash) error {
	statedb, err := state.New(types.EmptyRootHash, state.NewDatabaseWithNodeDB(db, triedb), nil)
	if err != nil {
		return err
	}
	ga.apply(statedb)
	root, err := statedb.Commit(0, false)
	if err != nil {
		return err
	}
	if root != types.EmptyRootHash {
		if err := triedb.Commit(root, true); err != nil {
			return err
		}
	}
	blob, err := json.Marshal(ga)
	if err != nil {
		return err
	}
	gethrawdb.WriteGenesisStateSpec(db, blockhash, blob)
	return nil
}

func (ga *GenesisAlloc) apply(statedb *state.StateDB) {
	for addr, account := range *ga {
		if account.Balance != nil {
			statedb.AddBalance(addr, account.Balance)
		}
		statedb.SetCode(addr, account.Code)
		statedb.SetNonce(addr, account.Nonce)
		for key, value := range account.Storage {
			statedb.SetState(addr, key, value)
		}
	}
}

// ToHeader builds the unsealed genesis header from the allocation and
// config, computing the state root over an ephemeral database.
func (g *Genesis) ToHeader() (*types.Header, error) {
	root, err := g.Alloc.hash(g.Config.Eth.IsVerkle(common.Big0, g.Timestamp))
	if err != nil {
		return nil, err
	}
	difficulty := g.Difficulty
	if difficulty == nil {
		difficulty = big.NewInt(1)
	}
	return &types.Header{
		Number:      g.Config.Import.GenesisBlock,
		Time:        g.Timestamp,
		Extra:       g.ExtraData,
		GasLimit:    g.GasLimit,
		Difficulty:  difficulty,
		Root:        root,
		ReceiptHash: types.EmptyReceiptsHash,
		TxHash:      types.EmptyTxsHash,
		UncleHash:   types.EmptyUncleHash,
	}, nil
}

// Commit flushes the genesis allocation to disk and writes the genesis
// header, canonical pointers, and chain config, returning the resulting
// block.
func (g *Genesis) Commit(db ethdb.Database, triedb *trie.Database) (*types.Block, error) {
	header, err := g.ToHeader()
	if err != nil {
		return nil, err
	}
	config := g.Config
	if err := config.CheckConfigForkOrder(); err != nil {
		return nil, err
	}
	if err := g.Alloc.flush(db, triedb, header.Hash()); err != nil {
		return nil, err
	}
	block := types.NewBlock(header, nil, nil, nil, nil)

	rawdb.WriteHeader(db, header)
	gethrawdb.WriteReceipts(db, block.Hash(), block.NumberU64(), nil)
	gethrawdb.WriteTd(db, block.Hash(), block.NumberU64(), header.Difficulty)
	gethrawdb.WriteCanonicalHash(db, block.Hash(), block.NumberU64())
	gethrawdb.WriteHeadBlockHash(db, block.Hash())
	gethrawdb.WriteHeadFastBlockHash(db, block.Hash())
	gethrawdb.WriteHeadHeaderHash(db, block.Hash())
	rawdb.WriteChainConfig(db, block.Hash(), config)
	return block, nil
}

// SetupGenesisBlock configures the genesis block for a chain database
// that may already contain one, checking compatibility between the
// requested and stored configurations the way a node resuming from disk
// must.
func SetupGenesisBlock(db ethdb.Database, triedb *trie.Database, genesis *Genesis) (*params.ChainConfig, common.Hash, error) {
	if genesis != nil && genesis.Config == nil {
		return &params.ChainConfig{}, common.Hash{}, errGenesisNoConfig
	}
	if genesis == nil {
		genesis = DefaultGenesisBlock()
	}

	genesisNum := genesis.Config.Import.GenesisBlock.Uint64()
	stored := gethrawdb.ReadCanonicalHash(db, genesisNum)
	if (stored == common.Hash{}) {
		block, err := genesis.Commit(db, triedb)
		if err != nil {
			return genesis.Config, common.Hash{}, err
		}
		return genesis.Config, block.Hash(), nil
	}

	header := rawdb.ReadHeader(db, stored, genesisNum)
	if header.Root != types.EmptyRootHash && !triedb.Initialized(header.Root) {
		block, err := genesis.Commit(db, triedb)
		if err != nil {
			return genesis.Config, common.Hash{}, err
		}
		return genesis.Config, block.Hash(), nil
	}

	newcfg := genesis.Config
	if err := newcfg.CheckConfigForkOrder(); err != nil {
		return newcfg, common.Hash{}, err
	}
	storedcfg := rawdb.ReadChainConfig(db, stored)
	if storedcfg == nil {
		log.Warn("Found genesis block without chain config")
		rawdb.WriteChainConfig(db, stored, newcfg)
		return newcfg, stored, nil
	}
	storedData, _ := json.Marshal(storedcfg)

	head := rawdb.ReadHeadHeader(db)
	if head == nil {
		return newcfg, stored, errors.New("missing head header")
	}
	compatErr := storedcfg.CheckCompatible(newcfg, head.Number.Uint64(), head.Time)
	if compatErr != nil && ((head.Number.Uint64() != 0 && compatErr.RewindToBlock != 0) || (head.Time != 0 && compatErr.RewindToTime != 0)) {
		return newcfg, stored, compatErr
	}
	if newData, _ := json.Marshal(newcfg); !bytes.Equal(storedData, newData) {
		rawdb.WriteChainConfig(db, stored, newcfg)
	}
	return newcfg, stored, nil
}

// DefaultGenesisBlock returns the genesis specification for the main
// network with this module's default import settings.
func DefaultGenesisBlock() *Genesis {
	return &Genesis{
		Config:     params.MainnetChainConfig,
		Difficulty: big.NewInt(1),
		GasLimit:   params.DefaultMinBlockGasLimit,
		Alloc:      make(GenesisAlloc),
	}
}
