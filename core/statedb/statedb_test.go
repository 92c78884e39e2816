package statedb_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/core/journaldb"
	"github.com/corechain/corechain/core/statedb"
)

// writeAccount commits a single-account state change via a fresh
// state.StateDB and returns the resulting root, mirroring the path
// verifier.Execute takes when sealing a block.
func writeAccount(j *journaldb.JournalDB, db ethdb.Database, addr common.Address, nonce uint64) (common.Hash, error) {
	sdb, err := state.New(types.EmptyRootHash, state.NewDatabaseWithNodeDB(db, j.TrieDB()), nil)
	if err != nil {
		return common.Hash{}, err
	}
	sdb.SetNonce(addr, nonce)
	root, err := sdb.Commit(0, false)
	if err != nil {
		return common.Hash{}, err
	}
	if err := j.TrieDB().Commit(root, false); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}

func TestStateAtRoundTrip(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{History: journaldb.MinHistorySize})
	sdb := statedb.New(j, db, statedb.Config{TrieCacheEntries: 4})

	addr := common.HexToAddress("0x1234")
	root, err := writeAccount(j, db, addr, 7)
	require.NoError(t, err)
	j.MarkCanonical(1, root)

	stdb, err := sdb.StateAt(root)
	require.NoError(t, err)
	require.Equal(t, uint64(7), stdb.GetNonce(addr))
}

func TestStateAtPrunedReturnsError(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{History: journaldb.MinHistorySize})
	sdb := statedb.New(j, db, statedb.Config{})

	_, err := sdb.StateAt(common.HexToHash("0xdeadbeef"))
	require.Error(t, err)
	require.ErrorIs(t, err, journaldb.ErrStatePruned)
}

func TestStateAtBlockResolvesEra(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{History: journaldb.MinHistorySize})
	sdb := statedb.New(j, db, statedb.Config{})

	addr := common.HexToAddress("0xabcd")
	root, err := writeAccount(j, db, addr, 3)
	require.NoError(t, err)
	j.MarkCanonical(5, root)

	stdb, err := sdb.StateAtBlock(5)
	require.NoError(t, err)
	require.Equal(t, uint64(3), stdb.GetNonce(addr))

	_, err = sdb.StateAtBlock(6)
	require.ErrorIs(t, err, journaldb.ErrStatePruned)
}

func TestListAccountsRequiresFatDB(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{})
	sdb := statedb.New(j, db, statedb.Config{FatDB: false})

	_, err := sdb.ListAccounts(types.EmptyRootHash, nil, 10)
	require.Error(t, err)
}

// TestListAccountsReturnsAccounts writes real accounts into a
// preimage-recording journal and checks fat-db iteration resolves every
// one of them back to its address, including the pagination path.
func TestListAccountsReturnsAccounts(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{History: journaldb.MinHistorySize, Preimages: true})
	sdb := statedb.New(j, db, statedb.Config{FatDB: true})

	addrs := []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
		common.HexToAddress("0x03"),
	}
	stdb, err := state.New(types.EmptyRootHash, state.NewDatabaseWithNodeDB(db, j.TrieDB()), nil)
	require.NoError(t, err)
	for i, addr := range addrs {
		stdb.SetNonce(addr, uint64(i)+1)
	}
	root, err := stdb.Commit(0, false)
	require.NoError(t, err)
	require.NoError(t, j.TrieDB().Commit(root, false))
	j.MarkCanonical(1, root)

	out, err := sdb.ListAccounts(root, nil, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, addrs, out)

	// Pagination: resume after the first returned address and expect
	// exactly the remaining two, without the cursor itself.
	first, err := sdb.ListAccounts(root, nil, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	rest, err := sdb.ListAccounts(root, &first[0], 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.NotContains(t, rest, first[0])
}
