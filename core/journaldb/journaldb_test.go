package journaldb_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/core/journaldb"
)

func TestMarkCanonicalPrunesOutsideHistory(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{History: journaldb.MinHistorySize})

	var roots []common.Hash
	for n := uint64(0); n <= 20; n++ {
		sdb, err := state.New(types.EmptyRootHash, state.NewDatabaseWithNodeDB(db, j.TrieDB()), nil)
		require.NoError(t, err)
		sdb.SetNonce(common.BytesToAddress([]byte{byte(n)}), n+1)
		root, err := sdb.Commit(n, false)
		require.NoError(t, err)
		require.NoError(t, j.TrieDB().Commit(root, false))
		roots = append(roots, root)
		j.MarkCanonical(n, root)
	}

	require.Equal(t, uint64(20), j.Latest())
	require.True(t, j.Earliest() > 0, "earliest era should have advanced past genesis")
	require.LessOrEqual(t, j.Latest()-j.Earliest(), journaldb.MinHistorySize)

	// The oldest eras should now be unreachable.
	_, ok := j.EraAt(0)
	require.False(t, ok)

	// A recent era within the window must still be retained.
	recent, ok := j.EraAt(j.Latest())
	require.True(t, ok)
	require.Equal(t, roots[len(roots)-1], recent.Root)
}

func TestMarkCanonicalIdempotent(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{History: journaldb.MinHistorySize})

	root := common.HexToHash("0xabc")
	j.MarkCanonical(1, root)
	j.MarkCanonical(1, root)

	era, ok := j.EraAt(1)
	require.True(t, ok)
	require.Equal(t, root, era.Root)
	require.Equal(t, uint64(1), j.Latest())
	require.Equal(t, uint64(1), j.Earliest())
}

func TestArchiveModeNeverPrunes(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{})
	require.False(t, j.IsPruned())

	for n := uint64(0); n < 100; n++ {
		j.MarkCanonical(n, common.BigToHash(big.NewInt(int64(n)+1)))
	}
	require.Equal(t, uint64(0), j.Earliest())
	require.Equal(t, uint64(99), j.Latest())
}

func TestContainsEmptyRoot(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()
	j := journaldb.New(db, journaldb.Config{})
	require.True(t, j.Contains(types.EmptyRootHash))
	require.False(t, j.Contains(common.HexToHash("0xdeadbeef")))
}
