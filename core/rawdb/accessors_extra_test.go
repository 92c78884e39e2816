package rawdb_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/core/rawdb"
	domaintypes "github.com/corechain/corechain/core/types"
)

func TestTraceRoundTrip(t *testing.T) {
	db := memorydb.New()
	hash := common.HexToHash("0x01")

	require.Nil(t, rawdb.ReadTrace(db, 1, hash))

	rawdb.WriteTrace(db, 1, hash, []byte("trace-blob"))
	require.Equal(t, []byte("trace-blob"), rawdb.ReadTrace(db, 1, hash))

	rawdb.DeleteTrace(db, 1, hash)
	require.Nil(t, rawdb.ReadTrace(db, 1, hash))
}

func TestQueuedBlockRoundTrip(t *testing.T) {
	db := memorydb.New()
	hash := common.HexToHash("0x02")

	rawdb.WriteQueuedBlock(db, hash, []byte("rlp-bytes"))
	require.Equal(t, []byte("rlp-bytes"), rawdb.ReadQueuedBlock(db, hash))

	rawdb.DeleteQueuedBlock(db, hash)
	require.Nil(t, rawdb.ReadQueuedBlock(db, hash))
}

func TestModePersistence(t *testing.T) {
	db := memorydb.New()

	_, ok := rawdb.ReadMode(db)
	require.False(t, ok)

	want := domaintypes.ModePassive(10*time.Second, time.Minute)
	rawdb.WriteMode(db, want)
	got, ok := rawdb.ReadMode(db)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestIterateQueuedBlocks(t *testing.T) {
	db := memorydb.New()

	rawdb.WriteQueuedBlock(db, common.HexToHash("0x01"), []byte("block-a"))
	rawdb.WriteQueuedBlock(db, common.HexToHash("0x02"), []byte("block-b"))

	blobs := rawdb.IterateQueuedBlocks(db)
	require.Len(t, blobs, 2)

	rawdb.DeleteQueuedBlock(db, common.HexToHash("0x01"))
	require.Len(t, rawdb.IterateQueuedBlocks(db), 1)
}

func TestRestoreCopiesEveryEntry(t *testing.T) {
	src := memorydb.New()
	require.NoError(t, src.Put([]byte("a"), []byte("1")))
	require.NoError(t, src.Put([]byte("b"), []byte("2")))

	dst := memorydb.New()
	n, err := rawdb.Restore(src, dst)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := dst.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	got, err = dst.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}
