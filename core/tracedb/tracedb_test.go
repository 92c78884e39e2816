package tracedb_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/core/tracedb"
)

func TestWriteReadFilter(t *testing.T) {
	db := memorydb.New()
	tdb := tracedb.New(db, 0)

	hash := common.HexToHash("0xaa")
	bt := &tracedb.BlockTrace{
		BlockHash: hash,
		Number:    10,
		Traces: []tracedb.Trace{
			{Type: "CALL", Reverted: false},
			{Type: "CALL", Reverted: true},
			{Type: "CREATE", Reverted: false},
		},
	}
	require.NoError(t, tdb.Write(bt))

	got, err := tdb.Read(10, hash)
	require.NoError(t, err)
	require.Len(t, got.Traces, 3)

	reverted, err := tdb.Filter(got, `Reverted == true`)
	require.NoError(t, err)
	require.Len(t, reverted, 1)
}

func TestTransactionTracesAndTraceAt(t *testing.T) {
	db := memorydb.New()
	tdb := tracedb.New(db, 0)

	hash := common.HexToHash("0xbb")
	tx1 := common.HexToHash("0x01")
	tx2 := common.HexToHash("0x02")
	require.NoError(t, tdb.Write(&tracedb.BlockTrace{
		BlockHash: hash,
		Number:    7,
		Traces: []tracedb.Trace{
			{TxHash: tx1, Type: "CALL"},
			{TxHash: tx2, Type: "CALL"},
			{TxHash: tx2, Type: "STATICCALL", Depth: 1},
		},
	}))

	frames, err := tdb.TransactionTraces(7, hash, tx2)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	frame, err := tdb.Trace(7, hash, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, frame)
	require.Equal(t, "STATICCALL", frame.Type)

	missing, err := tdb.Trace(7, hash, 5, 0)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFilterRange(t *testing.T) {
	db := memorydb.New()
	tdb := tracedb.New(db, 0)

	hashes := map[uint64]common.Hash{
		1: common.HexToHash("0x01"),
		2: common.HexToHash("0x02"),
	}
	for n, h := range hashes {
		require.NoError(t, tdb.Write(&tracedb.BlockTrace{
			BlockHash: h,
			Number:    n,
			Traces:    []tracedb.Trace{{Type: "CALL", Reverted: n == 2}},
		}))
	}

	hashOf := func(n uint64) common.Hash { return hashes[n] }
	// Blocks 0 and 3 have no canonical hash in hashOf; both are skipped
	// rather than failing the whole range.
	out, err := tdb.FilterRange(0, 3, hashOf, `Reverted == true`)
	require.NoError(t, err)
	require.Len(t, out, 1)
}
