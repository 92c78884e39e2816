package queue_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/core/queue"
	domaintypes "github.com/corechain/corechain/core/types"
)

// fakeChain treats only the genesis (zero hash, number 0) as already known,
// so a chain of blocks built with chainOf must be imported ancestor-first.
type fakeChain struct{}

func (fakeChain) HasHeader(hash common.Hash, number uint64) bool {
	return hash == (common.Hash{}) && number == 0
}

func chainOf(n int) []*domaintypes.PreverifiedBlock {
	out := make([]*domaintypes.PreverifiedBlock, n)
	parent := common.Hash{}
	for i := 0; i < n; i++ {
		h := &types.Header{
			Number:     big.NewInt(int64(i) + 1),
			Difficulty: big.NewInt(0),
			ParentHash: parent,
		}
		out[i] = &domaintypes.PreverifiedBlock{Block: types.NewBlockWithHeader(h)}
		parent = out[i].Hash()
	}
	return out
}

func noopVerify(*domaintypes.PreverifiedBlock) error { return nil }

func TestQueueOrdersByNumber(t *testing.T) {
	q := queue.New(queue.Config{Workers: 2}, fakeChain{}, noopVerify)
	defer q.Close()

	blocks := chainOf(3)
	for _, b := range blocks {
		require.Equal(t, queue.ResultQueued, q.Import(b))
	}
	q.Flush()

	var got []uint64
	for _, pb := range q.Drain(3) {
		got = append(got, pb.NumberU64())
	}
	require.Equal(t, []uint64{1, 2, 3}, got)
}

func TestQueueFlushWaitsForInFlight(t *testing.T) {
	slow := func(b *domaintypes.PreverifiedBlock) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	q := queue.New(queue.Config{Workers: 2}, fakeChain{}, slow)
	defer q.Close()

	blocks := chainOf(2)
	for _, b := range blocks {
		require.Equal(t, queue.ResultQueued, q.Import(b))
	}

	done := make(chan struct{})
	go func() {
		q.Flush()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Flush did not return once verification finished")
	}
	require.Zero(t, q.Info().Unverified)
	require.Equal(t, 2, q.Len())
}

func TestImportUnknownParentRejected(t *testing.T) {
	q := queue.New(queue.Config{Workers: 2}, fakeChain{}, noopVerify)
	defer q.Close()

	orphan := chainOf(2)[1] // parent is chainOf(2)[0], never imported
	require.Equal(t, queue.ResultUnknownParent, q.Import(orphan))
}

func TestImportDuplicateCollapsesToQueued(t *testing.T) {
	q := queue.New(queue.Config{Workers: 2}, fakeChain{}, noopVerify)
	defer q.Close()

	genesisChild := chainOf(1)[0]
	// A second Import of a block the queue already tracks reports
	// ResultQueued again instead of queueing it twice.
	require.Equal(t, queue.ResultQueued, q.Import(genesisChild))
	require.Equal(t, queue.ResultQueued, q.Import(genesisChild))
}

func TestMarkAsBadCascadesToDescendants(t *testing.T) {
	q := queue.New(queue.Config{Workers: 1}, fakeChain{}, noopVerify)
	defer q.Close()

	blocks := chainOf(3)
	for _, b := range blocks {
		require.Equal(t, queue.ResultQueued, q.Import(b))
	}
	q.Flush()

	q.MarkAsBad([]common.Hash{blocks[0].Hash()})
	require.True(t, q.IsBad(blocks[0].Hash()))
	require.True(t, q.IsBad(blocks[1].Hash()))
	require.True(t, q.IsBad(blocks[2].Hash()))
}

func TestMarkAsGoodReportsQueueEmpty(t *testing.T) {
	q := queue.New(queue.Config{Workers: 1}, fakeChain{}, noopVerify)
	defer q.Close()

	blocks := chainOf(2)
	for _, b := range blocks {
		require.Equal(t, queue.ResultQueued, q.Import(b))
	}
	q.Flush()

	require.False(t, q.MarkAsGood([]common.Hash{blocks[0].Hash()}))
	require.True(t, q.MarkAsGood([]common.Hash{blocks[1].Hash()}))
}
