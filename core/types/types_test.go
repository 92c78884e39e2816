package types_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	domaintypes "github.com/corechain/corechain/core/types"
)

func TestClientReportAccrue(t *testing.T) {
	var r domaintypes.ClientReport

	tx := gethtypes.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	header := &gethtypes.Header{Number: big.NewInt(1), GasUsed: 21000}
	block := gethtypes.NewBlock(header, []*gethtypes.Transaction{tx}, nil, nil, trie.NewStackTrie(nil))

	sealed := &domaintypes.SealedBlock{LockedBlock: domaintypes.LockedBlock{
		PreverifiedBlock: domaintypes.PreverifiedBlock{Block: block},
	}}

	r.Accrue(sealed)
	r.Accrue(sealed)

	require.Equal(t, uint64(2), r.BlocksImported)
	require.Equal(t, uint64(2), r.TransactionsApplied)
	require.Equal(t, uint64(42000), r.GasProcessed)
}

func TestImportRouteIsEmpty(t *testing.T) {
	var route domaintypes.ImportRoute
	require.True(t, route.IsEmpty())

	route.Enacted = append(route.Enacted, common.Hash{1})
	require.False(t, route.IsEmpty())
}

func TestTreeRouteIsRetracting(t *testing.T) {
	var tr domaintypes.TreeRoute
	require.False(t, tr.IsRetracting())

	tr.Retracted = append(tr.Retracted, common.Hash{1})
	require.True(t, tr.IsRetracting())
}

func TestModeRoundTrip(t *testing.T) {
	idle, wake := 10*time.Second, time.Minute
	modes := []domaintypes.Mode{
		domaintypes.ModeActive(),
		domaintypes.ModePassive(idle, wake),
		domaintypes.ModeDark(idle),
		domaintypes.ModeOff(),
	}
	for _, m := range modes {
		parsed, err := domaintypes.ParseMode(m.String(), idle, wake)
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}
	_, err := domaintypes.ParseMode("bogus", idle, wake)
	require.Error(t, err)
}

func TestModeConstructorsCarryTiming(t *testing.T) {
	p := domaintypes.ModePassive(5*time.Second, 30*time.Second)
	require.Equal(t, domaintypes.ModeKindPassive, p.Kind)
	require.Equal(t, 5*time.Second, p.IdleTimeout)
	require.Equal(t, 30*time.Second, p.WakePeriod)

	d := domaintypes.ModeDark(7 * time.Second)
	require.Equal(t, domaintypes.ModeKindDark, d.Kind)
	require.Equal(t, 7*time.Second, d.IdleTimeout)
	require.Zero(t, d.WakePeriod)

	require.Equal(t, domaintypes.ModeKindActive, domaintypes.ModeActive().Kind)
	require.Equal(t, domaintypes.ModeKindOff, domaintypes.ModeOff().Kind)
}
