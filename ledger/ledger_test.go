package ledger

import (
	"math/big"
	"sync"
	"testing"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth  = common.HexToAddress("0x4200000000000000000000000000000000000006")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMintAndBalance(t *testing.T) {
	l := New()
	assert.Zero(t, l.BalanceOf(weth, alice).Sign())

	require.NoError(t, l.Mint(weth, alice, big.NewInt(100)))
	assert.Equal(t, "100", l.BalanceOf(weth, alice).String())

	// returned balances are copies
	l.BalanceOf(weth, alice).SetInt64(0)
	assert.Equal(t, "100", l.BalanceOf(weth, alice).String())

	assert.ErrorIs(t, l.Mint(weth, alice, big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Mint(weth, alice, nil), ErrInvalidAmount)
}

func TestTxIsolationAndCommit(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(weth, alice, big.NewInt(100)))

	tx := l.Begin()
	require.NoError(t, tx.Transfer(weth, alice, bob, big.NewInt(40)))
	// into the token contract's own custody, as wrapping does
	require.NoError(t, tx.Transfer(weth, bob, weth, big.NewInt(10)))
	require.NoError(t, tx.Mint(engine.NativeAsset, bob, big.NewInt(7)))

	assert.Equal(t, "60", tx.BalanceOf(weth, alice).String())
	assert.Equal(t, "30", tx.BalanceOf(weth, bob).String())
	assert.Equal(t, "100", l.BalanceOf(weth, alice).String(), "staged movements must not leak before commit")
	assert.Zero(t, l.BalanceOf(weth, bob).Sign())

	hookRan := false
	tx.OnCommit(func() { hookRan = true })
	require.NoError(t, tx.Commit())

	assert.True(t, hookRan)
	assert.Equal(t, "60", l.BalanceOf(weth, alice).String())
	assert.Equal(t, "30", l.BalanceOf(weth, bob).String())
	assert.Equal(t, "7", l.BalanceOf(engine.NativeAsset, bob).String())
	assert.Equal(t, "10", l.BalanceOf(weth, weth).String())

	assert.ErrorIs(t, tx.Commit(), ErrTxClosed)
	assert.ErrorIs(t, tx.Transfer(weth, alice, bob, big.NewInt(1)), ErrTxClosed)
}

func TestTxInsufficientBalance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(weth, alice, big.NewInt(10)))

	tx := l.Begin()
	err := tx.Transfer(weth, alice, bob, big.NewInt(11))
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
	assert.Zero(t, tx.BalanceOf(weth, bob).Sign(), "failed transfer must not stage a credit")

	err = tx.Transfer(weth, bob, alice, big.NewInt(1))
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
}

func TestBalancesOf(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(weth, alice, big.NewInt(5)))
	require.NoError(t, l.Mint(engine.NativeAsset, alice, big.NewInt(9)))

	got := l.BalancesOf(alice, weth, engine.NativeAsset, bob)
	require.Len(t, got, 3)
	assert.Equal(t, "5", got[0].String())
	assert.Equal(t, "9", got[1].String())
	assert.Zero(t, got[2].Sign(), "unknown tokens read as zero")

	got[0].SetInt64(0)
	assert.Equal(t, "5", l.BalanceOf(weth, alice).String(), "balances are copies")
	assert.Empty(t, l.BalancesOf(alice))
}

func TestRollbackDiscardsEverything(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(weth, alice, big.NewInt(10)))

	tx := l.Begin()
	require.NoError(t, tx.Transfer(weth, alice, bob, big.NewInt(10)))
	hookRan := false
	tx.OnCommit(func() { hookRan = true })
	tx.Rollback()

	assert.ErrorIs(t, tx.Commit(), ErrTxClosed)
	assert.False(t, hookRan)
	assert.Equal(t, "10", l.BalanceOf(weth, alice).String())
	assert.Zero(t, l.BalanceOf(weth, bob).Sign())
}

func TestCommitRevalidatesAgainstConcurrentCommit(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(weth, alice, big.NewInt(10)))

	first := l.Begin()
	second := l.Begin()
	require.NoError(t, first.Transfer(weth, alice, bob, big.NewInt(10)))
	require.NoError(t, second.Transfer(weth, alice, bob, big.NewInt(10)))

	require.NoError(t, first.Commit())
	err := second.Commit()
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)

	assert.Zero(t, l.BalanceOf(weth, alice).Sign())
	assert.Equal(t, "10", l.BalanceOf(weth, bob).String())
}

func TestConcurrentMints(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Mint(weth, alice, big.NewInt(2)))
		}()
	}
	wg.Wait()
	assert.Equal(t, "100", l.BalanceOf(weth, alice).String())
}

func TestRejectIncoming(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(engine.NativeAsset, alice, big.NewInt(10)))
	l.RejectIncoming(engine.NativeAsset, bob)

	tx := l.Begin()
	err := tx.Transfer(engine.NativeAsset, alice, bob, big.NewInt(1))
	assert.ErrorIs(t, err, ErrTransferRejected)
	assert.Equal(t, "10", tx.BalanceOf(engine.NativeAsset, alice).String(), "rejected transfer must not stage a debit")
	assert.ErrorIs(t, tx.Mint(engine.NativeAsset, bob, big.NewInt(1)), ErrTransferRejected)

	// only the rejected token is refused
	require.NoError(t, tx.Mint(weth, bob, big.NewInt(1)))
	tx.Rollback()

	l.AcceptIncoming(engine.NativeAsset, bob)
	tx = l.Begin()
	require.NoError(t, tx.Transfer(engine.NativeAsset, alice, bob, big.NewInt(1)))
	require.NoError(t, tx.Commit())
	assert.Equal(t, "1", l.BalanceOf(engine.NativeAsset, bob).String())
}
