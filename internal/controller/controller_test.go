package controller

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volmexfinance/volmex-amm/internal/oracle"
	"github.com/volmexfinance/volmex-amm/internal/pool"
	"github.com/volmexfinance/volmex-amm/internal/protocol"
	"github.com/volmexfinance/volmex-amm/internal/repricer"
	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

const (
	ctrlOwner    = types.Account("owner")
	ctrlAccount  = types.Account("router")
	testTreasury = types.Account("vault-treasury")
	user         = types.Account("user")
)

var (
	unitLeverage = sdkmath.NewIntWithDecimal(1, 18)
	testBaseFee  = sdkmath.NewIntWithDecimal(2, 16)
	testMaxFee   = sdkmath.NewIntWithDecimal(4, 17)
	testFeeAmp   = sdkmath.NewInt(10)
	testQMin     = sdkmath.NewInt(1_000_000)
	testPMin     = sdkmath.NewIntWithDecimal(1, 16)
	testExposure = sdkmath.NewIntWithDecimal(25, 16)
)

type market struct {
	id      types.PoolID
	pool    *pool.Pool
	minter  *protocol.Protocol
	vol     *token.Token
	inverse *token.Token
}

type env struct {
	c        *Controller
	usdc     *token.Token
	recorder *types.MemoryRecorder
	stable   types.StableCoinID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	recorder := types.NewMemoryRecorder()
	c, err := New(Config{Owner: ctrlOwner, Account: ctrlAccount, Treasury: testTreasury, Recorder: recorder})
	require.NoError(t, err)

	usdc := token.New("USD Coin", "USDC", 18)
	stable, err := c.AddStableCoin(ctrlOwner, usdc)
	require.NoError(t, err)

	return &env{c: c, usdc: usdc, recorder: recorder, stable: stable}
}

// addMarket registers a claim pair, its minting protocol and a finalized
// pool with 40 tokens of depth per side.
func (e *env) addMarket(t *testing.T, symbol string, nextID types.PoolID) *market {
	t.Helper()
	vol := token.New(symbol+" Token", symbol, 18)
	inverse := token.New("Inverse "+symbol+" Token", "i"+symbol, 18)

	minter, err := protocol.New(protocol.Config{
		Owner:                ctrlOwner,
		Account:              types.Account("protocol/" + symbol),
		Collateral:           e.usdc,
		Volatility:           vol,
		InverseVolatility:    inverse,
		MinimumCollateralQty: sdkmath.NewIntWithDecimal(25, 18),
		VolatilityCapRatio:   250,
	})
	require.NoError(t, err)

	priceOracle := oracle.New(ctrlOwner, oracle.DefaultTwapPoints, types.NopRecorder{})
	indexID, err := priceOracle.AddIndex(ctrlOwner, sdkmath.NewInt(125_000_000), minter, symbol, "")
	require.NoError(t, err)
	pricer, err := repricer.New(priceOracle)
	require.NoError(t, err)

	p, err := pool.New(pool.Config{
		ID:              nextID,
		Account:         types.Account("pool/" + symbol),
		Owner:           ctrlOwner,
		FeeSink:         testTreasury,
		Repricer:        pricer,
		Minter:          minter,
		VolatilityIndex: indexID,
		Recorder:        e.recorder,
		ShareName:       symbol + " Pool Share",
		ShareSymbol:     "VLP-" + symbol,
	})
	require.NoError(t, err)
	require.NoError(t, p.SetController(ctrlOwner, e.c))

	id, err := e.c.AddPool(ctrlOwner, p)
	require.NoError(t, err)
	require.Equal(t, nextID, id)
	require.NoError(t, e.c.AddProtocol(ctrlOwner, id, e.stable, minter))
	require.NoError(t, e.c.SetPoolFeeParams(ctrlOwner, id, testBaseFee, testMaxFee, testFeeAmp, testFeeAmp))

	// mint the seed pair through the protocol, then finalize through the
	// controller so the shares land on the owner
	depth := sdkmath.NewIntWithDecimal(40, 18)
	collateral := depth.MulRaw(250)
	require.NoError(t, e.usdc.Mint(ctrlOwner, collateral))
	_, _, err = minter.Collateralize(ctrlOwner, collateral)
	require.NoError(t, err)
	require.NoError(t, vol.Approve(ctrlOwner, ctrlAccount, depth))
	require.NoError(t, inverse.Approve(ctrlOwner, ctrlAccount, depth))
	require.NoError(t, e.c.FinalizePool(ctrlOwner, id,
		depth, unitLeverage, depth, unitLeverage,
		testExposure, testExposure, testPMin, testQMin))

	return &market{id: id, pool: p, minter: minter, vol: vol, inverse: inverse}
}

func TestRegistry(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)

	t.Run("owner_gates", func(t *testing.T) {
		_, err := e.c.AddPool(user, m.pool)
		assert.ErrorIs(t, err, ErrNotOwner)
		_, err = e.c.AddStableCoin(user, e.usdc)
		assert.ErrorIs(t, err, ErrNotOwner)
		assert.ErrorIs(t, e.c.AddProtocol(user, m.id, e.stable, m.minter), ErrNotOwner)
	})

	t.Run("nil_handles", func(t *testing.T) {
		_, err := e.c.AddPool(ctrlOwner, nil)
		assert.ErrorIs(t, err, ErrNilHandle)
		_, err = e.c.AddStableCoin(ctrlOwner, nil)
		assert.ErrorIs(t, err, ErrNilHandle)
	})

	t.Run("unknown_indexes", func(t *testing.T) {
		_, err := e.c.Pool(99)
		assert.ErrorIs(t, err, ErrUnknownPool)
		_, err = e.c.StableCoin(99)
		assert.ErrorIs(t, err, ErrUnknownStable)
		assert.ErrorIs(t, e.c.AddProtocol(ctrlOwner, 99, e.stable, m.minter), ErrUnknownPool)
		assert.ErrorIs(t, e.c.AddProtocol(ctrlOwner, m.id, 99, m.minter), ErrUnknownStable)
	})

	t.Run("protocol_must_match_pair", func(t *testing.T) {
		other := e.addMarket(t, "BTCV", 1)
		// BTCV claims against the ETHV pool
		err := e.c.AddProtocol(ctrlOwner, m.id, e.stable, other.minter)
		assert.ErrorIs(t, err, ErrTokenMismatch)

		// protocol collateralized in something other than the stablecoin
		dai := token.New("Dai", "DAI", 18)
		foreign, err := protocol.New(protocol.Config{
			Owner:                ctrlOwner,
			Account:              "protocol/foreign",
			Collateral:           dai,
			Volatility:           m.vol,
			InverseVolatility:    m.inverse,
			MinimumCollateralQty: sdkmath.NewIntWithDecimal(25, 18),
			VolatilityCapRatio:   250,
		})
		require.NoError(t, err)
		err = e.c.AddProtocol(ctrlOwner, m.id, e.stable, foreign)
		assert.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("no_protocol_for_pair", func(t *testing.T) {
		dai := token.New("Dai", "DAI", 18)
		extraStable, err := e.c.AddStableCoin(ctrlOwner, dai)
		require.NoError(t, err)
		_, err = e.c.Protocol(m.id, extraStable)
		assert.ErrorIs(t, err, ErrNoProtocol)
	})
}

func TestSwap(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)
	amountIn := sdkmath.NewIntWithDecimal(1, 18)

	require.NoError(t, m.vol.Mint(user, amountIn))
	require.NoError(t, m.vol.Approve(user, ctrlAccount, amountIn))

	quote, _, err := m.pool.TokenAmountOut("ETHV", amountIn)
	require.NoError(t, err)

	out, err := e.c.Swap(user, m.id, "ETHV", amountIn, "iETHV", quote)
	require.NoError(t, err)
	assert.Equal(t, quote.String(), out.String())
	assert.Equal(t, quote.String(), m.inverse.BalanceOf(user).String())
	assert.True(t, m.vol.BalanceOf(user).IsZero())

	t.Run("unknown_token", func(t *testing.T) {
		_, err := e.c.Swap(user, m.id, "SOLV", amountIn, "iETHV", sdkmath.OneInt())
		assert.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("paused", func(t *testing.T) {
		require.NoError(t, e.c.TogglePause(ctrlOwner, true))
		_, err := e.c.Swap(user, m.id, "ETHV", amountIn, "iETHV", sdkmath.OneInt())
		assert.ErrorIs(t, err, ErrPaused)
		require.NoError(t, e.c.TogglePause(ctrlOwner, false))
	})
}

func TestSwapCollateralToVolatility(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)
	amountIn := sdkmath.NewIntWithDecimal(250, 18)

	quote, fee, err := e.c.CollateralToVolatility(m.id, e.stable, "ETHV", amountIn)
	require.NoError(t, err)
	assert.True(t, fee.IsPositive())
	// 250 collateral mints one of each claim; the inverse leg swaps into
	// slightly under one more
	assert.True(t, quote.GT(sdkmath.NewIntWithDecimal(1, 18)))
	assert.True(t, quote.LT(sdkmath.NewIntWithDecimal(2, 18)))

	require.NoError(t, e.usdc.Mint(user, amountIn))
	require.NoError(t, e.usdc.Approve(user, ctrlAccount, amountIn))

	t.Run("floor_blocks_before_funds_move", func(t *testing.T) {
		_, err := e.c.SwapCollateralToVolatility(user, amountIn, quote.AddRaw(1), "ETHV", m.id, e.stable)
		assert.ErrorIs(t, err, ErrInsufficientOut)
		assert.Equal(t, amountIn.String(), e.usdc.BalanceOf(user).String())
	})

	t.Run("below_min_collateral", func(t *testing.T) {
		small := sdkmath.NewIntWithDecimal(1, 18)
		_, err := e.c.SwapCollateralToVolatility(user, small, sdkmath.OneInt(), "ETHV", m.id, e.stable)
		assert.ErrorIs(t, err, protocol.ErrBelowMinCollateral)
		assert.Equal(t, amountIn.String(), e.usdc.BalanceOf(user).String())
	})

	t.Run("executes_at_quote", func(t *testing.T) {
		total, err := e.c.SwapCollateralToVolatility(user, amountIn, quote, "ETHV", m.id, e.stable)
		require.NoError(t, err)
		assert.Equal(t, quote.String(), total.String())
		assert.Equal(t, total.String(), m.vol.BalanceOf(user).String())
		assert.True(t, e.usdc.BalanceOf(user).IsZero())
		// nothing of the claim pair is stranded on the router
		assert.True(t, m.vol.BalanceOf(ctrlAccount).IsZero())
		assert.True(t, m.inverse.BalanceOf(ctrlAccount).IsZero())
	})
}

func TestSwapVolatilityToCollateral(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)
	amountIn := sdkmath.NewIntWithDecimal(2, 18)
	half := amountIn.QuoRaw(2)

	swapOut, _, err := m.pool.TokenAmountOut("ETHV", half)
	require.NoError(t, err)
	require.True(t, swapOut.LT(half))

	quote, _, err := e.c.VolatilityToCollateral(m.id, e.stable, "ETHV", amountIn)
	require.NoError(t, err)
	// with zero protocol fees the matched pair redeems at the cap ratio
	assert.Equal(t, swapOut.MulRaw(250).String(), quote.String())

	require.NoError(t, m.vol.Mint(user, amountIn))
	require.NoError(t, m.vol.Approve(user, ctrlAccount, amountIn))

	out, err := e.c.SwapVolatilityToCollateral(user, amountIn, quote, "ETHV", m.id, e.stable)
	require.NoError(t, err)
	assert.Equal(t, quote.String(), out.String())
	assert.Equal(t, quote.String(), e.usdc.BalanceOf(user).String())

	// the half that could not be matched against the swap proceeds comes
	// back in kind
	leftover := half.Sub(swapOut)
	assert.Equal(t, leftover.String(), m.vol.BalanceOf(user).String())
	assert.True(t, m.inverse.BalanceOf(user).IsZero())
}

func TestSwapBetweenPools(t *testing.T) {
	e := newEnv(t)
	ethv := e.addMarket(t, "ETHV", 0)
	btcv := e.addMarket(t, "BTCV", 1)
	amountIn := sdkmath.NewIntWithDecimal(2, 18)

	require.NoError(t, ethv.vol.Mint(user, amountIn))
	require.NoError(t, ethv.vol.Approve(user, ctrlAccount, amountIn))

	total, err := e.c.SwapBetweenPools(user, "ETHV", "BTCV", amountIn, sdkmath.OneInt(), ethv.id, btcv.id, e.stable)
	require.NoError(t, err)

	// two pool fees plus rounding, but most of the notional survives
	assert.True(t, total.GT(sdkmath.NewIntWithDecimal(15, 17)))
	assert.Equal(t, total.String(), btcv.vol.BalanceOf(user).String())

	// first-leg residue comes back as the input token
	assert.True(t, ethv.vol.BalanceOf(user).IsPositive())
	assert.True(t, ethv.vol.BalanceOf(user).LT(sdkmath.NewIntWithDecimal(1, 17)))

	t.Run("floor", func(t *testing.T) {
		require.NoError(t, ethv.vol.Mint(user, amountIn))
		require.NoError(t, ethv.vol.Approve(user, ctrlAccount, amountIn))
		before := ethv.vol.BalanceOf(user)
		_, err := e.c.SwapBetweenPools(user, "ETHV", "BTCV", amountIn, sdkmath.NewIntWithDecimal(100, 18), ethv.id, btcv.id, e.stable)
		assert.ErrorIs(t, err, ErrInsufficientOut)
		assert.Equal(t, before.String(), ethv.vol.BalanceOf(user).String())
	})

	t.Run("below_min_collateral", func(t *testing.T) {
		tiny := sdkmath.NewIntWithDecimal(1, 17)
		require.NoError(t, ethv.vol.Mint(user, tiny))
		require.NoError(t, ethv.vol.Approve(user, ctrlAccount, tiny))
		before := ethv.vol.BalanceOf(user)
		_, err := e.c.SwapBetweenPools(user, "ETHV", "BTCV", tiny, sdkmath.OneInt(), ethv.id, btcv.id, e.stable)
		assert.ErrorIs(t, err, protocol.ErrBelowMinCollateral)
		assert.Equal(t, before.String(), ethv.vol.BalanceOf(user).String())
	})
}

func TestUnwindClaims(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)

	// a stranded pair on the router redeems back to the caller in full
	collateral := sdkmath.NewIntWithDecimal(250, 18)
	require.NoError(t, e.usdc.Mint(ctrlAccount, collateral))
	claimQty, _, err := m.minter.Collateralize(ctrlAccount, collateral)
	require.NoError(t, err)

	require.NoError(t, e.c.unwindClaims(m.minter, user, claimQty))
	assert.Equal(t, collateral.String(), e.usdc.BalanceOf(user).String())
	assert.True(t, m.vol.BalanceOf(ctrlAccount).IsZero())
	assert.True(t, m.inverse.BalanceOf(ctrlAccount).IsZero())
}

func TestLiquidity(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)

	// one 40th of the supply requires one token per side at 40 deep
	shares := m.pool.Share().TotalSupply().QuoRaw(40)
	deposit := sdkmath.NewIntWithDecimal(1, 18)

	require.NoError(t, m.vol.Mint(user, deposit))
	require.NoError(t, m.inverse.Mint(user, deposit))
	require.NoError(t, m.vol.Approve(user, ctrlAccount, deposit))
	require.NoError(t, m.inverse.Approve(user, ctrlAccount, deposit))

	require.NoError(t, e.c.AddLiquidity(user, m.id, shares, []sdkmath.Int{deposit, deposit}))
	assert.Equal(t, shares.String(), m.pool.Share().BalanceOf(user).String())
	assert.True(t, m.vol.BalanceOf(user).IsZero())

	require.NoError(t, m.pool.Share().Approve(user, ctrlAccount, shares))
	require.NoError(t, e.c.RemoveLiquidity(user, m.id, shares, []sdkmath.Int{deposit, deposit}))
	assert.Equal(t, deposit.String(), m.vol.BalanceOf(user).String())
	assert.Equal(t, deposit.String(), m.inverse.BalanceOf(user).String())
	assert.True(t, m.pool.Share().BalanceOf(user).IsZero())

	t.Run("paused", func(t *testing.T) {
		require.NoError(t, e.c.TogglePause(ctrlOwner, true))
		err := e.c.AddLiquidity(user, m.id, shares, []sdkmath.Int{deposit, deposit})
		assert.ErrorIs(t, err, ErrPaused)
		require.NoError(t, e.c.TogglePause(ctrlOwner, false))
	})
}

func TestCollect(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)

	stranded := sdkmath.NewIntWithDecimal(5, 18)
	require.NoError(t, m.pool.Share().Transfer(ctrlOwner, ctrlAccount, stranded))

	require.NoError(t, e.c.Collect(ctrlOwner, m.id))
	assert.Equal(t, stranded.String(), m.pool.Share().BalanceOf(testTreasury).String())

	// nothing left is a no-op
	require.NoError(t, e.c.Collect(ctrlOwner, m.id))
	assert.ErrorIs(t, e.c.Collect(user, m.id), ErrNotOwner)
}

func TestTransferAssetToPool(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)
	amount := sdkmath.NewIntWithDecimal(1, 18)

	assert.ErrorIs(t, e.c.TransferAssetToPool(user, m.id, "ETHV", amount), ErrNotPool)

	require.NoError(t, m.vol.Mint(ctrlAccount, amount))
	before := m.vol.BalanceOf(m.pool.Account())
	require.NoError(t, e.c.TransferAssetToPool(m.pool.Account(), m.id, "ETHV", amount))
	assert.Equal(t, before.Add(amount).String(), m.vol.BalanceOf(m.pool.Account()).String())
}

func TestAdminForwarding(t *testing.T) {
	e := newEnv(t)
	m := e.addMarket(t, "ETHV", 0)

	assert.ErrorIs(t, e.c.UpdatePoolAdminFee(user, m.id, 1), ErrNotOwner)
	require.NoError(t, e.c.UpdatePoolAdminFee(ctrlOwner, m.id, 5_000))
	assert.Equal(t, uint64(5_000), m.pool.AdminFee())

	require.NoError(t, e.c.UpdatePoolFlashLoanPremium(ctrlOwner, m.id, 9))
	assert.Equal(t, uint64(9), m.pool.FlashLoanPremium())

	require.NoError(t, e.c.TogglePoolPause(ctrlOwner, m.id, true))
	assert.True(t, m.pool.Paused())
	require.NoError(t, e.c.TogglePoolPause(ctrlOwner, m.id, false))

	require.NoError(t, e.c.UpdatePoolVolatilityIndex(ctrlOwner, m.id, 3))
	assert.Equal(t, types.IndexID(3), m.pool.VolatilityIndex())
}
