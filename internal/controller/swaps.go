/*

Swap paths. Every multi-step path quotes the whole route first and only
starts moving funds once the quoted proceeds clear the caller's floor;
the pool's quote and execution use the same math, so the executed route
cannot deliver less than the quote it was admitted on. A leg that still
fails mid-route is compensated: whatever the controller holds from the
completed legs goes back to the caller before the error returns.

*/

package controller

import (
	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/pool"
	"github.com/volmexfinance/volmex-amm/internal/protocol"
	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

// Swap trades tokenIn for tokenOut on one pool on the caller's behalf.
func (c *Controller) Swap(from types.Account, poolIndex types.PoolID, tokenIn string, amountIn sdkmath.Int, tokenOut string, minAmountOut sdkmath.Int) (sdkmath.Int, error) {
	if err := c.requireLive(); err != nil {
		return sdkmath.Int{}, err
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return sdkmath.Int{}, err
	}
	inLedger, _, err := c.poolLedger(p, tokenIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := inLedger.TransferFrom(c.account, from, c.account, amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	return p.SwapExactAmountIn(c.account, tokenIn, amountIn, tokenOut, minAmountOut, from)
}

// SwapCollateralToVolatility turns stablecoin collateral into one side of
// a pool's claim pair: collateralize into both sides, swap the unwanted
// side, deliver the sum.
func (c *Controller) SwapCollateralToVolatility(from types.Account, amountIn, minAmountOut sdkmath.Int, tokenOut string, poolIndex types.PoolID, stableIndex types.StableCoinID) (sdkmath.Int, error) {
	if err := c.requireLive(); err != nil {
		return sdkmath.Int{}, err
	}
	p, m, err := c.route(poolIndex, stableIndex)
	if err != nil {
		return sdkmath.Int{}, err
	}
	outLedger, otherSymbol, err := c.poolLedger(p, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if amountIn.IsNil() || amountIn.LT(m.MinimumCollateralQty()) {
		return sdkmath.Int{}, protocol.ErrBelowMinCollateral
	}

	claimQty, _ := m.CollateralToClaim(amountIn)
	swapOut, fee, err := p.TokenAmountOut(otherSymbol, claimQty)
	if err != nil {
		return sdkmath.Int{}, err
	}
	total := claimQty.Add(swapOut)
	if total.LT(minAmountOut) {
		return sdkmath.Int{}, ErrInsufficientOut
	}

	if err := m.Collateral().TransferFrom(c.account, from, c.account, amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	if _, _, err := m.Collateralize(c.account, amountIn); err != nil {
		c.refund(m.Collateral(), from, amountIn)
		return sdkmath.Int{}, err
	}
	if _, err := p.SwapExactAmountIn(c.account, otherSymbol, claimQty, tokenOut, swapOut, c.account); err != nil {
		if uerr := c.unwindClaims(m, from, claimQty); uerr != nil {
			c.log.Error().Err(uerr).Msg("Failed to unwind claim pair after swap leg error")
		}
		return sdkmath.Int{}, err
	}
	if err := outLedger.Transfer(c.account, from, total); err != nil {
		return sdkmath.Int{}, err
	}

	c.recorder.Record(types.CollateralSwapped{
		Pool:          poolIndex,
		StableCoin:    stableIndex,
		CollateralIn:  amountIn,
		VolatilityOut: total,
		Token:         tokenOut,
		Fee:           fee,
		Recipient:     from,
	})
	c.log.Debug().
		Str("collateralIn", amountIn.String()).
		Str("volatilityOut", total.String()).
		Str("token", tokenOut).
		Msg("Collateral swapped to volatility")
	return total, nil
}

// SwapVolatilityToCollateral turns one side of a claim pair back into
// stablecoin collateral: swap half into the opposite side, redeem the
// matched pair, refund whatever half could not be matched.
func (c *Controller) SwapVolatilityToCollateral(from types.Account, amountIn, minAmountOut sdkmath.Int, tokenIn string, poolIndex types.PoolID, stableIndex types.StableCoinID) (sdkmath.Int, error) {
	if err := c.requireLive(); err != nil {
		return sdkmath.Int{}, err
	}
	p, m, err := c.route(poolIndex, stableIndex)
	if err != nil {
		return sdkmath.Int{}, err
	}
	inLedger, otherSymbol, err := c.poolLedger(p, tokenIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	outLedger, _, err := c.poolLedger(p, otherSymbol)
	if err != nil {
		return sdkmath.Int{}, err
	}

	half := amountIn.QuoRaw(2)
	remaining := amountIn.Sub(half)
	swapOut, _, err := p.TokenAmountOut(tokenIn, half)
	if err != nil {
		return sdkmath.Int{}, err
	}
	redeemQty := sdkmath.MinInt(remaining, swapOut)
	collateralOut, fee := m.ClaimToCollateral(redeemQty)
	if collateralOut.LT(minAmountOut) {
		return sdkmath.Int{}, ErrInsufficientOut
	}

	if err := inLedger.TransferFrom(c.account, from, c.account, amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	if _, err := p.SwapExactAmountIn(c.account, tokenIn, half, otherSymbol, swapOut, c.account); err != nil {
		c.refund(inLedger, from, amountIn)
		return sdkmath.Int{}, err
	}
	if _, _, err := m.Redeem(c.account, redeemQty); err != nil {
		c.refund(inLedger, from, remaining)
		c.refund(outLedger, from, swapOut)
		return sdkmath.Int{}, err
	}
	if err := m.Collateral().Transfer(c.account, from, collateralOut); err != nil {
		return sdkmath.Int{}, err
	}
	// one side can exceed the matched pair; hand the remainder back
	if leftover := remaining.Sub(redeemQty); leftover.IsPositive() {
		if err := inLedger.Transfer(c.account, from, leftover); err != nil {
			return sdkmath.Int{}, err
		}
	}
	if leftover := swapOut.Sub(redeemQty); leftover.IsPositive() {
		if err := outLedger.Transfer(c.account, from, leftover); err != nil {
			return sdkmath.Int{}, err
		}
	}

	c.recorder.Record(types.VolatilitySwapped{
		Pool:          poolIndex,
		StableCoin:    stableIndex,
		VolatilityIn:  amountIn,
		CollateralOut: collateralOut,
		Token:         tokenIn,
		Fee:           fee,
		Recipient:     from,
	})
	return collateralOut, nil
}

// SwapBetweenPools routes tokenIn from one pool's pair to tokenOut in
// another pool's pair through the shared stablecoin: unwind to
// collateral on the first pool, re-collateralize and swap on the second.
func (c *Controller) SwapBetweenPools(from types.Account, tokenIn, tokenOut string, amountIn, minAmountOut sdkmath.Int, poolIn, poolOut types.PoolID, stableIndex types.StableCoinID) (sdkmath.Int, error) {
	if err := c.requireLive(); err != nil {
		return sdkmath.Int{}, err
	}
	pA, mA, err := c.route(poolIn, stableIndex)
	if err != nil {
		return sdkmath.Int{}, err
	}
	pB, mB, err := c.route(poolOut, stableIndex)
	if err != nil {
		return sdkmath.Int{}, err
	}
	inLedger, otherA, err := c.poolLedger(pA, tokenIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	otherALedger, _, err := c.poolLedger(pA, otherA)
	if err != nil {
		return sdkmath.Int{}, err
	}
	outLedger, otherB, err := c.poolLedger(pB, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}

	// quote the full route before any funds move
	half := amountIn.QuoRaw(2)
	remaining := amountIn.Sub(half)
	swapOutA, _, err := pA.TokenAmountOut(tokenIn, half)
	if err != nil {
		return sdkmath.Int{}, err
	}
	redeemQty := sdkmath.MinInt(remaining, swapOutA)
	collateral, _ := mA.ClaimToCollateral(redeemQty)
	if collateral.LT(mB.MinimumCollateralQty()) {
		return sdkmath.Int{}, protocol.ErrBelowMinCollateral
	}
	claimB, _ := mB.CollateralToClaim(collateral)
	swapOutB, _, err := pB.TokenAmountOut(otherB, claimB)
	if err != nil {
		return sdkmath.Int{}, err
	}
	total := claimB.Add(swapOutB)
	if total.LT(minAmountOut) {
		return sdkmath.Int{}, ErrInsufficientOut
	}

	if err := inLedger.TransferFrom(c.account, from, c.account, amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	if _, err := pA.SwapExactAmountIn(c.account, tokenIn, half, otherA, swapOutA, c.account); err != nil {
		c.refund(inLedger, from, amountIn)
		return sdkmath.Int{}, err
	}
	legAResidue := func() {
		c.refund(inLedger, from, remaining.Sub(redeemQty))
		c.refund(otherALedger, from, swapOutA.Sub(redeemQty))
	}
	if _, _, err := mA.Redeem(c.account, redeemQty); err != nil {
		c.refund(inLedger, from, remaining)
		c.refund(otherALedger, from, swapOutA)
		return sdkmath.Int{}, err
	}
	if _, _, err := mB.Collateralize(c.account, collateral); err != nil {
		c.refund(mA.Collateral(), from, collateral)
		legAResidue()
		return sdkmath.Int{}, err
	}
	if _, err := pB.SwapExactAmountIn(c.account, otherB, claimB, tokenOut, swapOutB, c.account); err != nil {
		if uerr := c.unwindClaims(mB, from, claimB); uerr != nil {
			c.log.Error().Err(uerr).Msg("Failed to unwind claim pair after second leg error")
		}
		legAResidue()
		return sdkmath.Int{}, err
	}
	if err := outLedger.Transfer(c.account, from, total); err != nil {
		return sdkmath.Int{}, err
	}
	// first-leg residue goes back to the caller
	if leftover := remaining.Sub(redeemQty); leftover.IsPositive() {
		if err := inLedger.Transfer(c.account, from, leftover); err != nil {
			return sdkmath.Int{}, err
		}
	}
	if leftover := swapOutA.Sub(redeemQty); leftover.IsPositive() {
		if err := otherALedger.Transfer(c.account, from, leftover); err != nil {
			return sdkmath.Int{}, err
		}
	}

	c.recorder.Record(types.PoolSwapped{
		PoolIn:    poolIn,
		PoolOut:   poolOut,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		AmountOut: total,
		Recipient: from,
	})
	c.log.Debug().
		Uint64("poolIn", uint64(poolIn)).
		Uint64("poolOut", uint64(poolOut)).
		Str("amountIn", amountIn.String()).
		Str("amountOut", total.String()).
		Msg("Swapped between pools")
	return total, nil
}

// CollateralToVolatility quotes SwapCollateralToVolatility: the claim
// amount delivered and the BONE-scaled pool fee rate on the swap leg.
func (c *Controller) CollateralToVolatility(poolIndex types.PoolID, stableIndex types.StableCoinID, tokenOut string, amountIn sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	p, m, err := c.route(poolIndex, stableIndex)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	_, otherSymbol, err := c.poolLedger(p, tokenOut)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	claimQty, _ := m.CollateralToClaim(amountIn)
	swapOut, fee, err := p.TokenAmountOut(otherSymbol, claimQty)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return claimQty.Add(swapOut), fee, nil
}

// VolatilityToCollateral quotes SwapVolatilityToCollateral.
func (c *Controller) VolatilityToCollateral(poolIndex types.PoolID, stableIndex types.StableCoinID, tokenIn string, amountIn sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	p, m, err := c.route(poolIndex, stableIndex)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if _, _, err := c.poolLedger(p, tokenIn); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	half := amountIn.QuoRaw(2)
	swapOut, fee, err := p.TokenAmountOut(tokenIn, half)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	redeemQty := sdkmath.MinInt(amountIn.Sub(half), swapOut)
	collateralOut, _ := m.ClaimToCollateral(redeemQty)
	return collateralOut, fee, nil
}

// refund hands funds held on the controller account back to their
// owner. A failed or non-positive refund is logged and swallowed so the
// route error that triggered it still surfaces.
func (c *Controller) refund(led *token.Token, to types.Account, amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}
	if err := led.Transfer(c.account, to, amount); err != nil {
		c.log.Error().
			Err(err).
			Str("token", led.Symbol()).
			Str("amount", amount.String()).
			Msg("Refund transfer failed")
	}
}

// unwindClaims reverses a collateralize step after a later leg failed:
// the freshly minted pair is redeemed from the controller account and
// the released collateral goes back to the caller. Protocol fees paid
// on the round trip are not recovered.
func (c *Controller) unwindClaims(m protocol.Minter, to types.Account, claimQty sdkmath.Int) error {
	net, _, err := m.Redeem(c.account, claimQty)
	if err != nil {
		return err
	}
	return m.Collateral().Transfer(c.account, to, net)
}

// route resolves the pool and its bound protocol for a pair of indices.
func (c *Controller) route(poolIndex types.PoolID, stableIndex types.StableCoinID) (*pool.Pool, protocol.Minter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.poolAt(poolIndex)
	if err != nil {
		return nil, nil, err
	}
	m, err := c.protocolAt(poolIndex, stableIndex)
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}
