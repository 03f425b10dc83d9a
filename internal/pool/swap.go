/*

Swap path: leverage refresh through the repricer, dynamic fee, curve
pricing, risk bounds, settlement. Quotes run the same math on copies of
the records so a quote followed immediately by the swap yields exactly
the quoted amount.

*/

package pool

import (
	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
	"github.com/volmexfinance/volmex-amm/internal/utils"
)

// swapResult is the priced trade before it is applied.
type swapResult struct {
	amountOut   sdkmath.Int
	fee         sdkmath.Int // BONE-scaled rate
	feeAmountIn sdkmath.Int // tokenIn units retained as fee
	in, out     Record      // post-trade records
}

// SwapExactAmountIn trades a fixed tokenIn amount for tokenOut, enforcing
// the caller's minAmountOut floor, the max-in ratio, the exposure
// boundary and the curve floors. The whole call fails with reserves
// untouched on any violation.
func (p *Pool) SwapExactAmountIn(from types.Account, tokenIn string, amountIn sdkmath.Int, tokenOut string, minAmountOut sdkmath.Int, recipient types.Account) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return sdkmath.Int{}, err
	}
	if err := p.requireTradable(); err != nil {
		return sdkmath.Int{}, err
	}

	res, inIsPrimary, err := p.priceSwap(tokenIn, amountIn, tokenOut)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if res.amountOut.LT(minAmountOut) {
		return sdkmath.Int{}, ErrAmountOutLimit
	}

	// Settle the ledger side before mutating records so a transfer
	// failure leaves the pool untouched.
	inLedger, outLedger, err := p.ledgers(tokenIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := inLedger.Transfer(from, p.account, amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	if err := outLedger.Transfer(p.account, recipient, res.amountOut); err != nil {
		return sdkmath.Int{}, err
	}
	adminCut := res.feeAmountIn.MulRaw(int64(p.adminFeeBps)).QuoRaw(10_000)
	if adminCut.IsPositive() {
		if err := inLedger.Transfer(p.account, p.feeSink, adminCut); err != nil {
			return sdkmath.Int{}, err
		}
		res.in.Balance = res.in.Balance.Sub(adminCut)
	}

	if inIsPrimary {
		p.primary, p.complement = res.in, res.out
	} else {
		p.complement, p.primary = res.in, res.out
	}

	p.log.Debug().
		Str("tokenIn", tokenIn).
		Str("amountIn", amountIn.String()).
		Str("tokenOut", tokenOut).
		Str("amountOut", res.amountOut.String()).
		Str("fee", res.fee.String()).
		Msg("Swap executed")
	p.recorder.Record(types.Swapped{
		Pool:           p.id,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       amountIn,
		AmountOut:      res.amountOut,
		Fee:            res.fee,
		FeeAmountIn:    res.feeAmountIn,
		AdminFeeAmount: adminCut,
		LeverageIn:     res.in.Leverage,
		LeverageOut:    res.out.Leverage,
		BalanceIn:      res.in.Balance,
		BalanceOut:     res.out.Balance,
		Recipient:      recipient,
	})
	return res.amountOut, nil
}

// TokenAmountOut quotes a swap without mutating state. It returns the
// amount out and the BONE-scaled fee rate that would be charged.
func (p *Pool) TokenAmountOut(tokenIn string, amountIn sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireTradable(); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	vol, inverse := p.Tokens()
	tokenOut := inverse.Symbol()
	if tokenIn == tokenOut {
		tokenOut = vol.Symbol()
	}
	res, _, err := p.priceSwap(tokenIn, amountIn, tokenOut)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return res.amountOut, res.fee, nil
}

func (p *Pool) requireTradable() error {
	if !p.finalized {
		return ErrNotFinalized
	}
	if p.minter.IsSettled() {
		return ErrSettled
	}
	if p.paused {
		return ErrPaused
	}
	return nil
}

// priceSwap refreshes leverage from the oracle and prices the trade on
// copies of the records. Callers under p.mu only.
func (p *Pool) priceSwap(tokenIn string, amountIn sdkmath.Int, tokenOut string) (swapResult, bool, error) {
	if tokenIn == tokenOut {
		return swapResult{}, false, ErrSameToken
	}
	inRec, inIsPrimary, err := p.record(tokenIn)
	if err != nil {
		return swapResult{}, false, err
	}
	outRec, _, err := p.record(tokenOut)
	if err != nil {
		return swapResult{}, false, err
	}
	if amountIn.IsNil() || amountIn.LT(p.qMin) {
		return swapResult{}, false, ErrAmountTooSmall
	}
	// anti-manipulation bound: no more than half the reserve per trade
	if amountIn.GT(inRec.Balance.Quo(sdkmath.NewInt(2))) {
		return swapResult{}, false, ErrMaxInRatio
	}

	in, out := *inRec, *outRec
	if err := p.reprice(&in, &out, inIsPrimary); err != nil {
		return swapResult{}, false, err
	}

	weightedIn := utils.BMul(in.Balance, in.Leverage)
	weightedOut := utils.BMul(out.Balance, out.Leverage)

	// fee-free estimate bounds the post-trade imbalance for the fee curve
	estOut := calcOutGivenIn(in.Balance, in.Leverage, out.Balance, out.Leverage, amountIn, sdkmath.ZeroInt())
	expStart := calcExposure(weightedIn, weightedOut)
	expEnd := weightedIn.Add(amountIn).Sub(weightedOut).Add(estOut).Mul(utils.BONE).
		Quo(weightedIn.Add(weightedOut))

	feeAmp := p.feeAmpComplement
	exposureLimit := p.exposureLimitComplement
	if inIsPrimary {
		feeAmp = p.feeAmpPrimary
		exposureLimit = p.exposureLimitPrimary
	}
	fee := calcFee(expStart, expEnd, p.baseFee, feeAmp, p.maxFee)

	amountOut := calcOutGivenIn(in.Balance, in.Leverage, out.Balance, out.Leverage, amountIn, fee)
	if !amountOut.IsPositive() {
		return swapResult{}, false, ErrInvalidApprox
	}

	// leverage re-anchoring keeps each side's weighted balance consistent
	// with the post-trade reserves
	newLevOut := utils.BDiv(weightedOut.Sub(amountOut), out.Balance.Sub(amountOut))
	newLevIn := utils.BDiv(weightedIn.Add(amountIn), in.Balance.Add(amountIn))

	in.Balance = in.Balance.Add(amountIn)
	in.Leverage = newLevIn
	out.Balance = out.Balance.Sub(amountOut)
	out.Leverage = newLevOut

	if err := p.checkBounds(in, out, exposureLimit); err != nil {
		return swapResult{}, false, err
	}

	feeAmountIn := utils.BMul(amountIn, fee)
	return swapResult{
		amountOut:   amountOut,
		fee:         fee,
		feeAmountIn: feeAmountIn,
		in:          in,
		out:         out,
	}, inIsPrimary, nil
}

// reprice derives fresh leverage for both sides from the oracle's moving
// average. The in/out records are ordered; inIsPrimary orients them.
func (p *Pool) reprice(in, out *Record, inIsPrimary bool) error {
	res, err := p.repricer.Reprice(p.volatilityIndex)
	if err != nil {
		return err
	}
	primary, complement := out, in
	if inIsPrimary {
		primary, complement = in, out
	}
	newPrimary, newComplement, err := p.repricer.LeverageAfterReprice(
		primary.Balance, complement.Balance,
		primary.Leverage, complement.Leverage,
		res.PriceRatio,
	)
	if err != nil {
		return err
	}
	primary.Leverage = newPrimary
	complement.Leverage = newComplement
	return nil
}

// checkBounds enforces the post-trade risk envelope: reserve floor, curve
// price floor and the exposure boundary.
func (p *Pool) checkBounds(in, out Record, exposureLimit sdkmath.Int) error {
	if out.Balance.LT(p.qMin) || in.Balance.LT(p.qMin) {
		return ErrCurveBoundary
	}
	weightedIn := utils.BMul(in.Balance, in.Leverage)
	weightedOut := utils.BMul(out.Balance, out.Leverage)
	if utils.BDiv(weightedOut, weightedIn).LT(p.pMin) || utils.BDiv(weightedIn, weightedOut).LT(p.pMin) {
		return ErrCurveBoundary
	}
	exposure := calcExposure(weightedIn, weightedOut)
	if exposure.GT(exposureLimit) {
		return ErrExposureBoundary
	}
	return nil
}

// ledgers resolves the in/out token ledgers ordered by tokenIn.
func (p *Pool) ledgers(tokenIn string) (*token.Token, *token.Token, error) {
	vol, inverse := p.Tokens()
	switch tokenIn {
	case vol.Symbol():
		return vol, inverse, nil
	case inverse.Symbol():
		return inverse, vol, nil
	}
	return nil, nil, ErrUnknownToken
}
