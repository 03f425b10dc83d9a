/*

Curve math. Swaps price on a constant product over leveraged balances
(balance * leverage per side); the trading fee rises from baseFee toward
maxFee with the average squared imbalance over the trade interval, scaled
by the side's fee amplification. Integer fixed point throughout.

*/

package pool

import (
	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/utils"
)

// calcOutGivenIn prices an exact-in swap on the leveraged constant
// product. fee is a BONE-scaled rate applied to amountIn.
func calcOutGivenIn(balanceIn, leverageIn, balanceOut, leverageOut, amountIn, fee sdkmath.Int) sdkmath.Int {
	weightedIn := utils.BMul(balanceIn, leverageIn)
	weightedOut := utils.BMul(balanceOut, leverageOut)
	adjustedIn := utils.BMul(amountIn, utils.BONE.Sub(fee))
	y := utils.BDiv(weightedIn, weightedIn.Add(adjustedIn))
	return utils.BMul(weightedOut, utils.BONE.Sub(y))
}

// calcFee integrates the quadratic fee curve over the trade's imbalance
// interval. expStart and expEnd are the normalized imbalances
// (weightedIn - weightedOut) / (weightedIn + weightedOut) before and
// after the trade, BONE-scaled and signed; the fee is the base fee plus
// feeAmp times the mean of x^2 over the positive part of the interval,
// clamped to [baseFee, maxFee].
func calcFee(expStart, expEnd, baseFee, feeAmp, maxFee sdkmath.Int) sdkmath.Int {
	fee := baseFee
	switch {
	case expEnd.LTE(sdkmath.ZeroInt()):
		// the whole trade reduces imbalance; base fee only
	case expEnd.Equal(expStart):
		// zero-length interval: spot fee at the current imbalance
		spot := expStart.Mul(expStart).Quo(utils.BONE)
		fee = baseFee.Add(feeAmp.Mul(spot))
	default:
		lower := expStart
		if lower.IsNegative() {
			// charge only the positive side of the interval
			lower = sdkmath.ZeroInt()
		}
		num := cube(expEnd).Sub(cube(lower))
		den := expEnd.Sub(expStart).MulRaw(3)
		fee = baseFee.Add(feeAmp.Mul(num.Mul(utils.BONE).Quo(den)))
	}
	if fee.GT(maxFee) {
		return maxFee
	}
	if fee.LT(baseFee) {
		return baseFee
	}
	return fee
}

// calcExposure returns the normalized imbalance of two weighted reserves,
// BONE-scaled and signed toward the first argument.
func calcExposure(weightedIn, weightedOut sdkmath.Int) sdkmath.Int {
	return weightedIn.Sub(weightedOut).Mul(utils.BONE).Quo(weightedIn.Add(weightedOut))
}

// cube keeps BONE scaling: x^3 / BONE^2.
func cube(x sdkmath.Int) sdkmath.Int {
	return x.Mul(x).Mul(x).Quo(utils.BONE).Quo(utils.BONE)
}
