/*

Fixed-point arithmetic used by the bonding-curve math. Amounts and
leverages are integers scaled by BONE (1e18); oracle prices are integers
scaled by PricePrecision (1e6). No floating point anywhere in the trade
path.

*/

package utils

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

var (
	// BONE is one unit in 1e18 fixed point.
	BONE = sdkmath.NewIntWithDecimal(1, 18)

	// PricePrecision is one unit of oracle price (1e6).
	PricePrecision = sdkmath.NewInt(1_000_000)
)

var ErrDivZero = errors.New("division by zero")

// BMul multiplies two BONE-scaled values, rounding half up.
func BMul(a, b sdkmath.Int) sdkmath.Int {
	c := a.Mul(b)
	c = c.Add(BONE.QuoRaw(2))
	return c.Quo(BONE)
}

// BDiv divides two BONE-scaled values, rounding half up. b must be non-zero.
func BDiv(a, b sdkmath.Int) sdkmath.Int {
	c := a.Mul(BONE)
	c = c.Add(b.Quo(sdkmath.NewInt(2)).Abs())
	return c.Quo(b)
}

// CeilDiv returns ceil(a*BONE / b) without BONE scaling of the result,
// used where rounding must favour the pool (join amounts in).
func CeilDiv(a, b sdkmath.Int) sdkmath.Int {
	c := a.Mul(BONE)
	return c.Add(b.SubRaw(1)).Quo(b)
}

// Sqrt computes the integer square root of x using the Babylonian method.
// It is total: Sqrt(0) == 0 and the iteration strictly decreases, so it
// terminates for every non-negative input including the maximum
// representable value. The result is within one unit of the true root.
func Sqrt(x sdkmath.Int) (sdkmath.Int, error) {
	if x.IsNegative() {
		return sdkmath.Int{}, errors.New("square root of negative value")
	}
	if x.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	z := x.AddRaw(1).Quo(sdkmath.NewInt(2))
	y := x
	for z.LT(y) {
		y = z
		z = x.Quo(z).Add(z).Quo(sdkmath.NewInt(2))
	}
	return y, nil
}

// BSqrt computes the square root of a BONE-scaled value, returning a
// BONE-scaled result: BSqrt(v) = floor(sqrt(v * BONE)).
func BSqrt(v sdkmath.Int) (sdkmath.Int, error) {
	return Sqrt(v.Mul(BONE))
}
