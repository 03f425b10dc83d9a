package pool

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"

	"github.com/volmexfinance/volmex-amm/internal/utils"
)

func bone(n int64) sdkmath.Int { return utils.BONE.MulRaw(n) }

func TestCalcOutGivenIn(t *testing.T) {
	t.Run("symmetric_full_reserve", func(t *testing.T) {
		// amountIn equal to the reserve halves the invariant: out = balance/2
		out := calcOutGivenIn(bone(100), utils.BONE, bone(100), utils.BONE, bone(100), sdkmath.ZeroInt())
		assert.Equal(t, bone(50).String(), out.String())
	})

	t.Run("ten_percent_in", func(t *testing.T) {
		out := calcOutGivenIn(bone(100), utils.BONE, bone(100), utils.BONE, bone(10), sdkmath.ZeroInt())
		assert.Equal(t, "9090909090909090900", out.String())
	})

	t.Run("fee_shrinks_out", func(t *testing.T) {
		// a 50% fee halves the effective amount in
		half := utils.BONE.QuoRaw(2)
		out := calcOutGivenIn(bone(100), utils.BONE, bone(100), utils.BONE, bone(100), half)
		assert.Equal(t, "33333333333333333300", out.String())
	})

	t.Run("leverage_scales_weights", func(t *testing.T) {
		// doubling both leverages doubles both weights: same relative
		// depth, so twice the raw output for the same amount in
		double := utils.BONE.MulRaw(2)
		base := calcOutGivenIn(bone(100), utils.BONE, bone(100), utils.BONE, bone(10), sdkmath.ZeroInt())
		levered := calcOutGivenIn(bone(100), double, bone(100), double, bone(10), sdkmath.ZeroInt())
		assert.True(t, levered.GT(base))
	})
}

func TestCalcFee(t *testing.T) {
	base := sdkmath.NewIntWithDecimal(2, 16)
	max := sdkmath.NewIntWithDecimal(4, 17)
	amp := sdkmath.NewInt(10)

	t.Run("balancing_trade_pays_base", func(t *testing.T) {
		fee := calcFee(sdkmath.NewIntWithDecimal(-3, 17), sdkmath.NewIntWithDecimal(-1, 17), base, amp, max)
		assert.Equal(t, base.String(), fee.String())
	})

	t.Run("spot_fee_at_fixed_imbalance", func(t *testing.T) {
		// x = 0.1: base + amp * x^2 = 0.02 + 10 * 0.01 = 0.12
		x := sdkmath.NewIntWithDecimal(1, 17)
		fee := calcFee(x, x, base, amp, max)
		assert.Equal(t, sdkmath.NewIntWithDecimal(12, 16).String(), fee.String())
	})

	t.Run("integral_over_interval", func(t *testing.T) {
		// from 0 to 0.3: mean of x^2 is 0.03, fee = 0.02 + 10 * 0.03 = 0.32
		fee := calcFee(sdkmath.ZeroInt(), sdkmath.NewIntWithDecimal(3, 17), base, amp, max)
		assert.Equal(t, sdkmath.NewIntWithDecimal(32, 16).String(), fee.String())
	})

	t.Run("negative_start_clamped_to_zero", func(t *testing.T) {
		// only the positive half of [-0.1, 0.1] is charged
		fee := calcFee(sdkmath.NewIntWithDecimal(-1, 17), sdkmath.NewIntWithDecimal(1, 17), base, amp, max)
		assert.Equal(t, "36666666666666660", fee.String())
	})

	t.Run("clamped_at_max", func(t *testing.T) {
		fee := calcFee(sdkmath.ZeroInt(), sdkmath.NewIntWithDecimal(6, 17), base, amp, max)
		assert.Equal(t, max.String(), fee.String())
	})
}

func TestCalcExposure(t *testing.T) {
	assert.Equal(t, sdkmath.NewIntWithDecimal(2, 17).String(),
		calcExposure(bone(60), bone(40)).String())
	assert.Equal(t, sdkmath.NewIntWithDecimal(-2, 17).String(),
		calcExposure(bone(40), bone(60)).String())
	assert.True(t, calcExposure(bone(50), bone(50)).IsZero())
}

func TestCube(t *testing.T) {
	assert.Equal(t, bone(27).String(), cube(bone(3)).String())
	assert.Equal(t, "-27000000000000000000", cube(bone(-3)).String())
}
