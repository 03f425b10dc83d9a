package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqrt(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		got, err := Sqrt(sdkmath.ZeroInt())
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("perfect_squares", func(t *testing.T) {
		cases := map[int64]int64{1: 1, 4: 2, 9: 3, 144: 12, 1_000_000: 1_000}
		for in, want := range cases {
			got, err := Sqrt(sdkmath.NewInt(in))
			require.NoError(t, err)
			assert.Equal(t, want, got.Int64(), "sqrt(%d)", in)
		}
	})

	t.Run("one_bone_squared", func(t *testing.T) {
		got, err := Sqrt(BONE.Mul(BONE))
		require.NoError(t, err)
		assert.True(t, got.Equal(BONE))
	})

	t.Run("floor_bounds", func(t *testing.T) {
		// y*y <= x < (y+1)*(y+1) must hold for arbitrary inputs
		inputs := []sdkmath.Int{
			sdkmath.NewInt(2),
			sdkmath.NewInt(999_999_999_999),
			BONE.AddRaw(12345),
			BONE.Mul(BONE).SubRaw(1),
			sdkmath.NewIntWithDecimal(7, 30),
		}
		for _, x := range inputs {
			y, err := Sqrt(x)
			require.NoError(t, err)
			assert.True(t, y.Mul(y).LTE(x), "sqrt(%s)=%s too large", x, y)
			yNext := y.AddRaw(1)
			assert.True(t, yNext.Mul(yNext).GT(x), "sqrt(%s)=%s too small", x, y)
		}
	})

	t.Run("negative", func(t *testing.T) {
		_, err := Sqrt(sdkmath.NewInt(-1))
		assert.Error(t, err)
	})
}

func TestBSqrt(t *testing.T) {
	// BSqrt(BONE) is sqrt of 1.0 in fixed point
	got, err := BSqrt(BONE)
	require.NoError(t, err)
	assert.True(t, got.Equal(BONE))

	// BSqrt(4.0) == 2.0
	got, err = BSqrt(BONE.MulRaw(4))
	require.NoError(t, err)
	assert.True(t, got.Equal(BONE.MulRaw(2)))
}

func TestBMul(t *testing.T) {
	one := BONE
	half := BONE.QuoRaw(2)

	assert.True(t, BMul(one, one).Equal(one))
	assert.True(t, BMul(half, half).Equal(BONE.QuoRaw(4)))
	assert.True(t, BMul(sdkmath.ZeroInt(), one).IsZero())

	// 0.02 * 100 == 2
	fee := sdkmath.NewIntWithDecimal(2, 16)
	hundred := BONE.MulRaw(100)
	assert.True(t, BMul(fee, hundred).Equal(BONE.MulRaw(2)))
}

func TestBDiv(t *testing.T) {
	two := BONE.MulRaw(2)

	assert.True(t, BDiv(two, BONE).Equal(two))
	assert.True(t, BDiv(BONE, two).Equal(BONE.QuoRaw(2)))

	// round half up: 1 / 3 at BONE scale
	third := BDiv(BONE, BONE.MulRaw(3))
	assert.Equal(t, "333333333333333333", third.String())
}

func TestSDKIntToFloat64(t *testing.T) {
	v, err := SDKIntToFloat64(BONE.MulRaw(3), 18)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-9)

	v, err = SDKIntToFloat64(sdkmath.NewInt(110_000_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 110.0, v, 1e-9)

	_, err = SDKIntToFloat64(sdkmath.Int{}, 18)
	assert.ErrorIs(t, err, ErrAmountNil)

	_, err = SDKIntToFloat64(BONE, 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}
