/*

Stateless repricing layer between the oracle and the pools. Turns the
oracle's moving-average price signal into complementary token prices and
leverage multipliers. primaryPrice + complementPrice == capRatio holds
exactly for every reprice; the two sides are complementary by
construction.

*/

package repricer

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/types"
	"github.com/volmexfinance/volmex-amm/internal/utils"
)

var (
	ErrUnsupportedOracle = errors.New("repricer: oracle does not support the read interface")
	ErrZeroLeverage      = errors.New("repricer: computed leverage is zero")
)

// OracleReader is the slice of the oracle the repricer consumes. The
// implementation is checked at construction, not probed at call time.
type OracleReader interface {
	Twap(id types.IndexID) (sdkmath.Int, error)
	CapRatio(id types.IndexID) (sdkmath.Int, error)
	LatestRound(id types.IndexID) (latest, previous types.PriceObservation, err error)
}

// Result is one repriced state for a volatility index.
type Result struct {
	PrimaryPrice    sdkmath.Int // price-precision units
	ComplementPrice sdkmath.Int // capRatio - PrimaryPrice, exact
	PriceRatio      sdkmath.Int // BONE-scaled complement/primary
	LatestPrice     sdkmath.Int // most recent raw observation
	PreviousPrice   sdkmath.Int // observation before it (falls back to latest)
}

type Repricer struct {
	oracle OracleReader
}

func New(oracle OracleReader) (*Repricer, error) {
	if oracle == nil {
		return nil, ErrUnsupportedOracle
	}
	return &Repricer{oracle: oracle}, nil
}

// Reprice computes the current complementary prices for an index from the
// oracle's moving average.
func (r *Repricer) Reprice(id types.IndexID) (Result, error) {
	twap, err := r.oracle.Twap(id)
	if err != nil {
		return Result{}, err
	}
	capRatio, err := r.oracle.CapRatio(id)
	if err != nil {
		return Result{}, err
	}
	latest, previous, err := r.oracle.LatestRound(id)
	if err != nil {
		return Result{}, err
	}
	complement := capRatio.Sub(twap)
	if !twap.IsPositive() || !complement.IsPositive() {
		// The oracle enforces 0 < price < capRatio on every write, so a
		// degenerate twap means the handle is not a conforming oracle.
		return Result{}, ErrUnsupportedOracle
	}
	return Result{
		PrimaryPrice:    twap,
		ComplementPrice: complement,
		PriceRatio:      complement.Mul(utils.BONE).Quo(twap),
		LatestPrice:     latest.Price,
		PreviousPrice:   previous.Price,
	}, nil
}

// LeverageAfterReprice derives the next leverage pair from the previous
// pair and the freshly repriced state, given the pool's current reserve
// balances. The primary leverage is the square root of the ratio between
// the previous leveraged state and the current one; the complement moves
// symmetrically so their product is preserved.
func (r *Repricer) LeverageAfterReprice(balancePrimary, balanceComplement, leveragePrimary, leverageComplement, priceRatio sdkmath.Int) (newPrimary, newComplement sdkmath.Int, err error) {
	if !balancePrimary.IsPositive() || !balanceComplement.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, ErrZeroLeverage
	}
	leveraged := utils.BMul(leveragePrimary, leverageComplement)
	inner := utils.BMul(leveraged, utils.BDiv(utils.BMul(balanceComplement, priceRatio), balancePrimary))
	newPrimary, err = r.SqrtWrapped(inner)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if newPrimary.IsZero() {
		return sdkmath.Int{}, sdkmath.Int{}, ErrZeroLeverage
	}
	newComplement = utils.BDiv(leveraged, newPrimary)
	if newComplement.IsZero() {
		return sdkmath.Int{}, sdkmath.Int{}, ErrZeroLeverage
	}
	return newPrimary, newComplement, nil
}

// SqrtWrapped exposes the fixed-point Babylonian square root over
// BONE-scaled values. Deterministic, total for zero and the maximum
// representable input, within one unit of the true root.
func (r *Repricer) SqrtWrapped(v sdkmath.Int) (sdkmath.Int, error) {
	return utils.BSqrt(v)
}
