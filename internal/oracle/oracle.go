/*

Authoritative record of volatility index prices. Each index holds an
append-only series of price observations; the moving average over the
most recent datapoints (the "TWAP") is what the repricer consumes. All
prices are in 1e6 fixed-point units and every accepted observation
satisfies 0 < price < capRatio.

*/

package oracle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/logger"
	"github.com/volmexfinance/volmex-amm/internal/types"
	"github.com/volmexfinance/volmex-amm/internal/utils"
)

// DefaultTwapPoints is the trailing datapoint window for the moving
// average. The window is oracle-scoped: every index served by one oracle
// instance uses the same window, and the repricer depends on it staying
// fixed for the lifetime of the oracle.
const DefaultTwapPoints = 180

var (
	ErrNotOwner       = errors.New("oracle: caller is not owner")
	ErrNilProtocol    = errors.New("oracle: protocol handle can't be nil")
	ErrCapRatioTooLow = errors.New("oracle: volatility cap ratio should be greater than 1000000")
	ErrZeroPrice      = errors.New("oracle: volatility token price should be greater than 0")
	ErrPriceAboveCap  = errors.New("oracle: volatility token price should be smaller than cap ratio")
	ErrLengthMismatch = errors.New("oracle: length of input arrays are not equal")
	ErrUnknownIndex   = errors.New("oracle: unknown volatility index")
	ErrUnknownSymbol  = errors.New("oracle: unknown volatility symbol")
)

// ProtocolHandle is the slice of the minting protocol the oracle needs at
// index creation: the cap ratio the paired token prices may never reach.
type ProtocolHandle interface {
	// VolatilityCapRatio returns the cap in whole collateral units per
	// claim-token pair (e.g. 250); the oracle scales it to price units.
	VolatilityCapRatio() uint64
}

type index struct {
	meta         types.VolatilityIndex
	protocol     ProtocolHandle
	observations []types.PriceObservation
}

var oracleLogger = logger.GetForComponent("oracle")

// Oracle aggregates reported index prices. Mutations are owner-gated and
// atomic: a batch either records every observation or none.
type Oracle struct {
	owner      types.Account
	twapPoints int
	recorder   types.Recorder

	mu       sync.RWMutex
	indexes  []*index
	bySymbol map[string]types.IndexID
}

func New(owner types.Account, twapPoints int, recorder types.Recorder) *Oracle {
	if twapPoints <= 0 {
		twapPoints = DefaultTwapPoints
	}
	if recorder == nil {
		recorder = types.NopRecorder{}
	}
	return &Oracle{
		owner:      owner,
		twapPoints: twapPoints,
		recorder:   recorder,
		bySymbol:   make(map[string]types.IndexID),
	}
}

// AddIndex creates a new volatility index seeded with initialPrice. The
// cap ratio comes from the bound protocol handle and is immutable.
func (o *Oracle) AddIndex(from types.Account, initialPrice sdkmath.Int, protocol ProtocolHandle, symbol, proofHash string) (types.IndexID, error) {
	if from != o.owner {
		return 0, ErrNotOwner
	}
	if protocol == nil {
		return 0, ErrNilProtocol
	}
	capRatio := sdkmath.NewIntFromUint64(protocol.VolatilityCapRatio()).Mul(utils.PricePrecision)
	if capRatio.LT(utils.PricePrecision) {
		return 0, ErrCapRatioTooLow
	}
	if err := validatePrice(initialPrice, capRatio); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	id := types.IndexID(len(o.indexes))
	idx := &index{
		meta: types.VolatilityIndex{
			ID:       id,
			Symbol:   symbol,
			CapRatio: capRatio,
		},
		protocol: protocol,
		observations: []types.PriceObservation{{
			Timestamp: time.Now().UTC(),
			Price:     initialPrice,
			ProofHash: proofHash,
		}},
	}
	o.indexes = append(o.indexes, idx)
	o.bySymbol[symbol] = id

	oracleLogger.Info().
		Uint64("index", uint64(id)).
		Str("symbol", symbol).
		Str("capRatio", capRatio.String()).
		Str("price", initialPrice.String()).
		Msg("Volatility index added")
	o.recorder.Record(types.IndexAdded{
		Index:    id,
		Symbol:   symbol,
		CapRatio: capRatio,
		Price:    initialPrice,
	})
	return id, nil
}

// UpdateBatchPrices records one observation per listed index. The batch is
// validated in full before anything is written; a single bad entry aborts
// the whole call with no partial writes.
func (o *Oracle) UpdateBatchPrices(from types.Account, ids []types.IndexID, prices []sdkmath.Int, proofHashes []string) error {
	if from != o.owner {
		return ErrNotOwner
	}
	if len(ids) != len(prices) || len(ids) != len(proofHashes) {
		return ErrLengthMismatch
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, id := range ids {
		idx, err := o.lookup(id)
		if err != nil {
			return err
		}
		if err := validatePrice(prices[i], idx.meta.CapRatio); err != nil {
			return fmt.Errorf("index %d: %w", id, err)
		}
	}

	now := time.Now().UTC()
	for i, id := range ids {
		idx := o.indexes[id]
		idx.observations = append(idx.observations, types.PriceObservation{
			Timestamp: now,
			Price:     prices[i],
			ProofHash: proofHashes[i],
		})
	}

	oracleLogger.Debug().Int("count", len(ids)).Msg("Batch price update recorded")
	o.recorder.Record(types.BatchPriceUpdated{
		Indexes:     ids,
		Prices:      prices,
		ProofHashes: proofHashes,
		Timestamp:   now,
	})
	return nil
}

// UpdateIndexBySymbol remaps a symbol to a different index id. Pure
// bookkeeping; no price semantics.
func (o *Oracle) UpdateIndexBySymbol(from types.Account, symbol string, id types.IndexID) error {
	if from != o.owner {
		return ErrNotOwner
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.lookup(id); err != nil {
		return err
	}
	o.bySymbol[symbol] = id

	o.recorder.Record(types.SymbolIndexUpdated{Symbol: symbol, Index: id})
	return nil
}

// Twap returns the arithmetic mean of the most recent datapoints within
// the configured window (all datapoints when fewer exist). This is a
// moving average over recorded points, not a timestamp-weighted average.
func (o *Oracle) Twap(id types.IndexID) (sdkmath.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	idx, err := o.lookup(id)
	if err != nil {
		return sdkmath.Int{}, err
	}
	obs := idx.observations
	if len(obs) > o.twapPoints {
		obs = obs[len(obs)-o.twapPoints:]
	}
	sum := sdkmath.ZeroInt()
	for _, ob := range obs {
		sum = sum.Add(ob.Price)
	}
	return sum.Quo(sdkmath.NewInt(int64(len(obs)))), nil
}

// LatestRound returns the two most recent observations. With a single
// observation on record, previous falls back to that same observation.
func (o *Oracle) LatestRound(id types.IndexID) (latest, previous types.PriceObservation, err error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	idx, lerr := o.lookup(id)
	if lerr != nil {
		return types.PriceObservation{}, types.PriceObservation{}, lerr
	}
	obs := idx.observations
	latest = obs[len(obs)-1]
	previous = latest
	if len(obs) > 1 {
		previous = obs[len(obs)-2]
	}
	return latest, previous, nil
}

// CapRatio returns the immutable price cap of the index.
func (o *Oracle) CapRatio(id types.IndexID) (sdkmath.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	idx, err := o.lookup(id)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return idx.meta.CapRatio, nil
}

// PriceByIndex returns the latest recorded price and its complement
// (capRatio - price).
func (o *Oracle) PriceByIndex(id types.IndexID) (price, complement sdkmath.Int, err error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	idx, lerr := o.lookup(id)
	if lerr != nil {
		return sdkmath.Int{}, sdkmath.Int{}, lerr
	}
	price = idx.observations[len(idx.observations)-1].Price
	return price, idx.meta.CapRatio.Sub(price), nil
}

// PriceBySymbol is PriceByIndex keyed by the index symbol.
func (o *Oracle) PriceBySymbol(symbol string) (price, complement sdkmath.Int, err error) {
	o.mu.RLock()
	id, ok := o.bySymbol[symbol]
	o.mu.RUnlock()
	if !ok {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return o.PriceByIndex(id)
}

// IndexBySymbol resolves a symbol to its current index id.
func (o *Oracle) IndexBySymbol(symbol string) (types.IndexID, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	id, ok := o.bySymbol[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return id, nil
}

// Indexes returns metadata for every known index in creation order.
func (o *Oracle) Indexes() []types.VolatilityIndex {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]types.VolatilityIndex, len(o.indexes))
	for i, idx := range o.indexes {
		out[i] = idx.meta
	}
	return out
}

// Observations returns a copy of the full datapoint series for an index.
func (o *Oracle) Observations(id types.IndexID) ([]types.PriceObservation, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	idx, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]types.PriceObservation, len(idx.observations))
	copy(out, idx.observations)
	return out, nil
}

func (o *Oracle) lookup(id types.IndexID) (*index, error) {
	if int(id) >= len(o.indexes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownIndex, id)
	}
	return o.indexes[id], nil
}

func validatePrice(price, capRatio sdkmath.Int) error {
	if price.IsNil() || !price.IsPositive() {
		return ErrZeroPrice
	}
	if price.GTE(capRatio) {
		return ErrPriceAboveCap
	}
	return nil
}
