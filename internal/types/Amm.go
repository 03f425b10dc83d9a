/*

Core identifier and observation types shared by the oracle, pool and
controller packages.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Account identifies a party on the ledger (LP, trader, controller, sink).
type Account string

// ZeroAccount is the rejected null identity.
const ZeroAccount Account = ""

type IndexID uint64

type PoolID uint64

type StableCoinID uint64

// PriceObservation is one oracle datapoint. Observations are append-only.
type PriceObservation struct {
	Timestamp time.Time   `json:"timestamp"`
	Price     sdkmath.Int `json:"price"`      // price-precision (1e6) units
	ProofHash string      `json:"proof_hash"` // provenance of the reported value
}

// VolatilityIndex is a tracked volatility series. CapRatio is immutable
// after creation and every recorded price satisfies 0 < price < CapRatio.
type VolatilityIndex struct {
	ID       IndexID     `json:"id"`
	Symbol   string      `json:"symbol"`
	CapRatio sdkmath.Int `json:"cap_ratio"` // price-precision (1e6) units
}
