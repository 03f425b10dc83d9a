/*

Event types emitted by the core components, sufficient for off-chain
reconstruction of state without re-reading storage. A Recorder sink
receives every event; the postgres journal in internal/state is the
production sink and MemoryRecorder backs tests.

*/

package types

import (
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Recorder receives every event the core emits. Implementations must not
// fail the emitting operation; persistence errors are the sink's problem.
type Recorder interface {
	Record(event any)
}

type IndexAdded struct {
	Index    IndexID     `json:"index"`
	Symbol   string      `json:"symbol"`
	CapRatio sdkmath.Int `json:"cap_ratio"`
	Price    sdkmath.Int `json:"price"`
}

type BatchPriceUpdated struct {
	Indexes     []IndexID     `json:"indexes"`
	Prices      []sdkmath.Int `json:"prices"`
	ProofHashes []string      `json:"proof_hashes"`
	Timestamp   time.Time     `json:"timestamp"`
}

type SymbolIndexUpdated struct {
	Symbol string  `json:"symbol"`
	Index  IndexID `json:"index"`
}

type PoolAdded struct {
	Pool  PoolID `json:"pool"`
	Token string `json:"token"` // pool share symbol
}

type StableCoinAdded struct {
	StableCoin StableCoinID `json:"stable_coin"`
	Symbol     string       `json:"symbol"`
}

type ProtocolAdded struct {
	Pool       PoolID       `json:"pool"`
	StableCoin StableCoinID `json:"stable_coin"`
}

type ControllerSet struct {
	Pool       PoolID  `json:"pool"`
	Controller Account `json:"controller"`
}

type Joined struct {
	Pool      PoolID        `json:"pool"`
	Recipient Account       `json:"recipient"`
	Shares    sdkmath.Int   `json:"shares"`
	AmountsIn []sdkmath.Int `json:"amounts_in"`
}

type Exited struct {
	Pool       PoolID        `json:"pool"`
	Recipient  Account       `json:"recipient"`
	Shares     sdkmath.Int   `json:"shares"`
	AmountsOut []sdkmath.Int `json:"amounts_out"`
}

type Swapped struct {
	Pool           PoolID      `json:"pool"`
	TokenIn        string      `json:"token_in"`
	TokenOut       string      `json:"token_out"`
	AmountIn       sdkmath.Int `json:"amount_in"`
	AmountOut      sdkmath.Int `json:"amount_out"`
	Fee            sdkmath.Int `json:"fee"`         // BONE-scaled rate charged
	FeeAmountIn    sdkmath.Int `json:"fee_amount"`  // tokenIn retained as fee
	AdminFeeAmount sdkmath.Int `json:"admin_fee"`   // tokenIn diverted to the fee sink
	LeverageIn     sdkmath.Int `json:"leverage_in"` // post-trade leverages
	LeverageOut    sdkmath.Int `json:"leverage_out"`
	BalanceIn      sdkmath.Int `json:"balance_in"`  // post-trade reserves
	BalanceOut     sdkmath.Int `json:"balance_out"`
	Recipient      Account     `json:"recipient"`
}

type CollateralSwapped struct {
	Pool          PoolID       `json:"pool"`
	StableCoin    StableCoinID `json:"stable_coin"`
	CollateralIn  sdkmath.Int  `json:"collateral_in"`
	VolatilityOut sdkmath.Int  `json:"volatility_out"`
	Token         string       `json:"token"`
	Fee           sdkmath.Int  `json:"fee"`
	Recipient     Account      `json:"recipient"`
}

type VolatilitySwapped struct {
	Pool          PoolID       `json:"pool"`
	StableCoin    StableCoinID `json:"stable_coin"`
	VolatilityIn  sdkmath.Int  `json:"volatility_in"`
	CollateralOut sdkmath.Int  `json:"collateral_out"`
	Token         string       `json:"token"`
	Fee           sdkmath.Int  `json:"fee"`
	Recipient     Account      `json:"recipient"`
}

type PoolSwapped struct {
	PoolIn    PoolID      `json:"pool_in"`
	PoolOut   PoolID      `json:"pool_out"`
	TokenIn   string      `json:"token_in"`
	TokenOut  string      `json:"token_out"`
	AmountIn  sdkmath.Int `json:"amount_in"`
	AmountOut sdkmath.Int `json:"amount_out"`
	Recipient Account     `json:"recipient"`
}

type PoolTokensCollected struct {
	Pool   PoolID      `json:"pool"`
	Amount sdkmath.Int `json:"amount"`
}

type FlashLoaned struct {
	Pool     PoolID      `json:"pool"`
	Receiver Account     `json:"receiver"`
	Token    string      `json:"token"`
	Amount   sdkmath.Int `json:"amount"`
	Premium  sdkmath.Int `json:"premium"`
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) Record(any) {}

// MemoryRecorder keeps events in order, primarily for tests and the web
// dashboard's recent-activity view.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []any
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *MemoryRecorder) Events() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.events))
	copy(out, r.events)
	return out
}
