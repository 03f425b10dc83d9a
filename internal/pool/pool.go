/*

Bonding-curve engine for one volatility / inverse-volatility pair.

The pool owns two claim-token reserves with per-side leverage factors,
issues its own fungible share token to liquidity providers, and prices
swaps on a constant product over leveraged balances with a dynamic fee.
Lifecycle: Unfinalized -> Finalized -> Settled (terminal, driven by the
bound minting protocol). All state-mutating entry points are gated to the
registered controller.

*/

package pool

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/volmexfinance/volmex-amm/internal/logger"
	"github.com/volmexfinance/volmex-amm/internal/repricer"
	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
	"github.com/volmexfinance/volmex-amm/internal/utils"
)

const (
	// MaxAdminFee caps the admin share of trading fees, in basis points.
	MaxAdminFee = 10_000
	// MaxFlashLoanPremium caps the flash-loan premium, in basis points.
	MaxFlashLoanPremium = 1_000
)

var (
	ErrNotController      = errors.New("pool: caller is not controller")
	ErrNotFinalized       = errors.New("pool: pool is not finalized")
	ErrFinalized          = errors.New("pool: pool is finalized")
	ErrSettled            = errors.New("pool: protocol is settled")
	ErrPaused             = errors.New("pool: pool is paused")
	ErrSameToken          = errors.New("pool: passed same token addresses")
	ErrUnknownToken       = errors.New("pool: token is not bound to pool")
	ErrAmountTooSmall     = errors.New("pool: amount in quantity should be larger")
	ErrMaxInRatio         = errors.New("pool: amount in max ratio exploit")
	ErrAmountInLimit      = errors.New("pool: amount in limit exploit")
	ErrAmountOutLimit     = errors.New("pool: amount out limit exploit")
	ErrInvalidApprox      = errors.New("pool: invalid math approximation")
	ErrExposureBoundary   = errors.New("pool: exposure boundary exploit")
	ErrCurveBoundary      = errors.New("pool: boundary exploit")
	ErrAsymmetricBalance  = errors.New("pool: assets balance should be same")
	ErrBaseFeeUnset       = errors.New("pool: baseFee should be larger than 0")
	ErrZeroLeverageSeed   = errors.New("pool: leverage should be larger than 0")
	ErrBelowMinBalance    = errors.New("pool: balance should be larger than qMin")
	ErrAdminFeeBound      = errors.New("pool: fee should be smaller than 10000")
	ErrPremiumBound       = errors.New("pool: premium should be smaller than 1000")
	ErrUnsupportedHandle  = errors.New("pool: handle does not support required interface")
	ErrFlashLoanNotRepaid = errors.New("pool: flash loan not repaid with premium")
)

// RepriceSource is the slice of the repricer the pool consumes, checked
// non-nil at construction.
type RepriceSource interface {
	Reprice(id types.IndexID) (repricer.Result, error)
	LeverageAfterReprice(balancePrimary, balanceComplement, leveragePrimary, leverageComplement, priceRatio sdkmath.Int) (sdkmath.Int, sdkmath.Int, error)
}

// Minter is the slice of the minting protocol the pool consults: the two
// claim-token identities and the settlement state that disables swaps.
type Minter interface {
	VolatilityToken() *token.Token
	InverseVolatilityToken() *token.Token
	VolatilityCapRatio() uint64
	IsSettled() bool
}

// ControllerHandle is the capability a controller must present to be
// registered on a pool. Validated at registration, never re-checked later.
type ControllerHandle interface {
	Account() types.Account
	Treasury() types.Account
}

// Record is one side's reserve state.
type Record struct {
	Balance  sdkmath.Int // claim-token units held as reserve
	Leverage sdkmath.Int // BONE-scaled weight multiplier
}

type Pool struct {
	id      types.PoolID
	account types.Account
	owner   types.Account
	feeSink types.Account
	log     zerolog.Logger

	repricer RepriceSource
	minter   Minter
	recorder types.Recorder

	mu sync.Mutex

	volatilityIndex types.IndexID

	baseFee          sdkmath.Int // BONE-scaled
	maxFee           sdkmath.Int // BONE-scaled
	feeAmpPrimary    sdkmath.Int // plain multiplier
	feeAmpComplement sdkmath.Int
	adminFeeBps      uint64
	flashPremiumBps  uint64

	qMin                    sdkmath.Int
	pMin                    sdkmath.Int
	exposureLimitPrimary    sdkmath.Int
	exposureLimitComplement sdkmath.Int

	primary    Record
	complement Record

	finalized     bool
	paused        bool
	controller    types.Account
	hasController bool

	share *token.Token
}

// Config seeds an unfinalized pool bound to one minting protocol.
type Config struct {
	ID              types.PoolID
	Account         types.Account
	Owner           types.Account
	FeeSink         types.Account
	Repricer        RepriceSource
	Minter          Minter
	VolatilityIndex types.IndexID
	Recorder        types.Recorder
	ShareName       string
	ShareSymbol     string
}

func New(cfg Config) (*Pool, error) {
	if cfg.Repricer == nil {
		return nil, fmt.Errorf("%w: repricer", ErrUnsupportedHandle)
	}
	if cfg.Minter == nil {
		return nil, fmt.Errorf("%w: protocol", ErrUnsupportedHandle)
	}
	if cfg.Account == types.ZeroAccount || cfg.Owner == types.ZeroAccount {
		return nil, errors.New("pool: account and owner are required")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = types.NopRecorder{}
	}
	if cfg.FeeSink == types.ZeroAccount {
		cfg.FeeSink = cfg.Owner
	}
	if cfg.ShareName == "" {
		cfg.ShareName = "Volmex Pool Share"
	}
	if cfg.ShareSymbol == "" {
		cfg.ShareSymbol = "VPLP"
	}
	return &Pool{
		id:                      cfg.ID,
		account:                 cfg.Account,
		owner:                   cfg.Owner,
		feeSink:                 cfg.FeeSink,
		log:                     logger.GetForComponent(fmt.Sprintf("pool-%d", cfg.ID)),
		repricer:                cfg.Repricer,
		minter:                  cfg.Minter,
		recorder:                cfg.Recorder,
		volatilityIndex:         cfg.VolatilityIndex,
		baseFee:                 sdkmath.ZeroInt(),
		maxFee:                  sdkmath.ZeroInt(),
		feeAmpPrimary:           sdkmath.ZeroInt(),
		feeAmpComplement:        sdkmath.ZeroInt(),
		qMin:                    sdkmath.ZeroInt(),
		pMin:                    sdkmath.ZeroInt(),
		exposureLimitPrimary:    sdkmath.ZeroInt(),
		exposureLimitComplement: sdkmath.ZeroInt(),
		primary:                 Record{Balance: sdkmath.ZeroInt(), Leverage: sdkmath.ZeroInt()},
		complement:              Record{Balance: sdkmath.ZeroInt(), Leverage: sdkmath.ZeroInt()},
		share:                   token.New(cfg.ShareName, cfg.ShareSymbol, 18),
	}, nil
}

func (p *Pool) ID() types.PoolID       { return p.id }
func (p *Pool) Account() types.Account { return p.account }
func (p *Pool) Share() *token.Token    { return p.share }

// Tokens returns the primary and complement claim-token ledgers.
func (p *Pool) Tokens() (primary, complement *token.Token) {
	return p.minter.VolatilityToken(), p.minter.InverseVolatilityToken()
}

func (p *Pool) Finalized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalized
}

func (p *Pool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Pool) Controller() types.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controller
}

func (p *Pool) VolatilityIndex() types.IndexID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volatilityIndex
}

func (p *Pool) AdminFee() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adminFeeBps
}

func (p *Pool) FlashLoanPremium() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flashPremiumBps
}

// GetBalance returns the reserve balance for a bound claim token.
func (p *Pool) GetBalance(symbol string) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, _, err := p.record(symbol)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return rec.Balance, nil
}

// GetLeverage returns the leverage factor for a bound claim token.
func (p *Pool) GetLeverage(symbol string) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, _, err := p.record(symbol)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return rec.Leverage, nil
}

// SetController registers the controller capability. The first
// registration is owner-gated; reassignment requires the current
// controller.
func (p *Pool) SetController(from types.Account, handle ControllerHandle) error {
	if handle == nil || handle.Account() == types.ZeroAccount {
		return fmt.Errorf("%w: controller", ErrUnsupportedHandle)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasController {
		if from != p.controller {
			return ErrNotController
		}
	} else if from != p.owner {
		return ErrNotController
	}
	p.controller = handle.Account()
	p.hasController = true
	p.recorder.Record(types.ControllerSet{Pool: p.id, Controller: p.controller})
	return nil
}

// SetFeeParams configures the trading fee curve. Allowed only before
// finalize; a zero base fee keeps the pool unfinalizable.
func (p *Pool) SetFeeParams(from types.Account, baseFee, maxFee, feeAmpPrimary, feeAmpComplement sdkmath.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	if p.finalized {
		return ErrFinalized
	}
	p.baseFee = baseFee
	p.maxFee = maxFee
	p.feeAmpPrimary = feeAmpPrimary
	p.feeAmpComplement = feeAmpComplement
	return nil
}

// Finalize seeds the pool with strictly symmetric reserves, fixes the risk
// bounds, and mints the initial share supply to the receiver. One-way.
func (p *Pool) Finalize(
	from types.Account,
	primaryBalance, primaryLeverage sdkmath.Int,
	complementBalance, complementLeverage sdkmath.Int,
	exposureLimitPrimary, exposureLimitComplement sdkmath.Int,
	pMin, qMin sdkmath.Int,
	receiver types.Account,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	if p.finalized {
		return ErrFinalized
	}
	if !p.baseFee.IsPositive() {
		return ErrBaseFeeUnset
	}
	if !primaryBalance.Equal(complementBalance) {
		return ErrAsymmetricBalance
	}
	if primaryBalance.LT(qMin) {
		return ErrBelowMinBalance
	}
	if !primaryLeverage.IsPositive() || !complementLeverage.IsPositive() {
		return ErrZeroLeverageSeed
	}

	vol, inverse := p.Tokens()
	if err := vol.Transfer(from, p.account, primaryBalance); err != nil {
		return err
	}
	if err := inverse.Transfer(from, p.account, complementBalance); err != nil {
		return err
	}

	p.primary = Record{Balance: primaryBalance, Leverage: primaryLeverage}
	p.complement = Record{Balance: complementBalance, Leverage: complementLeverage}
	p.exposureLimitPrimary = exposureLimitPrimary
	p.exposureLimitComplement = exposureLimitComplement
	p.pMin = pMin
	p.qMin = qMin
	p.finalized = true

	// Initial share supply scales the seed balance by the pair's cap
	// ratio so share units stay comparable across pools.
	initialSupply := primaryBalance.MulRaw(int64(p.minter.VolatilityCapRatio()))
	if err := p.share.Mint(receiver, initialSupply); err != nil {
		return err
	}

	p.log.Info().
		Str("balance", primaryBalance.String()).
		Str("shares", initialSupply.String()).
		Msg("Pool finalized")
	return nil
}

// JoinPool mints shares to the recipient against proportional deposits of
// both claim tokens, pulled from the caller. Required amounts round up.
func (p *Pool) JoinPool(from types.Account, shares sdkmath.Int, maxAmountsIn []sdkmath.Int, recipient types.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	if !p.finalized {
		return ErrNotFinalized
	}
	if len(maxAmountsIn) != 2 {
		return fmt.Errorf("pool: expected two amount caps, got %d", len(maxAmountsIn))
	}
	totalShares := p.share.TotalSupply()
	if shares.IsNil() || !shares.IsPositive() || shares.Mul(utils.BONE).Quo(totalShares).IsZero() {
		return ErrInvalidApprox
	}

	amountsIn := make([]sdkmath.Int, 2)
	records := []*Record{&p.primary, &p.complement}
	for i, rec := range records {
		// ceil(shares * balance / totalShares); rounding favours the pool
		required := shares.Mul(rec.Balance).Add(totalShares.SubRaw(1)).Quo(totalShares)
		if required.GT(maxAmountsIn[i]) {
			return ErrAmountInLimit
		}
		amountsIn[i] = required
	}

	vol, inverse := p.Tokens()
	ledgers := []*token.Token{vol, inverse}
	for i, led := range ledgers {
		if err := led.Transfer(from, p.account, amountsIn[i]); err != nil {
			if i == 1 {
				// the first side is still sitting on the pool account;
				// hand it back before failing
				_ = ledgers[0].Transfer(p.account, from, amountsIn[0])
			}
			return err
		}
	}
	for i, rec := range records {
		rec.Balance = rec.Balance.Add(amountsIn[i])
	}
	if err := p.share.Mint(recipient, shares); err != nil {
		return err
	}

	p.log.Debug().
		Str("shares", shares.String()).
		Str("primaryIn", amountsIn[0].String()).
		Str("complementIn", amountsIn[1].String()).
		Msg("Joined pool")
	p.recorder.Record(types.Joined{
		Pool:      p.id,
		Recipient: recipient,
		Shares:    shares,
		AmountsIn: amountsIn,
	})
	return nil
}

// ExitPool burns shares held by the caller and pays proportional reserve
// amounts to the recipient. Amounts round down; exits stay open after
// protocol settlement so providers can unwind.
func (p *Pool) ExitPool(from types.Account, shares sdkmath.Int, minAmountsOut []sdkmath.Int, recipient types.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	if !p.finalized {
		return ErrNotFinalized
	}
	if len(minAmountsOut) != 2 {
		return fmt.Errorf("pool: expected two amount floors, got %d", len(minAmountsOut))
	}
	totalShares := p.share.TotalSupply()
	if shares.IsNil() || !shares.IsPositive() || shares.Mul(utils.BONE).Quo(totalShares).IsZero() {
		return ErrInvalidApprox
	}

	amountsOut := make([]sdkmath.Int, 2)
	records := []*Record{&p.primary, &p.complement}
	for i, rec := range records {
		amount := shares.Mul(rec.Balance).Quo(totalShares)
		if amount.LT(minAmountsOut[i]) {
			return ErrAmountOutLimit
		}
		// reserves never drop below the curve floor, which also keeps
		// the share supply away from zero
		if rec.Balance.Sub(amount).LT(p.qMin) {
			return ErrBelowMinBalance
		}
		amountsOut[i] = amount
	}

	if err := p.share.Burn(from, shares); err != nil {
		return err
	}
	vol, inverse := p.Tokens()
	ledgers := []*token.Token{vol, inverse}
	for i, led := range ledgers {
		if err := led.Transfer(p.account, recipient, amountsOut[i]); err != nil {
			return err
		}
		records[i].Balance = records[i].Balance.Sub(amountsOut[i])
	}

	p.log.Debug().
		Str("shares", shares.String()).
		Str("primaryOut", amountsOut[0].String()).
		Str("complementOut", amountsOut[1].String()).
		Msg("Exited pool")
	p.recorder.Record(types.Exited{
		Pool:       p.id,
		Recipient:  recipient,
		Shares:     shares,
		AmountsOut: amountsOut,
	})
	return nil
}

// JoinRequirements quotes the per-side deposits JoinPool would require
// for the given share amount, rounded up.
func (p *Pool) JoinRequirements(shares sdkmath.Int) ([]sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finalized {
		return nil, ErrNotFinalized
	}
	totalShares := p.share.TotalSupply()
	if shares.IsNil() || !shares.IsPositive() || shares.Mul(utils.BONE).Quo(totalShares).IsZero() {
		return nil, ErrInvalidApprox
	}
	out := make([]sdkmath.Int, 2)
	for i, rec := range []*Record{&p.primary, &p.complement} {
		out[i] = shares.Mul(rec.Balance).Add(totalShares.SubRaw(1)).Quo(totalShares)
	}
	return out, nil
}

// UpdateAdminFee sets the admin share of trading fees in basis points.
func (p *Pool) UpdateAdminFee(from types.Account, bps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	if bps > MaxAdminFee {
		return ErrAdminFeeBound
	}
	p.adminFeeBps = bps
	return nil
}

// UpdateFlashLoanPremium sets the flash-loan premium in basis points.
func (p *Pool) UpdateFlashLoanPremium(from types.Account, bps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	if bps >= MaxFlashLoanPremium {
		return ErrPremiumBound
	}
	p.flashPremiumBps = bps
	return nil
}

// UpdateVolatilityIndex repoints the pool at a different oracle index.
func (p *Pool) UpdateVolatilityIndex(from types.Account, id types.IndexID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	p.volatilityIndex = id
	return nil
}

// TogglePause flips the pool-level circuit breaker.
func (p *Pool) TogglePause(from types.Account, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireController(from); err != nil {
		return err
	}
	p.paused = paused
	return nil
}

func (p *Pool) requireController(from types.Account) error {
	if !p.hasController || from != p.controller {
		return ErrNotController
	}
	return nil
}

// record resolves a claim-token symbol to its reserve record. The second
// return reports whether the symbol is the primary side.
func (p *Pool) record(symbol string) (*Record, bool, error) {
	vol, inverse := p.minter.VolatilityToken(), p.minter.InverseVolatilityToken()
	switch symbol {
	case vol.Symbol():
		return &p.primary, true, nil
	case inverse.Symbol():
		return &p.complement, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
}
