/*

Minting protocol collaborator: collateralizes a stable backing asset into
paired volatility / inverse-volatility claim tokens 1:1 and redeems the
symmetric pair back into collateral. The pool and controller only depend
on the Minter interface; this package also provides the in-process
reference implementation used by the daemon and the tests. The exact
collateral-at-settlement math is out of scope here; settlement only gates
further issuance and disables pool swaps.

*/

package protocol

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/logger"
	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

// MaxProtocolFee bounds issuance and redeem fees, in basis points.
const MaxProtocolFee = 100

var (
	ErrNotOwner           = errors.New("protocol: caller is not owner")
	ErrSettled            = errors.New("protocol: already settled")
	ErrBelowMinCollateral = errors.New("protocol: collateral quantity less than minimum required")
	ErrFeeTooHigh         = errors.New("protocol: fee should be smaller than 100 bps")
	ErrInvalidAmount      = errors.New("protocol: amount must be positive")
)

var protocolLogger = logger.GetForComponent("protocol")

// Minter is the call contract the core depends on.
type Minter interface {
	Collateral() *token.Token
	VolatilityToken() *token.Token
	InverseVolatilityToken() *token.Token
	MinimumCollateralQty() sdkmath.Int
	VolatilityCapRatio() uint64
	Collateralize(from types.Account, collateralQty sdkmath.Int) (claimQty sdkmath.Int, fee sdkmath.Int, err error)
	Redeem(from types.Account, claimQty sdkmath.Int) (collateralQty sdkmath.Int, fee sdkmath.Int, err error)
	CollateralToClaim(collateralQty sdkmath.Int) (claimQty sdkmath.Int, fee sdkmath.Int)
	ClaimToCollateral(claimQty sdkmath.Int) (collateralQty sdkmath.Int, fee sdkmath.Int)
	IsSettled() bool
	SettlePrice() sdkmath.Int
}

// Protocol is the reference Minter. A precisionRatio of 1 serves
// 18-decimal collateral; low-decimal collateral (USDC-style) passes the
// multiplier that lifts collateral units to claim-token units.
type Protocol struct {
	owner   types.Account
	account types.Account // ledger account holding locked collateral

	collateral        *token.Token
	volatility        *token.Token
	inverseVolatility *token.Token

	minCollateralQty sdkmath.Int
	capRatio         uint64
	precisionRatio   sdkmath.Int

	issuanceFeeBps uint64
	redeemFeeBps   uint64

	settled     bool
	settlePrice sdkmath.Int
}

// Config seeds a protocol instance.
type Config struct {
	Owner                types.Account
	Account              types.Account
	Collateral           *token.Token
	Volatility           *token.Token
	InverseVolatility    *token.Token
	MinimumCollateralQty sdkmath.Int
	VolatilityCapRatio   uint64
	// PrecisionRatio lifts collateral units to claim units; zero or one
	// means the collateral already has claim-token precision.
	PrecisionRatio sdkmath.Int
}

func New(cfg Config) (*Protocol, error) {
	if cfg.Collateral == nil || cfg.Volatility == nil || cfg.InverseVolatility == nil {
		return nil, errors.New("protocol: token handles can't be nil")
	}
	if cfg.Owner == types.ZeroAccount || cfg.Account == types.ZeroAccount {
		return nil, errors.New("protocol: owner and account are required")
	}
	if cfg.VolatilityCapRatio == 0 {
		return nil, errors.New("protocol: volatility cap ratio must be positive")
	}
	precision := cfg.PrecisionRatio
	if precision.IsNil() || precision.IsZero() {
		precision = sdkmath.OneInt()
	}
	return &Protocol{
		owner:             cfg.Owner,
		account:           cfg.Account,
		collateral:        cfg.Collateral,
		volatility:        cfg.Volatility,
		inverseVolatility: cfg.InverseVolatility,
		minCollateralQty:  cfg.MinimumCollateralQty,
		capRatio:          cfg.VolatilityCapRatio,
		precisionRatio:    precision,
		settlePrice:       sdkmath.ZeroInt(),
	}, nil
}

func (p *Protocol) Collateral() *token.Token             { return p.collateral }
func (p *Protocol) VolatilityToken() *token.Token        { return p.volatility }
func (p *Protocol) InverseVolatilityToken() *token.Token { return p.inverseVolatility }
func (p *Protocol) MinimumCollateralQty() sdkmath.Int    { return p.minCollateralQty }
func (p *Protocol) VolatilityCapRatio() uint64           { return p.capRatio }
func (p *Protocol) IsSettled() bool                      { return p.settled }
func (p *Protocol) SettlePrice() sdkmath.Int             { return p.settlePrice }

// UpdateFees sets issuance and redeem fees in basis points.
func (p *Protocol) UpdateFees(from types.Account, issuanceBps, redeemBps uint64) error {
	if from != p.owner {
		return ErrNotOwner
	}
	if issuanceBps > MaxProtocolFee || redeemBps > MaxProtocolFee {
		return ErrFeeTooHigh
	}
	p.issuanceFeeBps = issuanceBps
	p.redeemFeeBps = redeemBps
	return nil
}

// CollateralToClaim quotes the claim quantity Collateralize would mint
// for the given collateral, without moving funds.
func (p *Protocol) CollateralToClaim(collateralQty sdkmath.Int) (sdkmath.Int, sdkmath.Int) {
	fee := collateralQty.MulRaw(int64(p.issuanceFeeBps)).QuoRaw(10_000)
	claimQty := collateralQty.Sub(fee).Mul(p.precisionRatio).QuoRaw(int64(p.capRatio))
	return claimQty, fee
}

// ClaimToCollateral quotes the collateral Redeem would release for the
// given claim quantity, without moving funds.
func (p *Protocol) ClaimToCollateral(claimQty sdkmath.Int) (sdkmath.Int, sdkmath.Int) {
	gross := claimQty.MulRaw(int64(p.capRatio)).Quo(p.precisionRatio)
	fee := gross.MulRaw(int64(p.redeemFeeBps)).QuoRaw(10_000)
	return gross.Sub(fee), fee
}

// Collateralize locks collateral from the caller and mints both claim
// tokens in equal quantity: claimQty = net collateral, scaled to claim
// precision, divided by the cap ratio.
func (p *Protocol) Collateralize(from types.Account, collateralQty sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if p.settled {
		return sdkmath.Int{}, sdkmath.Int{}, ErrSettled
	}
	if collateralQty.IsNil() || !collateralQty.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, ErrInvalidAmount
	}
	if collateralQty.LT(p.minCollateralQty) {
		return sdkmath.Int{}, sdkmath.Int{}, ErrBelowMinCollateral
	}
	if err := p.collateral.Transfer(from, p.account, collateralQty); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	claimQty, fee := p.CollateralToClaim(collateralQty)

	if err := p.volatility.Mint(from, claimQty); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := p.inverseVolatility.Mint(from, claimQty); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	protocolLogger.Debug().
		Str("from", string(from)).
		Str("collateral", collateralQty.String()).
		Str("claimQty", claimQty.String()).
		Msg("Collateralized")
	return claimQty, fee, nil
}

// Redeem burns an equal quantity of both claim tokens and releases the
// backing collateral. Redemption stays open after settlement so positions
// can unwind.
func (p *Protocol) Redeem(from types.Account, claimQty sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if claimQty.IsNil() || !claimQty.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, ErrInvalidAmount
	}
	if err := p.volatility.Burn(from, claimQty); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := p.inverseVolatility.Burn(from, claimQty); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	net, fee := p.ClaimToCollateral(claimQty)

	if err := p.collateral.Transfer(p.account, from, net); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return net, fee, nil
}

// Settle records the settlement price and permanently stops issuance.
// Pools bound to this protocol refuse swaps from this point on.
func (p *Protocol) Settle(from types.Account, settlePrice sdkmath.Int) error {
	if from != p.owner {
		return ErrNotOwner
	}
	if p.settled {
		return ErrSettled
	}
	if settlePrice.IsNil() || settlePrice.IsNegative() {
		return ErrInvalidAmount
	}
	p.settled = true
	p.settlePrice = settlePrice
	protocolLogger.Info().Str("price", settlePrice.String()).Msg("Protocol settled")
	return nil
}
