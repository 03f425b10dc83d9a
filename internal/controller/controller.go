/*

Router in front of the pools. The controller holds the registries of
pools, stablecoins and minting protocols, owns the only account the
pools accept calls from, and composes the multi-step swap paths
(collateral to volatility and back, two-hop pool-to-pool) out of the
protocol and pool primitives. Users approve the controller on the
relevant ledgers; it pulls exactly what an operation needs and delivers
proceeds directly to the caller.

*/

package controller

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/volmexfinance/volmex-amm/internal/logger"
	"github.com/volmexfinance/volmex-amm/internal/pool"
	"github.com/volmexfinance/volmex-amm/internal/protocol"
	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

var (
	ErrNotOwner        = errors.New("controller: caller is not owner")
	ErrNotPool         = errors.New("controller: caller is not pool")
	ErrPaused          = errors.New("controller: paused")
	ErrUnknownPool     = errors.New("controller: pool index out of range")
	ErrUnknownStable   = errors.New("controller: stablecoin index out of range")
	ErrNoProtocol      = errors.New("controller: protocol not registered for pair")
	ErrTokenMismatch   = errors.New("controller: token is not bound to pool")
	ErrInsufficientOut = errors.New("controller: insufficient amount out")
	ErrNilHandle       = errors.New("controller: handle can't be nil")
)

type pairKey struct {
	pool   types.PoolID
	stable types.StableCoinID
}

type Controller struct {
	owner    types.Account
	account  types.Account
	treasury types.Account
	recorder types.Recorder
	log      zerolog.Logger

	mu          sync.Mutex
	pools       []*pool.Pool
	stableCoins []*token.Token
	protocols   map[pairKey]protocol.Minter
	paused      bool
}

// Config seeds a controller. Treasury defaults to the owner.
type Config struct {
	Owner    types.Account
	Account  types.Account
	Treasury types.Account
	Recorder types.Recorder
}

func New(cfg Config) (*Controller, error) {
	if cfg.Owner == types.ZeroAccount || cfg.Account == types.ZeroAccount {
		return nil, errors.New("controller: owner and account are required")
	}
	if cfg.Treasury == types.ZeroAccount {
		cfg.Treasury = cfg.Owner
	}
	if cfg.Recorder == nil {
		cfg.Recorder = types.NopRecorder{}
	}
	return &Controller{
		owner:     cfg.Owner,
		account:   cfg.Account,
		treasury:  cfg.Treasury,
		recorder:  cfg.Recorder,
		log:       logger.GetForComponent("controller"),
		protocols: make(map[pairKey]protocol.Minter),
	}, nil
}

// Account and Treasury satisfy the capability the pools validate when the
// controller is registered on them.
func (c *Controller) Account() types.Account  { return c.account }
func (c *Controller) Treasury() types.Account { return c.treasury }

// AddPool appends a pool to the registry and returns its index. The pool
// must already have this controller registered on it.
func (c *Controller) AddPool(from types.Account, p *pool.Pool) (types.PoolID, error) {
	if from != c.owner {
		return 0, ErrNotOwner
	}
	if p == nil {
		return 0, fmt.Errorf("%w: pool", ErrNilHandle)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := types.PoolID(len(c.pools))
	c.pools = append(c.pools, p)
	c.recorder.Record(types.PoolAdded{Pool: id, Token: p.Share().Symbol()})
	c.log.Info().Uint64("pool", uint64(id)).Str("share", p.Share().Symbol()).Msg("Pool registered")
	return id, nil
}

// AddStableCoin appends a stablecoin ledger to the registry and returns
// its index.
func (c *Controller) AddStableCoin(from types.Account, st *token.Token) (types.StableCoinID, error) {
	if from != c.owner {
		return 0, ErrNotOwner
	}
	if st == nil {
		return 0, fmt.Errorf("%w: stablecoin", ErrNilHandle)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := types.StableCoinID(len(c.stableCoins))
	c.stableCoins = append(c.stableCoins, st)
	c.recorder.Record(types.StableCoinAdded{StableCoin: id, Symbol: st.Symbol()})
	return id, nil
}

// AddProtocol binds a minting protocol to a (pool, stablecoin) pair. The
// protocol's collateral must be the registered stablecoin and its claim
// tokens must be the pool's pair.
func (c *Controller) AddProtocol(from types.Account, poolIndex types.PoolID, stableIndex types.StableCoinID, m protocol.Minter) error {
	if from != c.owner {
		return ErrNotOwner
	}
	if m == nil {
		return fmt.Errorf("%w: protocol", ErrNilHandle)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.poolAt(poolIndex)
	if err != nil {
		return err
	}
	st, err := c.stableAt(stableIndex)
	if err != nil {
		return err
	}
	if m.Collateral().Symbol() != st.Symbol() {
		return fmt.Errorf("%w: collateral %s is not stablecoin %s", ErrTokenMismatch, m.Collateral().Symbol(), st.Symbol())
	}
	vol, inverse := p.Tokens()
	if m.VolatilityToken().Symbol() != vol.Symbol() || m.InverseVolatilityToken().Symbol() != inverse.Symbol() {
		return fmt.Errorf("%w: protocol claim tokens do not match pool", ErrTokenMismatch)
	}
	c.protocols[pairKey{poolIndex, stableIndex}] = m
	c.recorder.Record(types.ProtocolAdded{Pool: poolIndex, StableCoin: stableIndex})
	return nil
}

// Pool returns the registered pool at the given index.
func (c *Controller) Pool(index types.PoolID) (*pool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poolAt(index)
}

// StableCoin returns the registered stablecoin ledger at the given index.
func (c *Controller) StableCoin(index types.StableCoinID) (*token.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stableAt(index)
}

// Protocol returns the minting protocol bound to a (pool, stablecoin)
// pair.
func (c *Controller) Protocol(poolIndex types.PoolID, stableIndex types.StableCoinID) (protocol.Minter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolAt(poolIndex, stableIndex)
}

// Pools returns the number of registered pools.
func (c *Controller) Pools() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pools)
}

// FinalizePool seeds a registered pool. The seed claim tokens are pulled
// from the caller; the initial shares are minted back to the caller.
func (c *Controller) FinalizePool(
	from types.Account,
	poolIndex types.PoolID,
	primaryBalance, primaryLeverage sdkmath.Int,
	complementBalance, complementLeverage sdkmath.Int,
	exposureLimitPrimary, exposureLimitComplement sdkmath.Int,
	pMin, qMin sdkmath.Int,
) error {
	if from != c.owner {
		return ErrNotOwner
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	vol, inverse := p.Tokens()
	if err := vol.TransferFrom(c.account, from, c.account, primaryBalance); err != nil {
		return err
	}
	if err := inverse.TransferFrom(c.account, from, c.account, complementBalance); err != nil {
		return err
	}
	return p.Finalize(c.account,
		primaryBalance, primaryLeverage,
		complementBalance, complementLeverage,
		exposureLimitPrimary, exposureLimitComplement,
		pMin, qMin, from)
}

// SetPoolFeeParams forwards the fee curve configuration to a pool.
func (c *Controller) SetPoolFeeParams(from types.Account, poolIndex types.PoolID, baseFee, maxFee, feeAmpPrimary, feeAmpComplement sdkmath.Int) error {
	if from != c.owner {
		return ErrNotOwner
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	return p.SetFeeParams(c.account, baseFee, maxFee, feeAmpPrimary, feeAmpComplement)
}

// UpdatePoolAdminFee forwards an admin-fee update to a pool.
func (c *Controller) UpdatePoolAdminFee(from types.Account, poolIndex types.PoolID, bps uint64) error {
	if from != c.owner {
		return ErrNotOwner
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	return p.UpdateAdminFee(c.account, bps)
}

// UpdatePoolFlashLoanPremium forwards a flash-loan premium update.
func (c *Controller) UpdatePoolFlashLoanPremium(from types.Account, poolIndex types.PoolID, bps uint64) error {
	if from != c.owner {
		return ErrNotOwner
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	return p.UpdateFlashLoanPremium(c.account, bps)
}

// UpdatePoolVolatilityIndex repoints a pool at a different oracle index.
func (c *Controller) UpdatePoolVolatilityIndex(from types.Account, poolIndex types.PoolID, id types.IndexID) error {
	if from != c.owner {
		return ErrNotOwner
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	return p.UpdateVolatilityIndex(c.account, id)
}

// TogglePause flips the controller-wide circuit breaker. Swap and
// liquidity paths refuse while paused.
func (c *Controller) TogglePause(from types.Account, paused bool) error {
	if from != c.owner {
		return ErrNotOwner
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
	c.log.Info().Bool("paused", paused).Msg("Controller pause toggled")
	return nil
}

// TogglePoolPause flips one pool's circuit breaker.
func (c *Controller) TogglePoolPause(from types.Account, poolIndex types.PoolID, paused bool) error {
	if from != c.owner {
		return ErrNotOwner
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	return p.TogglePause(c.account, paused)
}

// Collect sweeps pool shares stranded on the controller account to the
// treasury.
func (c *Controller) Collect(from types.Account, poolIndex types.PoolID) error {
	if from != c.owner {
		return ErrNotOwner
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	amount := p.Share().BalanceOf(c.account)
	if !amount.IsPositive() {
		return nil
	}
	if err := p.Share().Transfer(c.account, c.treasury, amount); err != nil {
		return err
	}
	c.recorder.Record(types.PoolTokensCollected{Pool: poolIndex, Amount: amount})
	c.log.Info().Uint64("pool", uint64(poolIndex)).Str("amount", amount.String()).Msg("Pool shares collected")
	return nil
}

// TransferAssetToPool moves a claim-token amount held by the controller
// into a registered pool's account. Only registered pools may call it;
// it is the hand-off step of the two-hop swap path.
func (c *Controller) TransferAssetToPool(from types.Account, poolIndex types.PoolID, symbol string, amount sdkmath.Int) error {
	if !c.isPoolAccount(from) {
		return ErrNotPool
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	ledger, _, err := c.poolLedger(p, symbol)
	if err != nil {
		return err
	}
	return ledger.Transfer(c.account, p.Account(), amount)
}

func (c *Controller) isPoolAccount(acct types.Account) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pools {
		if p.Account() == acct {
			return true
		}
	}
	return false
}

// poolAt, stableAt and protocolAt require c.mu held.
func (c *Controller) poolAt(index types.PoolID) (*pool.Pool, error) {
	if int(index) >= len(c.pools) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPool, index)
	}
	return c.pools[index], nil
}

func (c *Controller) stableAt(index types.StableCoinID) (*token.Token, error) {
	if int(index) >= len(c.stableCoins) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStable, index)
	}
	return c.stableCoins[index], nil
}

func (c *Controller) protocolAt(poolIndex types.PoolID, stableIndex types.StableCoinID) (protocol.Minter, error) {
	m, ok := c.protocols[pairKey{poolIndex, stableIndex}]
	if !ok {
		return nil, fmt.Errorf("%w: pool %d stablecoin %d", ErrNoProtocol, poolIndex, stableIndex)
	}
	return m, nil
}

// poolLedger resolves a symbol against a pool's claim-token pair,
// returning the matching ledger and the opposite side's symbol.
func (c *Controller) poolLedger(p *pool.Pool, symbol string) (*token.Token, string, error) {
	vol, inverse := p.Tokens()
	switch symbol {
	case vol.Symbol():
		return vol, inverse.Symbol(), nil
	case inverse.Symbol():
		return inverse, vol.Symbol(), nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrTokenMismatch, symbol)
}

func (c *Controller) requireLive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return ErrPaused
	}
	return nil
}
