package controller

import (
	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

// AddLiquidity joins a pool on the caller's behalf: the controller pulls
// exactly the quoted deposit for the requested share amount and the
// shares are minted straight to the caller.
func (c *Controller) AddLiquidity(from types.Account, poolIndex types.PoolID, shares sdkmath.Int, maxAmountsIn []sdkmath.Int) error {
	if err := c.requireLive(); err != nil {
		return err
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	required, err := p.JoinRequirements(shares)
	if err != nil {
		return err
	}
	vol, inverse := p.Tokens()
	for i, led := range []*token.Token{vol, inverse} {
		if err := led.TransferFrom(c.account, from, c.account, required[i]); err != nil {
			return err
		}
	}
	return p.JoinPool(c.account, shares, maxAmountsIn, from)
}

// RemoveLiquidity burns the caller's pool shares and pays the reserve
// amounts straight to the caller.
func (c *Controller) RemoveLiquidity(from types.Account, poolIndex types.PoolID, shares sdkmath.Int, minAmountsOut []sdkmath.Int) error {
	if err := c.requireLive(); err != nil {
		return err
	}
	p, err := c.Pool(poolIndex)
	if err != nil {
		return err
	}
	if err := p.Share().TransferFrom(c.account, from, c.account, shares); err != nil {
		return err
	}
	return p.ExitPool(c.account, shares, minAmountsOut, from)
}
