/*

In-process fungible-token ledger with standard transfer/approve semantics.
Claim tokens, stablecoins and pool shares are all instances of Token; the
pool and controller never mint or burn claim tokens directly, only the
minting protocol does.

*/

package token

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/types"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: amount must not be negative")
	ErrZeroAccount           = errors.New("token: zero account")
)

// Token is a single fungible asset ledger.
type Token struct {
	name     string
	symbol   string
	decimals uint8

	mu          sync.RWMutex
	balances    map[types.Account]sdkmath.Int
	allowances  map[types.Account]map[types.Account]sdkmath.Int
	totalSupply sdkmath.Int
}

func New(name, symbol string, decimals uint8) *Token {
	return &Token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		balances:    make(map[types.Account]sdkmath.Int),
		allowances:  make(map[types.Account]map[types.Account]sdkmath.Int),
		totalSupply: sdkmath.ZeroInt(),
	}
}

func (t *Token) Name() string    { return t.name }
func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

func (t *Token) TotalSupply() sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply
}

func (t *Token) BalanceOf(account types.Account) sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[account]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

func (t *Token) Allowance(owner, spender types.Account) sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if byOwner, ok := t.allowances[owner]; ok {
		if allowed, ok := byOwner[spender]; ok {
			return allowed
		}
	}
	return sdkmath.ZeroInt()
}

// Mint credits newly issued units to account.
func (t *Token) Mint(account types.Account, amount sdkmath.Int) error {
	if err := validate(account, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(account, amount)
	t.totalSupply = t.totalSupply.Add(amount)
	return nil
}

// Burn destroys units held by account.
func (t *Token) Burn(account types.Account, amount sdkmath.Int) error {
	if err := validate(account, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(account, amount); err != nil {
		return err
	}
	t.totalSupply = t.totalSupply.Sub(amount)
	return nil
}

func (t *Token) Transfer(from, to types.Account, amount sdkmath.Int) error {
	if err := validate(from, amount); err != nil {
		return err
	}
	if to == types.ZeroAccount {
		return ErrZeroAccount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

// TransferFrom moves amount from the owner to the recipient on behalf of
// spender, consuming allowance unless the spender is the owner.
func (t *Token) TransferFrom(spender, from, to types.Account, amount sdkmath.Int) error {
	if err := validate(from, amount); err != nil {
		return err
	}
	if to == types.ZeroAccount {
		return ErrZeroAccount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if spender != from {
		allowed := sdkmath.ZeroInt()
		if byOwner, ok := t.allowances[from]; ok {
			if a, ok := byOwner[spender]; ok {
				allowed = a
			}
		}
		if allowed.LT(amount) {
			return fmt.Errorf("%w: spender %s allowed %s, need %s",
				ErrInsufficientAllowance, spender, allowed, amount)
		}
		t.allowances[from][spender] = allowed.Sub(amount)
	}
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

func (t *Token) Approve(owner, spender types.Account, amount sdkmath.Int) error {
	if err := validate(owner, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowance(owner, spender, amount)
	return nil
}

func (t *Token) IncreaseApproval(owner, spender types.Account, amount sdkmath.Int) error {
	if err := validate(owner, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	current := sdkmath.ZeroInt()
	if byOwner, ok := t.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			current = a
		}
	}
	t.setAllowance(owner, spender, current.Add(amount))
	return nil
}

// DecreaseApproval lowers the allowance, clamping at zero.
func (t *Token) DecreaseApproval(owner, spender types.Account, amount sdkmath.Int) error {
	if err := validate(owner, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	current := sdkmath.ZeroInt()
	if byOwner, ok := t.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			current = a
		}
	}
	next := current.Sub(amount)
	if next.IsNegative() {
		next = sdkmath.ZeroInt()
	}
	t.setAllowance(owner, spender, next)
	return nil
}

func (t *Token) setAllowance(owner, spender types.Account, amount sdkmath.Int) {
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[types.Account]sdkmath.Int)
		t.allowances[owner] = byOwner
	}
	byOwner[spender] = amount
}

func (t *Token) credit(account types.Account, amount sdkmath.Int) {
	if bal, ok := t.balances[account]; ok {
		t.balances[account] = bal.Add(amount)
		return
	}
	t.balances[account] = amount
}

func (t *Token) debit(account types.Account, amount sdkmath.Int) error {
	bal, ok := t.balances[account]
	if !ok || bal.LT(amount) {
		have := sdkmath.ZeroInt()
		if ok {
			have = bal
		}
		return fmt.Errorf("%w: account %s has %s, need %s",
			ErrInsufficientBalance, account, have, amount)
	}
	t.balances[account] = bal.Sub(amount)
	return nil
}

func validate(account types.Account, amount sdkmath.Int) error {
	if account == types.ZeroAccount {
		return ErrZeroAccount
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
