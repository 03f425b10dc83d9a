package pool

import (
	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

// FlashLoanReceiver executes borrowed funds within a single FlashLoan
// call. The receiver must return the principal plus premium to the pool
// account before ExecuteOperation returns.
type FlashLoanReceiver interface {
	Account() types.Account
	ExecuteOperation(assetToken string, amount, premium sdkmath.Int, params []byte) error
}

// FlashLoan lends up to the pool's full reserve of one claim token for
// the duration of the receiver callback. Repayment is verified by
// balance delta, so the receiver may repay from any source. The premium
// accrues to the lending side's reserve. A callback error or an
// unrepaid loan claws the principal back from the borrower before the
// call returns.
func (p *Pool) FlashLoan(receiver FlashLoanReceiver, assetToken string, amount sdkmath.Int, params []byte) error {
	if receiver == nil || receiver.Account() == types.ZeroAccount {
		return ErrUnsupportedHandle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireTradable(); err != nil {
		return err
	}
	rec, _, err := p.record(assetToken)
	if err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrAmountTooSmall
	}
	if amount.GT(rec.Balance) {
		return ErrBelowMinBalance
	}

	ledger, _, err := p.ledgers(assetToken)
	if err != nil {
		return err
	}
	premium := amount.MulRaw(int64(p.flashPremiumBps)).QuoRaw(10_000)
	balanceBefore := ledger.BalanceOf(p.account)

	if err := ledger.Transfer(p.account, receiver.Account(), amount); err != nil {
		return err
	}
	if err := receiver.ExecuteOperation(assetToken, amount, premium, params); err != nil {
		p.reclaim(ledger, rec, receiver.Account(), balanceBefore)
		return err
	}

	balanceAfter := ledger.BalanceOf(p.account)
	if balanceAfter.LT(balanceBefore.Add(premium)) {
		p.reclaim(ledger, rec, receiver.Account(), balanceBefore)
		return ErrFlashLoanNotRepaid
	}
	rec.Balance = rec.Balance.Add(balanceAfter.Sub(balanceBefore))

	p.log.Debug().
		Str("token", assetToken).
		Str("amount", amount.String()).
		Str("premium", premium.String()).
		Msg("Flash loan completed")
	p.recorder.Record(types.FlashLoaned{
		Pool:     p.id,
		Receiver: receiver.Account(),
		Token:    assetToken,
		Amount:   amount,
		Premium:  premium,
	})
	return nil
}

// reclaim restores the reserve after a failed loan: whatever the
// borrower still holds is pulled back, up to the outstanding principal,
// and any unrecoverable remainder is written out of the record so the
// record never claims tokens the ledger does not hold.
func (p *Pool) reclaim(ledger *token.Token, rec *Record, borrower types.Account, balanceBefore sdkmath.Int) {
	shortfall := balanceBefore.Sub(ledger.BalanceOf(p.account))
	if !shortfall.IsPositive() {
		return
	}
	recoverable := sdkmath.MinInt(shortfall, ledger.BalanceOf(borrower))
	if recoverable.IsPositive() {
		if err := ledger.Transfer(borrower, p.account, recoverable); err == nil {
			shortfall = shortfall.Sub(recoverable)
		}
	}
	if shortfall.IsPositive() {
		rec.Balance = rec.Balance.Sub(shortfall)
		p.log.Warn().
			Str("token", ledger.Symbol()).
			Str("amount", shortfall.String()).
			Msg("Unrecovered flash loan principal written off reserve")
	}
}
