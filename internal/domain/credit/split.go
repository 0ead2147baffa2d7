// Package credit holds the pool selection rules for the two-pool credit account.
package credit

import (
	"errors"

	"github.com/target/bulkmail/internal/domain/model"
)

// ErrInvalidAmount indicates a non-positive debit amount.
var ErrInvalidAmount = errors.New("debit amount must be positive")

// Debit is the per-pool breakdown of a debit.
type Debit struct {
	Find   int64
	Verify int64
}

// Total returns the combined debit.
func (d Debit) Total() int64 { return d.Find + d.Verify }

// Split decides how amount is taken from the two pools. The kind's own pool is drained
// first and only the remainder spills into the other one. ok is false, and the zero
// Debit is returned, when the combined balance cannot cover amount.
func Split(kind model.JobKind, find, verify, amount int64) (Debit, bool) {
	if amount <= 0 || find < 0 || verify < 0 || find+verify < amount {
		return Debit{}, false
	}

	if kind == model.JobKindVerify {
		fromVerify := min(verify, amount)
		return Debit{Verify: fromVerify, Find: amount - fromVerify}, true
	}
	fromFind := min(find, amount)
	return Debit{Find: fromFind, Verify: amount - fromFind}, true
}

// Apply returns the balances after d has been taken.
func Apply(acct model.CreditAccount, d Debit) model.CreditAccount {
	acct.FindCredits -= d.Find
	acct.VerifyCredits -= d.Verify
	return acct
}
