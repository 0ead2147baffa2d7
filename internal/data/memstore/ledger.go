package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/data"
	"github.com/target/bulkmail/internal/domain/credit"
	"github.com/target/bulkmail/internal/domain/model"
)

// Ledger is an in-memory credit ledger. A single mutex makes CheckAndDebit
// atomic across goroutines.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]model.CreditAccount
	txs      []model.CreditTransaction
	clock    data.TimeProvider
}

var (
	_ core.CreditLedger            = (*Ledger)(nil)
	_ core.CreditAccountRepository = (*Ledger)(nil)
)

// NewLedger creates an empty ledger. A nil clock uses wall time.
func NewLedger(clock data.TimeProvider) *Ledger {
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	return &Ledger{accounts: make(map[string]model.CreditAccount), clock: clock}
}

// UpsertAccount replaces an account's balances and plan expiry.
func (l *Ledger) UpsertAccount(_ context.Context, acct model.CreditAccount) error {
	if acct.OwnerID == "" {
		return errors.New("owner_id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct.UpdatedAt = l.clock.Now().UTC()
	l.accounts[acct.OwnerID] = acct
	return nil
}

// CheckAndDebit takes Amount from the kind's pool first, then the other one.
func (l *Ledger) CheckAndDebit(_ context.Context, req model.DebitRequest) (bool, error) {
	if req.Amount <= 0 {
		return false, credit.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[req.OwnerID]
	if !ok {
		return false, nil
	}
	d, ok := credit.Split(req.Kind, acct.FindCredits, acct.VerifyCredits, req.Amount)
	if !ok {
		return false, nil
	}
	acct = credit.Apply(acct, d)
	acct.UpdatedAt = l.clock.Now().UTC()
	l.accounts[req.OwnerID] = acct
	return true, nil
}

// RecordTransaction appends a ledger row.
func (l *Ledger) RecordTransaction(_ context.Context, req model.RecordTransactionRequest) (*model.CreditTransaction, error) {
	if req.OwnerID == "" {
		return nil, errors.New("owner_id is required")
	}
	meta := req.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := model.CreditTransaction{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		Amount:    req.Amount,
		Operation: req.Operation,
		Metadata:  append(json.RawMessage(nil), meta...),
		CreatedAt: l.clock.Now().UTC(),
	}
	l.txs = append(l.txs, tx)
	return &tx, nil
}

// GetAccount returns a copy of the owner's account.
func (l *Ledger) GetAccount(_ context.Context, ownerID string) (*model.CreditAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[ownerID]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return &acct, nil
}

// ListTransactions returns the owner's rows, newest first.
func (l *Ledger) ListTransactions(_ context.Context, ownerID string, limit int) ([]*model.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.CreditTransaction
	for _, tx := range slices.Backward(l.txs) {
		if tx.OwnerID != ownerID {
			continue
		}
		out = append(out, &tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
