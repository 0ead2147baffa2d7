package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/bulkmail/internal/data/pgxutil"
	"github.com/target/bulkmail/internal/domain/credit"
	"github.com/target/bulkmail/internal/domain/model"
)

const defaultTransactionLimit = 20

// CreditRepo is the Postgres credit ledger.
type CreditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewCreditRepo creates a CreditRepo.
func NewCreditRepo(db *sql.DB, cfg RepoConfig) *CreditRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditRepo{DB: db, timeProvider: tp, logger: logger.With("component", "credit_repo")}
}

// CheckAndDebit locks the owner's account row, splits the amount across the
// two pools and writes the new balances in one transaction. Concurrent
// callers serialize on the row lock, so the combined balance never goes
// negative. A missing account is treated as an empty one.
func (r *CreditRepo) CheckAndDebit(ctx context.Context, req model.DebitRequest) (bool, error) {
	if req.Amount <= 0 {
		return false, credit.ErrInvalidAmount
	}
	if !req.Kind.Valid() {
		return false, fmt.Errorf("invalid job kind: %s", req.Kind)
	}

	var debited bool
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var find, verify int64
			err := tx.QueryRow(ctx, `
				SELECT find_credits, verify_credits
				FROM credit_accounts
				WHERE owner_id = $1
				FOR UPDATE
			`, req.OwnerID).Scan(&find, &verify)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("lock credit account: %w", err)
			}

			d, ok := credit.Split(req.Kind, find, verify, req.Amount)
			if !ok {
				return nil
			}
			if _, err := tx.Exec(ctx, `
				UPDATE credit_accounts
				SET find_credits = find_credits - $2,
				    verify_credits = verify_credits - $3,
				    updated_at = $4
				WHERE owner_id = $1
			`, req.OwnerID, d.Find, d.Verify, r.timeProvider.Now().UTC()); err != nil {
				return fmt.Errorf("debit credit account: %w", err)
			}
			debited = true
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return debited, nil
}

// RecordTransaction appends a ledger row. Balances are not touched.
func (r *CreditRepo) RecordTransaction(
	ctx context.Context,
	req model.RecordTransactionRequest,
) (*model.CreditTransaction, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, errors.New("owner_id is required")
	}
	meta := req.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}

	tx := &model.CreditTransaction{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		Amount:    req.Amount,
		Operation: req.Operation,
	}
	var stored []byte
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO credit_transactions (id, owner_id, amount, operation, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING metadata, created_at
	`, tx.ID, tx.OwnerID, tx.Amount, tx.Operation, []byte(meta), r.timeProvider.Now().UTC()).
		Scan(&stored, &tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record credit transaction: %w", err)
	}
	tx.Metadata = append(json.RawMessage(nil), stored...)
	return tx, nil
}

// GetAccount returns the owner's balances.
func (r *CreditRepo) GetAccount(ctx context.Context, ownerID string) (*model.CreditAccount, error) {
	var (
		acct    model.CreditAccount
		expires sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT owner_id, find_credits, verify_credits, plan_expires_at, updated_at
		FROM credit_accounts
		WHERE owner_id = $1
	`, ownerID).Scan(&acct.OwnerID, &acct.FindCredits, &acct.VerifyCredits, &expires, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credit account: %w", err)
	}
	acct.PlanExpiresAt = cloneNullableTime(expires)
	return &acct, nil
}

// UpsertAccount sets an account's balances and plan expiry, creating it if needed.
func (r *CreditRepo) UpsertAccount(ctx context.Context, acct model.CreditAccount) error {
	if strings.TrimSpace(acct.OwnerID) == "" {
		return errors.New("owner_id is required")
	}
	var expires any
	if acct.PlanExpiresAt != nil {
		expires = acct.PlanExpiresAt.UTC()
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO credit_accounts (owner_id, find_credits, verify_credits, plan_expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE
		SET find_credits = EXCLUDED.find_credits,
		    verify_credits = EXCLUDED.verify_credits,
		    plan_expires_at = EXCLUDED.plan_expires_at,
		    updated_at = EXCLUDED.updated_at
	`, acct.OwnerID, acct.FindCredits, acct.VerifyCredits, expires, r.timeProvider.Now().UTC()); err != nil {
		return fmt.Errorf("upsert credit account: %w", err)
	}
	return nil
}

// ListTransactions returns the most recent ledger rows of an owner.
func (r *CreditRepo) ListTransactions(ctx context.Context, ownerID string, limit int) ([]*model.CreditTransaction, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultTransactionLimit
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, owner_id, amount, operation, metadata, created_at
		FROM credit_transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var meta []byte
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Amount, &t.Operation, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit transaction: %w", err)
		}
		t.Metadata = append(json.RawMessage(nil), meta...)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit transactions: %w", err)
	}
	return out, nil
}
