package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/testutil"
)

func TestCreditRepo_CheckAndDebitSpillsPools(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewCreditRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(testutil.TestTime())})
		ctx := context.Background()

		require.NoError(t, repo.UpsertAccount(ctx, testutil.NewAccount("owner-1", 2, 5).Build()))

		for range 3 {
			ok, err := repo.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "owner-1", Kind: model.JobKindFind, Amount: 1})
			require.NoError(t, err)
			require.True(t, ok)
		}

		acct, err := repo.GetAccount(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), acct.FindCredits)
		assert.Equal(t, int64(4), acct.VerifyCredits)

		ok, err := repo.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "owner-1", Kind: model.JobKindVerify, Amount: 5})
		require.NoError(t, err)
		assert.False(t, ok)

		acct, err = repo.GetAccount(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), acct.VerifyCredits, "failed debit leaves balances untouched")
	})
}

func TestCreditRepo_CheckAndDebitMissingAccount(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewCreditRepo(db, RepoConfig{})

		ok, err := repo.CheckAndDebit(context.Background(), model.DebitRequest{OwnerID: "ghost", Kind: model.JobKindFind, Amount: 1})
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.GetAccount(context.Background(), "ghost")
		require.ErrorIs(t, err, model.ErrAccountNotFound)
	})
}

func TestCreditRepo_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewCreditRepo(db, RepoConfig{})
		ctx := context.Background()

		const balance, callers = 5, 20
		require.NoError(t, repo.UpsertAccount(ctx, testutil.NewAccount("owner-1", 3, 2).Build()))

		results := make([]bool, callers)
		fns := make([]func() error, callers)
		for i := range fns {
			fns[i] = func() error {
				ok, err := repo.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "owner-1", Kind: model.JobKindVerify, Amount: 1})
				results[i] = ok
				return err
			}
		}
		for _, err := range testutil.RunConcurrent(fns...) {
			require.NoError(t, err)
		}

		succeeded := 0
		for _, ok := range results {
			if ok {
				succeeded++
			}
		}
		assert.Equal(t, balance, succeeded)

		acct, err := repo.GetAccount(ctx, "owner-1")
		require.NoError(t, err)
		assert.Zero(t, acct.Available())
	})
}

func TestCreditRepo_RecordAndListTransactions(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewCreditRepo(db, RepoConfig{})
		ctx := context.Background()
		require.NoError(t, repo.UpsertAccount(ctx, testutil.NewAccount("owner-1", 10, 0).Build()))

		meta, err := json.Marshal(model.JobTransactionMetadata{JobID: "job-1", Bulk: true, ItemCount: 3})
		require.NoError(t, err)

		tx, err := repo.RecordTransaction(ctx, model.RecordTransactionRequest{
			OwnerID:   "owner-1",
			Amount:    -3,
			Operation: model.CreditOperationBulkFind,
			Metadata:  meta,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, tx.ID)
		assert.JSONEq(t, string(meta), string(tx.Metadata))

		txs, err := repo.ListTransactions(ctx, "owner-1", 10)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, int64(-3), txs[0].Amount)
		assert.Equal(t, model.CreditOperationBulkFind, txs[0].Operation)

		acct, err := repo.GetAccount(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), acct.FindCredits, "recording does not move balances")
	})
}
