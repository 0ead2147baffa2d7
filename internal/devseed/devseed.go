// Package devseed populates a development database with credit accounts and
// sample bulk jobs.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/service"
)

// AccountStore is the subset of the credit store seeding needs.
type AccountStore interface {
	GetAccount(ctx context.Context, ownerID string) (*model.CreditAccount, error)
	UpsertAccount(ctx context.Context, acct model.CreditAccount) error
}

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Accounts AccountStore
	Jobs     *service.JobService
}

// Run seeds every default owner. Existing accounts keep their balances and
// owners that already have jobs get no sample jobs.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if svcs.Accounts == nil || svcs.Jobs == nil {
		return errors.New("devseed requires an account store and a job service")
	}
	if logger == nil {
		logger = slog.Default()
	}

	failures := 0
	for _, owner := range defaultOwners() {
		if err := seedAccount(ctx, svcs.Accounts, owner.account, logger); err != nil {
			logger.ErrorContext(ctx, "failed to seed credit account", "owner_id", owner.account.OwnerID, "error", err)
			failures++
			continue
		}
		failures += seedJobs(ctx, svcs.Jobs, owner, logger)
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

type seedOwner struct {
	account model.CreditAccount
	jobs    []service.SubmitParams
}

func defaultOwners() []seedOwner {
	return []seedOwner{
		{
			account: model.CreditAccount{OwnerID: "dev-user", FindCredits: 500, VerifyCredits: 500},
			jobs: []service.SubmitParams{
				{
					Kind: model.JobKindFind,
					Items: []model.ItemInput{
						{Name: "Ada Lovelace", Domain: "example.com", Role: "engineering"},
						{Name: "Grace Hopper", Domain: "example.org"},
						{Name: "Alan Turing", Domain: "example.net", Role: "research"},
					},
				},
				{
					Kind: model.JobKindVerify,
					Items: []model.ItemInput{
						{Email: "ada@example.com"},
						{Email: "grace@example.org"},
					},
				},
			},
		},
		// Starts empty so the insufficient-credits path can be exercised.
		{account: model.CreditAccount{OwnerID: "dev-broke"}},
	}
}

func seedAccount(ctx context.Context, store AccountStore, acct model.CreditAccount, logger *slog.Logger) error {
	_, err := store.GetAccount(ctx, acct.OwnerID)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "credit account already exists", "owner_id", acct.OwnerID)
		return nil
	case !errors.Is(err, model.ErrAccountNotFound):
		return err
	}
	if err := store.UpsertAccount(ctx, acct); err != nil {
		return err
	}
	logger.InfoContext(ctx, "created credit account",
		"owner_id", acct.OwnerID,
		"find_credits", acct.FindCredits,
		"verify_credits", acct.VerifyCredits,
	)
	return nil
}

func seedJobs(ctx context.Context, jobs *service.JobService, owner seedOwner, logger *slog.Logger) int {
	if len(owner.jobs) == 0 {
		return 0
	}
	ownerID := owner.account.OwnerID
	existing, err := jobs.ListJobs(ctx, model.JobListOptions{OwnerID: ownerID, Limit: 1})
	if err != nil {
		logger.ErrorContext(ctx, "failed to list jobs", "owner_id", ownerID, "error", err)
		return 1
	}
	if len(existing) > 0 {
		logger.InfoContext(ctx, "sample jobs already exist", "owner_id", ownerID)
		return 0
	}

	failures := 0
	for _, params := range owner.jobs {
		params.OwnerID = ownerID
		job, err := jobs.Submit(ctx, params)
		if err != nil {
			logger.ErrorContext(ctx, "failed to submit sample job", "owner_id", ownerID, "kind", params.Kind, "error", err)
			failures++
			continue
		}
		logger.InfoContext(ctx, "submitted sample job", "owner_id", ownerID, "job_id", job.ID, "kind", job.Kind)
	}
	return failures
}
