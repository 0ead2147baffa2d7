package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/bulkmail/internal/bootstrap"
	"github.com/target/bulkmail/internal/data"
	"github.com/target/bulkmail/internal/devseed"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

type migrateOptions struct {
	Timeout time.Duration
}

type creditsSetOptions struct {
	OwnerID       string
	FindCredits   int64
	VerifyCredits int64
	PlanExpiresAt *time.Time
}

type creditsShowOptions struct {
	OwnerID string
	Limit   int
}

type jobsListOptions struct {
	OwnerID string
	Status  *model.JobStatus
	Limit   int
	Offset  int
	JSON    bool
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := newFlagSet("migrate")
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseCreditsSetFlags(args []string) (creditsSetOptions, error) {
	fs := newFlagSet("credits-set")
	var (
		opts    creditsSetOptions
		expires string
	)
	fs.StringVar(&opts.OwnerID, "owner", "", "Owner id (required)")
	fs.Int64Var(&opts.FindCredits, "find", 0, "Find credit balance")
	fs.Int64Var(&opts.VerifyCredits, "verify", 0, "Verify credit balance")
	fs.StringVar(&expires, "plan-expires", "", "Plan expiry as RFC3339; empty means the plan never expires")
	if err := fs.Parse(args); err != nil {
		return creditsSetOptions{}, err
	}

	opts.OwnerID = strings.TrimSpace(opts.OwnerID)
	if opts.OwnerID == "" {
		return creditsSetOptions{}, errors.New("--owner is required")
	}
	if opts.FindCredits < 0 || opts.VerifyCredits < 0 {
		return creditsSetOptions{}, errors.New("--find and --verify must not be negative")
	}
	if expires = strings.TrimSpace(expires); expires != "" {
		t, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			return creditsSetOptions{}, fmt.Errorf("--plan-expires: %w", err)
		}
		t = t.UTC()
		opts.PlanExpiresAt = &t
	}
	return opts, nil
}

func parseCreditsShowFlags(args []string) (creditsShowOptions, error) {
	fs := newFlagSet("credits-show")
	var opts creditsShowOptions
	fs.StringVar(&opts.OwnerID, "owner", "", "Owner id (required)")
	fs.IntVar(&opts.Limit, "limit", 20, "Number of transactions to show")
	if err := fs.Parse(args); err != nil {
		return creditsShowOptions{}, err
	}
	opts.OwnerID = strings.TrimSpace(opts.OwnerID)
	if opts.OwnerID == "" {
		return creditsShowOptions{}, errors.New("--owner is required")
	}
	if opts.Limit <= 0 {
		return creditsShowOptions{}, errors.New("--limit must be greater than zero")
	}
	return opts, nil
}

func parseJobsListFlags(args []string) (jobsListOptions, error) {
	fs := newFlagSet("jobs-list")
	var (
		opts   jobsListOptions
		status string
	)
	fs.StringVar(&opts.OwnerID, "owner", "", "Owner id (required)")
	fs.StringVar(&status, "status", "", "Filter by status (pending, processing, completed, failed, paused)")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of jobs")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of jobs to skip")
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return jobsListOptions{}, err
	}

	opts.OwnerID = strings.TrimSpace(opts.OwnerID)
	if opts.OwnerID == "" {
		return jobsListOptions{}, errors.New("--owner is required")
	}
	if status = strings.ToLower(strings.TrimSpace(status)); status != "" {
		s := model.JobStatus(status)
		if !s.Valid() {
			return jobsListOptions{}, fmt.Errorf("--status: unknown status %q", status)
		}
		opts.Status = &s
	}
	if opts.Limit <= 0 || opts.Offset < 0 {
		return jobsListOptions{}, errors.New("--limit must be positive and --offset non-negative")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

func runCreditsSet(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreditsSetFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	repo := data.NewCreditRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	if err := repo.UpsertAccount(ctx, model.CreditAccount{
		OwnerID:       opts.OwnerID,
		FindCredits:   opts.FindCredits,
		VerifyCredits: opts.VerifyCredits,
		PlanExpiresAt: opts.PlanExpiresAt,
	}); err != nil {
		return fmt.Errorf("upsert credit account: %w", err)
	}
	acct, err := repo.GetAccount(ctx, opts.OwnerID)
	if err != nil {
		return fmt.Errorf("reload credit account: %w", err)
	}
	return printAccount(cmdCtx.Out, acct)
}

func runCreditsShow(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreditsShowFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	repo := data.NewCreditRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	acct, err := repo.GetAccount(ctx, opts.OwnerID)
	if err != nil {
		return fmt.Errorf("load credit account: %w", err)
	}
	txs, err := repo.ListTransactions(ctx, opts.OwnerID, opts.Limit)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	if err := printAccount(cmdCtx.Out, acct); err != nil {
		return err
	}
	return printTransactions(cmdCtx.Out, txs)
}

func runJobsList(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobsListFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	jobs, err := repo.ListByOwner(ctx, model.JobListOptions{
		OwnerID: opts.OwnerID,
		Status:  opts.Status,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if opts.JSON {
		enc := json.NewEncoder(cmdCtx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	return printJobs(cmdCtx.Out, jobs)
}

// runRecoverOnce runs the same sweep the recovery daemon runs on each tick.
// Requeued jobs are picked up by running executors through NOTIFY.
func runRecoverOnce(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	cfg := cmdCtx.Config
	policy, err := domainjob.NewStalenessPolicy(domainjob.StalenessPolicyParams{
		Heartbeat: cfg.Executor.HeartbeatInterval,
		Multiple:  cfg.Recovery.StalenessMultiple,
		Min:       cfg.Recovery.StalenessMin,
		Max:       cfg.Recovery.StalenessMax,
	})
	if err != nil {
		return fmt.Errorf("create staleness policy: %w", err)
	}
	svc, err := service.NewRecoveryService(service.RecoveryServiceOptions{
		Repo:             data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
		Policy:           policy,
		FailedRetryDelay: cfg.Recovery.FailedRetryDelay,
		MaxResumes:       cfg.Recovery.MaxResumes,
		BatchLimit:       cfg.Recovery.BatchLimit,
		Logger:           cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("create recovery service: %w", err)
	}

	requeued, err := svc.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	return printRequeued(cmdCtx.Out, requeued)
}

func runDevSeed(cmdCtx *commandContext, _ []string) error {
	if !cmdCtx.Config.IsDev {
		return errors.New("dev-seed only runs with DEV=true or APP_ENV=development")
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	repoCfg := data.RepoConfig{Logger: cmdCtx.Logger}
	credits := data.NewCreditRepo(db, repoCfg)
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Jobs:     data.NewJobRepo(db, repoCfg),
		Accounts: credits,
		MaxItems: cmdCtx.Config.Executor.MaxItems,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("create job service: %w", err)
	}
	return devseed.Run(ctx, devseed.Services{Accounts: credits, Jobs: jobs}, cmdCtx.Logger)
}

func printAccount(w io.Writer, acct *model.CreditAccount) error {
	expiry := "never"
	if acct.PlanExpiresAt != nil {
		expiry = acct.PlanExpiresAt.Format(time.RFC3339)
	}
	return writef(w, "Owner:   %s\nFind:    %d\nVerify:  %d\nTotal:   %d\nExpires: %s\n",
		acct.OwnerID, acct.FindCredits, acct.VerifyCredits, acct.Available(), expiry)
}

func printTransactions(w io.Writer, txs []*model.CreditTransaction) error {
	if err := writef(w, "\nRecent transactions\n"); err != nil {
		return err
	}
	if len(txs) == 0 {
		return writeln(w, "(none)")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "CREATED\tOPERATION\tAMOUNT\tMETADATA\n"); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := writef(tw, "%s\t%s\t%d\t%s\n",
			tx.CreatedAt.Format(time.RFC3339), tx.Operation, tx.Amount, string(tx.Metadata)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printJobs(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writeln(w, "(no jobs found)")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tKIND\tSTATUS\tPROGRESS\tOK\tFAILED\tCHARGED\tCREATED\n"); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := writef(tw, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%d\t%s\n",
			j.ID, j.Kind, j.Status, j.ProcessedCount, j.TotalItems,
			j.SuccessCount, j.FailedCount, j.ChargedCredits, j.CreatedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printRequeued(w io.Writer, jobs []model.RequeuedJob) error {
	if len(jobs) == 0 {
		return writeln(w, "no jobs requeued")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tKIND\tRESUME AT\tRESUMES\n"); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := writef(tw, "%s\t%s\t%d\t%d\n", j.ID, j.Kind, j.CurrentIndex, j.ResumeCount); err != nil {
			return err
		}
	}
	return tw.Flush()
}
