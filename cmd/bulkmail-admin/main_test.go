package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bulkmail/internal/domain/model"
)

func TestPrintUsage_ListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.Contains(t, out, "Usage: bulkmail-admin")
	assert.Less(t, strings.Index(out, "credits-set"), strings.Index(out, "migrate"))
	assert.Less(t, strings.Index(out, "migrate"), strings.Index(out, "recover-once"))
}

func TestParseCreditsSetFlags(t *testing.T) {
	opts, err := parseCreditsSetFlags([]string{"--owner", " owner-1 ", "--find", "100", "--verify", "5", "--plan-expires", "2026-12-31T00:00:00+01:00"})
	require.NoError(t, err)
	assert.Equal(t, "owner-1", opts.OwnerID)
	assert.Equal(t, int64(100), opts.FindCredits)
	assert.Equal(t, int64(5), opts.VerifyCredits)
	require.NotNil(t, opts.PlanExpiresAt)
	assert.Equal(t, time.Date(2026, 12, 30, 23, 0, 0, 0, time.UTC), *opts.PlanExpiresAt)

	opts, err = parseCreditsSetFlags([]string{"--owner", "owner-1"})
	require.NoError(t, err)
	assert.Nil(t, opts.PlanExpiresAt)

	for _, args := range [][]string{
		{},
		{"--owner", "o", "--find", "-1"},
		{"--owner", "o", "--plan-expires", "tomorrow"},
		{"--owner", "o", "--unknown"},
	} {
		_, err := parseCreditsSetFlags(args)
		assert.Error(t, err, args)
	}
}

func TestParseJobsListFlags(t *testing.T) {
	opts, err := parseJobsListFlags([]string{"--owner", "owner-1", "--status", "PAUSED", "--limit", "5", "--json"})
	require.NoError(t, err)
	require.NotNil(t, opts.Status)
	assert.Equal(t, model.JobStatusPaused, *opts.Status)
	assert.Equal(t, 5, opts.Limit)
	assert.True(t, opts.JSON)

	_, err = parseJobsListFlags([]string{"--owner", "owner-1", "--status", "stopped"})
	require.Error(t, err)
	_, err = parseJobsListFlags([]string{"--owner", "owner-1", "--offset", "-1"})
	require.Error(t, err)
	_, err = parseJobsListFlags(nil)
	require.Error(t, err)
}

func TestParseMigrateAndShowFlags(t *testing.T) {
	m, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, m.Timeout)
	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)

	s, err := parseCreditsShowFlags([]string{"--owner", "owner-1"})
	require.NoError(t, err)
	assert.Equal(t, 20, s.Limit)
	_, err = parseCreditsShowFlags([]string{"--owner", "owner-1", "--limit", "0"})
	require.Error(t, err)
}

func TestPrinters(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, printAccount(&buf, &model.CreditAccount{OwnerID: "owner-1", FindCredits: 3, VerifyCredits: 4}))
	assert.Contains(t, buf.String(), "Total:   7")
	assert.Contains(t, buf.String(), "Expires: never")

	buf.Reset()
	require.NoError(t, printTransactions(&buf, []*model.CreditTransaction{{
		Amount:    -12,
		Operation: model.CreditOperationBulkVerify,
		Metadata:  json.RawMessage(`{"job_id":"j1","bulk":true,"item_count":12}`),
		CreatedAt: created,
	}}))
	assert.Contains(t, buf.String(), "bulk_verify")
	assert.Contains(t, buf.String(), "-12")

	buf.Reset()
	require.NoError(t, printJobs(&buf, []*model.Job{{
		ID: "j1", Kind: model.JobKindFind, Status: model.JobStatusPaused,
		TotalItems: 10, ProcessedCount: 4, SuccessCount: 3, FailedCount: 1, ChargedCredits: 4, CreatedAt: created,
	}}))
	assert.Contains(t, buf.String(), "4/10")

	buf.Reset()
	require.NoError(t, printRequeued(&buf, nil))
	assert.Equal(t, "no jobs requeued\n", buf.String())
}
