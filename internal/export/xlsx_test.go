package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/testutil"
)

func openRows(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestJobWorkbook_Find(t *testing.T) {
	conf := 87.5
	job := testutil.NewJob(2).WithID("job-1").Build()
	job.Status = model.JobStatusCompleted
	job.Items[0].Status = model.ItemStatusCompleted
	job.Items[0].Result = &model.LookupResult{Status: model.LookupStatusValid, Email: "p0@company0.com", Confidence: &conf}
	job.Items[1].Status = model.ItemStatusFailed
	job.Items[1].Error = model.ItemErrInsufficientCredits
	job.ProcessedCount, job.SuccessCount, job.FailedCount, job.ChargedCredits = 2, 1, 1, 1

	data, err := JobWorkbook(job)
	require.NoError(t, err)

	rows := openRows(t, data, resultsSheet)
	require.Len(t, rows, 3)
	assert.Equal(t, findHeaders, rows[0])
	assert.Equal(t, []string{"1", "Person 0", "company0.com", "", "completed", "p0@company0.com", "valid", "87.5"}, rows[1])
	assert.Equal(t, "insufficient_credits", rows[2][8])

	summary := openRows(t, data, summarySheet)
	assert.Equal(t, []string{"Job ID", "job-1"}, summary[0])
	assert.Equal(t, []string{"Credits charged", "1"}, summary[7])
}

func TestJobWorkbook_Verify(t *testing.T) {
	job := testutil.NewJob(1).WithKind(model.JobKindVerify).Build()
	job.Items[0].Status = model.ItemStatusFailed
	job.Items[0].Error = "dial tcp: timeout"

	data, err := JobWorkbook(job)
	require.NoError(t, err)

	rows := openRows(t, data, resultsSheet)
	require.Len(t, rows, 2)
	assert.Equal(t, verifyHeaders, rows[0])
	assert.Equal(t, []string{"1", "user0@example.com", "failed", "", "", "dial tcp: timeout"}, rows[1])
}

func TestJobWorkbook_Nil(t *testing.T) {
	_, err := JobWorkbook(nil)
	require.Error(t, err)
}
