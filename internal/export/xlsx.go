// Package export renders bulk job results as spreadsheets.
package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/target/bulkmail/internal/domain/model"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
	maxCellText  = 500
)

var findHeaders = []string{"#", "Name", "Domain", "Role", "Status", "Email", "Verdict", "Confidence", "Error"}

var verifyHeaders = []string{"#", "Email", "Status", "Verdict", "Confidence", "Error"}

// JobWorkbook returns an XLSX workbook with one row per item and a summary sheet.
func JobWorkbook(job *model.Job) ([]byte, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// NewFile starts with "Sheet1"; rename it rather than leave an empty tab.
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(resultsSheet)
	if err != nil {
		return nil, fmt.Errorf("results sheet index: %w", err)
	}
	f.SetActiveSheet(idx)

	headers := findHeaders
	if job.Kind == model.JobKindVerify {
		headers = verifyHeaders
	}
	if err := writeRow(f, resultsSheet, 1, toAny(headers)); err != nil {
		return nil, err
	}
	for i, it := range job.Items {
		if err := writeRow(f, resultsSheet, i+2, itemRow(job.Kind, i, it)); err != nil {
			return nil, err
		}
	}

	if job.Kind == model.JobKindVerify {
		_ = f.SetColWidth(resultsSheet, "B", "B", 36)
		_ = f.SetColWidth(resultsSheet, "F", "F", 48)
	} else {
		_ = f.SetColWidth(resultsSheet, "B", "C", 28)
		_ = f.SetColWidth(resultsSheet, "F", "F", 36)
		_ = f.SetColWidth(resultsSheet, "I", "I", 48)
	}

	if err := writeSummary(f, job); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func itemRow(kind model.JobKind, i int, it model.Item) []any {
	var verdict, email, confidence string
	if it.Result != nil {
		verdict = string(it.Result.Status)
		email = it.Result.Email
		if it.Result.Confidence != nil {
			confidence = strconv.FormatFloat(*it.Result.Confidence, 'f', -1, 64)
		}
	}
	errText := truncate(it.Error, maxCellText)
	if kind == model.JobKindVerify {
		return []any{i + 1, it.Input.Email, string(it.Status), verdict, confidence, errText}
	}
	return []any{i + 1, it.Input.Name, it.Input.Domain, it.Input.Role, string(it.Status), email, verdict, confidence, errText}
}

func writeSummary(f *excelize.File, job *model.Job) error {
	rows := [][]any{
		{"Job ID", job.ID},
		{"Kind", string(job.Kind)},
		{"Status", string(job.Status)},
		{"Total items", job.TotalItems},
		{"Processed", job.ProcessedCount},
		{"Succeeded", job.SuccessCount},
		{"Failed", job.FailedCount},
		{"Credits charged", job.ChargedCredits},
		{"Created at", job.CreatedAt.UTC().Format("2006-01-02 15:04:05Z")},
	}
	if job.CompletedAt != nil {
		rows = append(rows, []any{"Completed at", job.CompletedAt.UTC().Format("2006-01-02 15:04:05Z")})
	}
	for i, r := range rows {
		if err := writeRow(f, summarySheet, i+1, r); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
