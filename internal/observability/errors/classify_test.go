package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/bulkmail/internal/errors"
)

type lookupFailure struct{}

func (lookupFailure) Error() string { return "lookup failed" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: fmt.Errorf("lookup: %w", context.DeadlineExceeded), want: "deadline_exceeded"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "app error", err: apperrors.InsufficientCredits(3, 1), want: "app_insufficient_credits"},
		{name: "wrapped app error", err: fmt.Errorf("submit: %w", apperrors.NotFound("job")), want: "app_not_found"},
		{name: "innermost type", err: fmt.Errorf("a: %w", fmt.Errorf("b: %w", lookupFailure{})), want: "errors_lookupfailure"},
		{name: "plain", err: goerrors.New("x"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
