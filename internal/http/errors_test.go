package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/target/bulkmail/internal/domain/model"
	apperrors "github.com/target/bulkmail/internal/errors"
)

func TestErrorParamsFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"unauthenticated", apperrors.Unauthenticated("authentication required"), http.StatusUnauthorized, "unauthenticated", "authentication required"},
		{"plan expired", apperrors.PlanExpired("plan expired"), http.StatusForbidden, "plan_expired", "plan expired"},
		{"shortfall", apperrors.InsufficientCredits(5, 2), http.StatusPaymentRequired, "insufficient_credits", "insufficient credits"},
		{"validation", apperrors.ValidationField("items[0]", "email is invalid"), http.StatusBadRequest, "validation", "email is invalid"},
		{
			"not found hides cause",
			apperrors.Wrap(model.ErrJobNotFound, apperrors.ErrCodeNotFound, "job not found"),
			http.StatusNotFound, "not_found", "job not found",
		},
		{
			"conflict hides cause",
			apperrors.Wrap(model.ErrJobNotStoppable, apperrors.ErrCodeConflict, "job cannot be stopped"),
			http.StatusConflict, "conflict", "job cannot be stopped",
		},
		{"wrapped app error", fmt.Errorf("submit: %w", apperrors.Conflict("busy")), http.StatusConflict, "conflict", "busy"},
		{"timeout", apperrors.Wrap(context.DeadlineExceeded, apperrors.ErrCodeTimeout, "lookup timed out"), http.StatusGatewayTimeout, "timeout", "lookup timed out"},
		{"plain error", errors.New("pq: relation does not exist"), http.StatusInternalServerError, "internal", "internal server error"},
		{"internal app error", apperrors.Internal("ledger write failed"), http.StatusInternalServerError, "internal", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := errorParamsFor(tt.err)
			assert.Equal(t, tt.status, p.Code)
			assert.Equal(t, tt.code, p.ErrCode)
			assert.Equal(t, tt.message, p.Err.Error())
		})
	}
}

func TestErrorParamsFor_Shortfall(t *testing.T) {
	p := errorParamsFor(apperrors.InsufficientCredits(5, 2))
	if assert.NotNil(t, p.Required) && assert.NotNil(t, p.Available) {
		assert.Equal(t, int64(5), *p.Required)
		assert.Equal(t, int64(2), *p.Available)
	}
}

func TestWriteServiceError_SkipsCanceledClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	serverFault := writeServiceError(w, r, fmt.Errorf("load: %w", context.Canceled))
	assert.False(t, serverFault)
	assert.Zero(t, w.Body.Len())

	w = httptest.NewRecorder()
	serverFault = writeServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("boom"))
	assert.True(t, serverFault)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
