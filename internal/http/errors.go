package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/target/bulkmail/internal/errors"
)

// errorParamsFor maps a service error onto its HTTP response.
// Unclassified errors become a 500 without leaking their text.
func errorParamsFor(err error) ErrorParams {
	code := apperrors.GetCode(err)
	p := ErrorParams{ErrCode: string(code), Err: err}

	switch code {
	case apperrors.ErrCodeUnauthenticated:
		p.Code = http.StatusUnauthorized
	case apperrors.ErrCodePlanExpired:
		p.Code = http.StatusForbidden
	case apperrors.ErrCodeInsufficientCredits:
		p.Code = http.StatusPaymentRequired
		if s, ok := apperrors.GetShortfall(err); ok {
			p.Required, p.Available = &s.Required, &s.Available
		}
	case apperrors.ErrCodeValidation:
		p.Code = http.StatusBadRequest
		p.Field = apperrors.GetField(err)
	case apperrors.ErrCodeNotFound:
		p.Code = http.StatusNotFound
	case apperrors.ErrCodeConflict:
		p.Code = http.StatusConflict
	case apperrors.ErrCodeTimeout:
		p.Code = http.StatusGatewayTimeout
		p.Err = errors.New("request timed out")
	default:
		p.Code = http.StatusInternalServerError
		p.ErrCode = "internal"
		p.Err = errors.New("internal server error")
	}

	var appErr *apperrors.AppError
	if p.Code < http.StatusInternalServerError && errors.As(err, &appErr) {
		// Hide wrapped causes such as repository sentinels.
		p.Err = errors.New(appErr.Message)
	}
	return p
}

// writeServiceError writes err and reports whether it was a server fault.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) bool {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Client went away; nobody is listening for a response.
		return false
	}
	p := errorParamsFor(err)
	WriteError(w, p)
	return p.Code >= http.StatusInternalServerError
}
