package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:      "unique violation from detail",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: `Key (id)=(abc) already exists.`},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "negative pool check",
			err:       &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "find_credits"},
			wantCode:  ErrCodeValidation,
			wantField: "find_credits",
		},
		{
			name:     "serialization failure",
			err:      fmt.Errorf("debit: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure}),
			wantCode: ErrCodeConflict,
		},
		{
			name:     "unhandled pg error",
			err:      &pgconn.PgError{Code: pgerrcode.DiskFull},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if GetCode(err) != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
			if GetField(err) != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", GetField(err), tt.wantField)
			}
		})
	}
}

func TestMapDBError_Passthrough(t *testing.T) {
	plain := errors.New("not a db error")
	if got := MapDBError(plain); !errors.Is(got, plain) || GetCode(got) != "" {
		t.Errorf("MapDBError should return unrecognized errors untouched, got %v", got)
	}
}
