package common

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("problem p1: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", ErrRateLimited), http.StatusTooManyRequests},
		{ErrAlreadyFinal, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrJudgeTimeout, http.StatusServiceUnavailable},
		{&pgconn.PgError{Code: "23505"}, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatusFromError(tc.err); got != tc.want {
			t.Errorf("HTTPStatusFromError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRespondWithDomainErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithDomainError(rec, fmt.Errorf("dial tcp 10.0.0.4:5432: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.4") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	RespondWithDomainError(rec, fmt.Errorf("language brainfuck: %w", ErrBadRequest))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "brainfuck") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
