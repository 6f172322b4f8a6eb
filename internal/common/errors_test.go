package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("no test cases found: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("invalid language selected: %w", ErrValidation), http.StatusBadRequest},
		{ErrBadRequest, http.StatusBadRequest},
		{fmt.Errorf("invalid token: %w", ErrUnauthorized), http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("submission insert: %w", ErrUpstream), http.StatusInternalServerError},
		{ErrConflict, http.StatusConflict},
		{fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusFromError(tc.err), "%v", tc.err)
	}
}
