package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyPgError(t *testing.T) {
	cases := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped deadlock", fmt.Errorf("failed to lock tile 3: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"constraint violation passes through", &pgconn.PgError{Code: "23502"}, false},
		{"plain error passes through", errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyPgError(tc.err)
			if tc.wantConflict {
				if !errors.Is(got, ErrConflict) {
					t.Errorf("Expected ErrConflict, got %v", got)
				}
				return
			}
			if got != tc.err {
				t.Errorf("Expected %v unchanged, got %v", tc.err, got)
			}
		})
	}
}
