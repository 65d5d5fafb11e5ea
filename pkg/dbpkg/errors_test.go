package dbpkg

import (
	"database/sql/driver"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		err             error
		wantCode        string
		wantConstraint  string
		wantConflict    bool
		wantUnavailable bool
	}{
		{
			name:           "PQCheckViolation",
			err:            &pq.Error{Code: CodeCheckViolation, Constraint: "accounts_balance_check"},
			wantCode:       CodeCheckViolation,
			wantConstraint: "accounts_balance_check",
		},
		{
			name:         "PQDeadlock",
			err:          fmt.Errorf("update: %w", &pq.Error{Code: CodeDeadlockDetected}),
			wantCode:     CodeDeadlockDetected,
			wantConflict: true,
		},
		{
			name:           "PGXUniqueViolation",
			err:            &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "accounts_pkey"},
			wantCode:       CodeUniqueViolation,
			wantConstraint: "accounts_pkey",
		},
		{
			name:         "PGXSerializationFailure",
			err:          &pgconn.PgError{Code: CodeSerializationFailure},
			wantCode:     CodeSerializationFailure,
			wantConflict: true,
		},
		{
			name:            "PGXConnectionFailure",
			err:             &pgconn.PgError{Code: "08006"},
			wantCode:        "08006",
			wantUnavailable: true,
		},
		{
			name:            "BadConn",
			err:             driver.ErrBadConn,
			wantUnavailable: true,
		},
		{
			name: "Plain",
			err:  fmt.Errorf("boom"),
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Code(tc.err); got != tc.wantCode {
				t.Errorf("Code(%v) = %q, want %q", tc.err, got, tc.wantCode)
			}

			if got := Constraint(tc.err); got != tc.wantConstraint {
				t.Errorf("Constraint(%v) = %q, want %q", tc.err, got, tc.wantConstraint)
			}

			if got := IsConflict(tc.err); got != tc.wantConflict {
				t.Errorf("IsConflict(%v) = %v, want %v", tc.err, got, tc.wantConflict)
			}

			if got := IsUnavailable(tc.err); got != tc.wantUnavailable {
				t.Errorf("IsUnavailable(%v) = %v, want %v", tc.err, got, tc.wantUnavailable)
			}
		})
	}
}

func TestClassifyMapping(t *testing.T) {
	t.Parallel()

	errConflict := fmt.Errorf("conflict")
	errUnavailable := fmt.Errorf("unavailable")
	errOther := fmt.Errorf("other")

	testCases := []struct {
		name string
		err  error
		want error
	}{
		{name: "Deadlock", err: &pq.Error{Code: CodeDeadlockDetected}, want: errConflict},
		{name: "BadConn", err: driver.ErrBadConn, want: errUnavailable},
		{name: "CheckViolation", err: &pgconn.PgError{Code: CodeCheckViolation}, want: errOther},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tc.err, errConflict, errUnavailable, errOther); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
