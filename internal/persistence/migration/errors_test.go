package migration

import (
	"errors"
	"testing"
)

func TestStepError(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name string
		err  *StepError
		want string
	}{
		{name: "file step", err: fileError("001", "001_initial_schema.sql", "read file", cause), want: "migration 001 (001_initial_schema.sql): read file: disk full"},
		{name: "database step", err: dbError("002", "commit transaction", cause), want: "migration 002: commit transaction: disk full"},
		{name: "file without version", err: fileError("", "notes.sql", "validate filename", cause), want: "migration file notes.sql: validate filename: disk full"},
		{name: "version table", err: dbError("", "get applied versions", cause), want: "migrations: get applied versions: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, cause) {
				t.Fatalf("expected StepError to unwrap to its cause")
			}
		})
	}
}
