package migration

import (
	"errors"
	"fmt"
)

var (
	ErrMigrationFailed      = errors.New("migration: apply failed")
	ErrInvalidMigrationFile = errors.New("migration: malformed file")
	ErrInvalidVersion       = errors.New("migration: bad version")
	ErrDuplicateVersion     = errors.New("migration: version declared twice")
	// ErrChecksumMismatch means an applied file was edited after it ran.
	ErrChecksumMismatch = errors.New("migration: checksum mismatch")
)

// StepError names the migration and the step that failed. File is empty
// for failures that happen against the database only.
type StepError struct {
	Version string
	File    string
	Step    string
	Err     error
}

func (e *StepError) Error() string {
	switch {
	case e.Version != "" && e.File != "":
		return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.File, e.Step, e.Err)
	case e.Version != "":
		return fmt.Sprintf("migration %s: %s: %v", e.Version, e.Step, e.Err)
	case e.File != "":
		return fmt.Sprintf("migration file %s: %s: %v", e.File, e.Step, e.Err)
	}
	return fmt.Sprintf("migrations: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func fileError(version, file, step string, err error) *StepError {
	return &StepError{Version: version, File: file, Step: step, Err: err}
}

func dbError(version, step string, err error) *StepError {
	return &StepError{Version: version, Step: step, Err: err}
}
