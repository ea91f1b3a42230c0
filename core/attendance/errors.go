package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
)

var (
	ErrNotFound  = errors.New("attendance record not found")
	ErrNoRoster  = errors.New("no roster provider configured")
	ErrDuplicate = errors.New("attendance already recorded for this student on this date")
)

// NewDuplicateError is returned by stores when a write would break (student_id, date) uniqueness.
func NewDuplicateError() error {
	return core.NewValidationError(ErrDuplicate, core.FieldError{Field: "date", Error: ErrDuplicate.Error()})
}

// ConfirmationRequired is returned by Reconcile when existing records overlap
// the request and no decision was given. Re-run with DecisionOverwrite or DecisionSkip.
type ConfirmationRequired struct {
	Mode          string `json:"mode"`
	ExistingCount int    `json:"existing_count"`
	NewCount      int    `json:"new_count"`
	ExistingIDs   []int  `json:"existing_student_ids"`
}

func (e *ConfirmationRequired) Error() string {
	if e.Mode == ModeAllExisting {
		return fmt.Sprintf("attendance already recorded for all %d students, confirm overwrite", e.ExistingCount)
	}
	return fmt.Sprintf(
		"attendance already recorded for %d of %d students, overwrite or skip them",
		e.ExistingCount, e.ExistingCount+e.NewCount,
	)
}

// StoreError is a failed store call.
type StoreError struct {
	Op     string
	Status Status // bucket, for upserts
	Err    error
}

func (e *StoreError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Timeout reports whether the call hit its deadline.
func (e *StoreError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// WriteError reports the buckets whose upsert failed. Other buckets were written.
type WriteError struct {
	Failed map[Status]error
}

func (e *WriteError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for st, err := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", st, err))
	}
	sort.Strings(parts)
	return "saving attendance: " + strings.Join(parts, "; ")
}

// Timeout reports whether any failed bucket timed out.
func (e *WriteError) Timeout() bool {
	for _, err := range e.Failed {
		var sErr *StoreError
		if errors.As(err, &sErr) && sErr.Timeout() {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound || errors.Is(err, ErrNotFound)
}
