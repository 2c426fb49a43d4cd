package repository

import (
	"errors"

	"gorm.io/gorm"

	"donationdesk/internal/workflow"
)

// ErrStatusConflict is returned by conditional writes when the row is no longer in
// the expected status, meaning a concurrent writer got there first.
var ErrStatusConflict = errors.New("status changed concurrently")

// ErrNotFound is the workflow sentinel so services and handlers match one value.
var ErrNotFound = workflow.ErrNotFound

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// page normalizes page/limit and returns the row offset.
func page(p, limit int) (int, int) {
	if p < 1 {
		p = 1
	}
	if limit < 1 {
		limit = 20
	}
	return (p - 1) * limit, limit
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
