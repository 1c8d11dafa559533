package repo

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrNoMatch is returned when a conditional update finds no row in the expected state.
	ErrNoMatch = errors.New("no row matched the update guard")
	// ErrDuplicate is returned on unique-constraint violations.
	ErrDuplicate = errors.New("duplicate")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Limit  int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize(defaultLimit, maxLimit int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}
