package store

import (
	"errors"

	"github.com/lib/pq"
)

// sqlStateIs reports whether err is a *pq.Error carrying the given
// SQLSTATE code.
func sqlStateIs(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
