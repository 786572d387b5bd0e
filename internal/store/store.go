// Package store holds the Postgres-backed repositories. Every query is
// scoped to a single user.
package store

import (
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("not found")

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
