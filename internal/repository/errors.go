package repository

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAtCapacity    = errors.New("at capacity")

	// ErrMalformedID matches ErrNotFound. Postgres aborts the surrounding
	// transaction on a malformed uuid, so callers inside a transaction must
	// not issue further statements after seeing it.
	ErrMalformedID = errors.Wrap(ErrNotFound, "malformed id")
)

// mapError translates driver errors into repository sentinels. Anything it does
// not recognise is returned unchanged so callers can still classify it.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // missing referenced row
			return ErrNotFound
		case "22P02":
			return ErrMalformedID
		}
	}
	return err
}
