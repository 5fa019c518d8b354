package store

import (
	"database/sql"
	"errors"
	"io/fs"

	"github.com/ncruces/go-sqlite3"

	"github.com/pawsitive/pawsync/internal/gateway"
)

// classify maps database errors into the gateway taxonomy.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return classifyEvent(op, id, err)
}

func classifyEvent(op, id string, err error) *gateway.Error {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return ge
	}
	kind := gateway.KindUnknown
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = gateway.KindNotFound
	case errors.Is(err, sqlite3.READONLY),
		errors.Is(err, sqlite3.PERM),
		errors.Is(err, sqlite3.AUTH),
		errors.Is(err, fs.ErrPermission):
		kind = gateway.KindPermissionDenied
	}
	return &gateway.Error{Kind: kind, Op: op, SessionID: id, Err: err}
}
