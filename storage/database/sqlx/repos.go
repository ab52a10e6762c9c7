// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/storage/database"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type base struct {
	db *sqlx.DB
	tx core.Transactor
}

func newBase(db *sqlx.DB) base {
	return base{db: db, tx: database.NewTransactor(db)}
}

// getExec returns the transaction handed down by a service, or the pool.
func (b base) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		ext, ok := svcExec[0].(sqlx.ExtContext)
		if !ok {
			panic(fmt.Sprintf("sqlxrepos: unsupported executor %T", svcExec[0]))
		}
		return ext
	}
	return b.db
}

// inTx runs fn in the service's transaction if there is one, in a new transaction otherwise.
func (b base) inTx(ctx context.Context, svcExec []core.DBExecutor, fn func(ext sqlx.ExtContext) error) error {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return fn(b.getExec(svcExec))
	}
	return b.tx.InTx(ctx, func(exec core.DBExecutor) error {
		return fn(b.getExec([]core.DBExecutor{exec}))
	})
}

func pqCode(err error) string {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return string(pqErr.Code)
	}
	return ""
}

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}
