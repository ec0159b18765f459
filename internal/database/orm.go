package database

import (
	"database/sql"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/extra/bundebug"
)

// SQLDB returns a database/sql handle sharing the engine's pool.
func (e *Engine) SQLDB() *sql.DB {
	e.openSQL()
	return e.sqlDB
}

// ORM returns a bun handle sharing the engine's pool. With query logging
// enabled, bun's debug hook is attached (BUNDEBUG=2 also prints arguments).
func (e *Engine) ORM() *bun.DB {
	e.openSQL()
	return e.orm
}

func (e *Engine) openSQL() {
	e.sqlOnce.Do(func() {
		if e.pool == nil {
			return
		}

		e.sqlDB = stdlib.OpenDBFromPool(e.pool)
		e.orm = bun.NewDB(e.sqlDB, pgdialect.New())

		if e.logQueries {
			e.orm.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}
	})
}
