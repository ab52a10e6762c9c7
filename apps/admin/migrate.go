package main

import (
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/trezcool/masomo-live/storage/database"
)

var gooseRunFunc = goose.Run // mockable

// gooseMigrator runs goose commands against db, reading the embedded migrations.
func gooseMigrator(db *sql.DB) func(command string, args ...string) error {
	return func(command string, args ...string) error {
		if err := goose.SetDialect("postgres"); err != nil {
			return err
		}
		return gooseRunFunc(command, db, database.MigrationsDir, args...)
	}
}

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return cli.migrator(args[0], arguments...)
}
