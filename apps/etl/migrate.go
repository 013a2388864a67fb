package main

import (
	"context"
	"database/sql"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/storage/database"
)

var (
	// mockable
	createDBFunc      = database.CreateIfNotExist
	openDBFunc        = openSQLDB
	runMigrationsFunc = database.RunMigrations
)

func openSQLDB(ctx context.Context, conf *core.Config) (*sql.DB, error) {
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	return db.DB, nil
}

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if args[0] == "up" {
		if err := createDBFunc(ctx, cli.conf); err != nil {
			return err
		}
	}

	db, err := openDBFunc(ctx, cli.conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return runMigrationsFunc(args[0], db, args[1:]...)
}
