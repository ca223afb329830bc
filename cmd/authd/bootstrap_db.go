package main

import (
	"context"

	config "github.com/MishaNavrotsky/authd/internal/config/authd"
	pg "github.com/MishaNavrotsky/authd/internal/repository/postgres"
)

type dbHandle = *pg.DB

func initDB(ctx context.Context, cfg *config.Config) (dbHandle, error) {
	return pg.New(ctx, cfg.DB)
}
