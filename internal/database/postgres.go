package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/npezzotti/campus-connect/internal/database/migrations"
	"github.com/pressly/goose/v3"
)

type PgCampusRepository struct {
	conn *sql.DB
}

func NewPgCampusRepository(dsn string) (*PgCampusRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PgCampusRepository{conn: db}, nil
}

func (db *PgCampusRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate applies every pending migration embedded in the binary.
func (db *PgCampusRepository) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.conn, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

func (db *PgCampusRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
