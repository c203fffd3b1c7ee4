package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"contest_judge/internal/platform/config"
	"contest_judge/internal/platform/logging"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

//go:embed schema.sql
var schemaSQL string

var DB *sql.DB

func Connect() error {
	var err error
	DB, err = sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	logging.DBLog.Info("Successfully connected to PostgreSQL database")
	return nil
}

// ApplySchema runs the embedded reference schema. Every statement in it is
// idempotent, so it is safe on every boot.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logging.DBLog.Info("Reference schema applied")
	return nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logging.DBLog.Info("Database connection closed")
	}
}
