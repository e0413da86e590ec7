package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/openbank/backend/internal/config"
)

// Connect opens a pooled Postgres connection for the given settings.
func Connect(cfg config.Database) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Println("Database connection established")
	return db, nil
}

// MustConnect connects and ensures the service schema, exiting on failure.
func MustConnect(cfg config.Database, schema string) *sql.DB {
	db, err := Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	return db
}
