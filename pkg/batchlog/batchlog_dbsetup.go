// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package batchlog

// setup for the batch log db
// includes migration support and txwrap setup

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sawka/txwrap"

	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	dbfs "github.com/wavetermdev/rendertree/db"
)

const BatchLogDBName = "batchlog.db"
const migrationsName = "migrations-batchlog"

type TxWrap = txwrap.TxWrap

type Store struct {
	DB *sqlx.DB
}

// MakeStore opens (but does not migrate) the batch log.  an empty dbPath opens
// an in-memory db.
func MakeStore(ctx context.Context, dbPath string) (*Store, error) {
	var rtn *sqlx.DB
	var err error
	if dbPath == "" {
		log.Printf("[db] using in-memory db\n")
		rtn, err = sqlx.Open("sqlite3", ":memory:")
	} else {
		log.Printf("[db] opening db %s\n", dbPath)
		rtn, err = sqlx.Open("sqlite3", fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000", dbPath))
	}
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// a single connection keeps an in-memory db alive and shared
	rtn.DB.SetMaxOpenConns(1)
	err = rtn.PingContext(ctx)
	if err != nil {
		rtn.Close()
		return nil, fmt.Errorf("opening db: %w", err)
	}
	return &Store{DB: rtn}, nil
}

// InitStore opens and migrates the batch log
func InitStore(ctx context.Context, dbPath string) (*Store, error) {
	store, err := MakeStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	err = store.Migrate()
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Printf("[batchlog] initialized\n")
	return store, nil
}

func (s *Store) Migrate() error {
	return runMigrate("batchlog", s.DB.DB, dbfs.BatchLogMigrationFS, migrationsName)
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func WithTx(ctx context.Context, s *Store, fn func(tx *TxWrap) error) error {
	return txwrap.WithTx(ctx, s.DB, fn)
}

func WithTxRtn[RT any](ctx context.Context, s *Store, fn func(tx *TxWrap) (RT, error)) (RT, error) {
	return txwrap.WithTxRtn(ctx, s.DB, fn)
}

func migrationVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("database is dirty at version %d", version)
	}
	return version, nil
}

func runMigrate(storeName string, db *sql.DB, migrationFS fs.FS, dirName string) error {
	src, err := iofs.New(migrationFS, dirName)
	if err != nil {
		return fmt.Errorf("opening %s migrations: %w", storeName, err)
	}
	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("making %s migration driver: %w", storeName, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("making %s migration: %w", storeName, err)
	}
	oldVersion, err := migrationVersion(m)
	if err != nil {
		return fmt.Errorf("%s: %w", storeName, err)
	}
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrating %s: %w", storeName, err)
	}
	newVersion, err := migrationVersion(m)
	if err != nil {
		return fmt.Errorf("%s: %w", storeName, err)
	}
	if newVersion != oldVersion {
		log.Printf("[db] %s migrated, version %d -> %d\n", storeName, oldVersion, newVersion)
	}
	return nil
}
