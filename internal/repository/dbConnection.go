// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the warehouse connection pool. The warehouse is
// always a Postgres-wire-protocol target (Redshift included), so unlike
// the teacher there is only one driver branch.
type DBConnection struct {
	DB *sqlx.DB
}

// Connect opens the pool exactly once; subsequent calls are no-ops, so
// every package can call Connect with the same DSN during startup
// without coordinating who goes first.
func Connect(dsn string) {
	dbConnOnce.Do(func() {
		sql.Register("postgresWithHooks", sqlhooks.Wrap(&pq.Driver{}, &Hooks{}))
		dbHandle, err := sqlx.Open("postgresWithHooks", dsn)
		if err != nil {
			log.Fatalf("repository: sqlx.Open() error: %v", err)
		}

		dbHandle.SetConnMaxLifetime(time.Minute * 3)
		dbHandle.SetMaxOpenConns(10)
		dbHandle.SetMaxIdleConns(10)

		if err := dbHandle.Ping(); err != nil {
			log.Fatalf("repository: ping warehouse: %v", err)
		}

		dbConnInstance = &DBConnection{DB: dbHandle}
	})
}

// GetConnection returns the process-wide warehouse pool. It exits the
// process via log.Fatalf if called before Connect, a programming error rather than a runtime
// condition the caller could recover from.
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Fatalf("repository: database connection not initialized")
	}
	return dbConnInstance
}
