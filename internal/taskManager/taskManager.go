// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package taskManager

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

var s gocron.Scheduler

// SchemaRefresher re-reads information_schema for the tables the
// pipeline has seen so far.
type SchemaRefresher func(ctx context.Context) error

// StatsPrinter logs a snapshot of aggregation counters.
type StatsPrinter func()

// Start builds the scheduler and registers the schema-refresh job (every
// schemaRefreshEvery) and the stats-printing job (every 30 seconds),
// then starts it running in the background.
func Start(schemaRefreshEvery time.Duration, refresh SchemaRefresher, printStats StatsPrinter) error {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		log.Fatalf("taskManager: could not create gocron scheduler: %v", err)
	}

	if schemaRefreshEvery > 0 && refresh != nil {
		if _, err := s.NewJob(
			gocron.DurationJob(schemaRefreshEvery),
			gocron.NewTask(func() {
				if err := refresh(context.Background()); err != nil {
					log.Errorf("taskManager: schema refresh failed: %v", err)
				}
			}),
		); err != nil {
			return err
		}
	}

	if printStats != nil {
		if _, err := s.NewJob(
			gocron.DurationJob(30*time.Second),
			gocron.NewTask(printStats),
		); err != nil {
			return err
		}
	}

	s.Start()
	return nil
}

func Shutdown() {
	if s != nil {
		s.Shutdown()
	}
}
