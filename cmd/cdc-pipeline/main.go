// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/gops/agent"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meetcleo/cdc-pipeline/internal/config"
	"github.com/meetcleo/cdc-pipeline/internal/metrics"
	"github.com/meetcleo/cdc-pipeline/internal/pipeline"
	"github.com/meetcleo/cdc-pipeline/internal/repository"
	"github.com/meetcleo/cdc-pipeline/internal/schema"
	"github.com/meetcleo/cdc-pipeline/internal/taskManager"
	"github.com/meetcleo/cdc-pipeline/internal/uploader"
	"github.com/meetcleo/cdc-pipeline/internal/wal"
	"github.com/meetcleo/cdc-pipeline/internal/warehouse"
	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

const version = "0.1.0"

// shuttingDown mirrors the original implementation's shutdown_handler.rs
// AtomicBool: a signal handler flips it, and the input-reading loop
// checks it between lines instead of being hard-cancelled mid-line.
var shuttingDown atomic.Bool

func main() {
	cliInit()

	if flagVersion {
		log.Infof("cdc-pipeline %s", version)
		return
	}

	log.SetLogLevel(flagLogLevel)
	config.Init(flagConfigFile)

	instanceID := uuid.NewString()
	log.Infof("main: starting instance %s", instanceID)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Warnf("main: gops agent failed to start: %v", err)
		}
	}

	metrics.Register(prometheus.DefaultRegisterer)

	repository.Connect(config.Keys.WarehouseDSN)
	db := repository.GetConnection().DB

	schemaCache := schema.NewCache()
	skip := make(warehouse.SkipTables, len(config.Keys.WarehouseSkipList))
	for _, t := range config.Keys.WarehouseSkipList {
		skip[t] = true
	}
	applier := warehouse.NewApplier(db, schemaCache, config.Keys.S3CredsArn, skip, config.Keys.TargetSchema)

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Keys.S3Region)}
	if key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("AWS_SESSION_TOKEN"))))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		log.Fatalf("main: load AWS config: %v", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)

	staged := make(chan uploader.StagedFile, 1000)

	startEpoch := resumeEpoch(config.Keys.WalDir)
	pl, err := pipeline.New(pipeline.Config{
		WalDir:           config.Keys.WalDir,
		ShardDir:         config.Keys.WalDir,
		RotationInterval: config.Keys.RotationInterval,
		TableBlacklist:   config.Keys.TableBlacklist,
		TargetSchema:     config.Keys.TargetSchema,
		S3Bucket:         config.Keys.S3Bucket,
		S3Prefix:         config.Keys.S3Prefix,
		StartEpoch:       startEpoch,
	}, s3Client, staged)
	if err != nil {
		log.Fatalf("main: build pipeline: %v", err)
	}

	go applyLoop(applier, staged)

	if err := taskManager.Start(config.Keys.SchemaRefreshEvery,
		func(ctx context.Context) error { return refreshAllTables(ctx, db, schemaCache) },
		pl.Aggregator().PrintStats,
	); err != nil {
		log.Fatalf("main: start task manager: %v", err)
	}

	admin := pipeline.AdminServer(config.Keys.AdminListenAddr)
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			log.Warnf("main: admin server stopped: %v", err)
		}
	}()

	installSignalHandler()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !shuttingDown.Load() {
			time.Sleep(200 * time.Millisecond)
		}
		cancel()
	}()

	input, closeInput := resolveInput()
	defer closeInput()

	runErr := pl.Run(ctx, input)

	pl.Shutdown(30 * time.Second)
	taskManager.Shutdown()
	_ = admin.Close()
	log.Info("main: shutdown complete")

	// A parse error is fatal (malformed input or an unrecognized declared
	// type): drain in-flight uploads/applies above, then exit non-zero so
	// the preserved WAL epoch can be inspected and replayed.
	if runErr != nil && runErr != context.Canceled {
		log.Fatalf("main: fatal pipeline error: %v", runErr)
	}
}

func installSignalHandler() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Infof("main: received %s, shutting down", s)
		shuttingDown.Store(true)
	}()
}

// resolveInput picks stdin or a freshly spawned pg_recvlogical process
// as the source of test_decoding lines, per the -stdin flag or
// READ_FROM_STDIN.
func resolveInput() (io.Reader, func()) {
	if flagStdin || config.Keys.ReadFromStdin {
		return os.Stdin, func() {}
	}

	cmd := exec.Command(config.Keys.PgRecvlogicalCmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Fatalf("main: pipe pg_recvlogical stdout: %v", err)
	}
	if err := cmd.Start(); err != nil {
		log.Fatalf("main: start pg_recvlogical: %v", err)
	}
	return stdout, func() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		_ = cmd.Wait()
	}
}

// resumeEpoch picks the lowest leftover *.wal epoch number from a prior
// run, or 1 to start a fresh sequence. The rotator reopens that epoch
// file and appends new lines to it; the lines already in it are not fed
// back through the parser.
func resumeEpoch(dir string) uint64 {
	numbers, err := wal.ReplayEarliest(dir)
	if err != nil {
		log.Warnf("main: could not scan %s for leftover WAL epochs: %v", dir, err)
		return 1
	}
	if len(numbers) == 0 {
		return 1
	}
	return numbers[0]
}

func applyLoop(applier *warehouse.Applier, staged <-chan uploader.StagedFile) {
	for sf := range staged {
		if err := applier.Apply(context.Background(), sf); err != nil {
			log.Errorf("main: warehouse apply failed for %s/%s: %v", sf.Table, sf.Key, err)
			continue
		}
		metrics.RowsApplied.WithLabelValues(string(sf.Table), sf.Kind).Inc()
	}
}

func refreshAllTables(ctx context.Context, db *sqlx.DB, cache *schema.Cache) error {
	var tables []string
	err := db.SelectContext(ctx, &tables,
		`SELECT table_schema || '.' || table_name FROM information_schema.tables WHERE table_schema NOT IN ('pg_catalog','information_schema')`)
	if err != nil {
		return err
	}
	return cache.Refresh(ctx, db, tables)
}
