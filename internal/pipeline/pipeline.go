// Package pipeline wires the parser, wal, aggregator, filewriter,
// uploader and warehouse stages together into one running process:
// bounded channels between stages, a generic per-table worker lane, and
// cooperative (channel-close) shutdown. Grounded on
// original_source/src/input_manager.rs for the overall orchestration and
// file_uploader_threads.rs's GenericTableThreadSplitter for the worker
// lane shape.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/meetcleo/cdc-pipeline/internal/aggregator"
	"github.com/meetcleo/cdc-pipeline/internal/filewriter"
	"github.com/meetcleo/cdc-pipeline/internal/parser"
	"github.com/meetcleo/cdc-pipeline/internal/uploader"
	"github.com/meetcleo/cdc-pipeline/internal/wal"
	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

// Pipeline owns the long-lived state threading input lines through to
// staged uploads: the parser/aggregator pair, the WAL rotator, and the
// uploader fan-out. The warehouse-apply stage consumes Uploader's staged
// channel independently (see cmd/cdc-pipeline).
type Pipeline struct {
	parser     *parser.Parser
	aggregator *aggregator.ChangeProcessing
	rotator    *wal.Rotator
	upload     *uploader.Uploader
	shardDir   string
	bucket     string
	prefix     string

	wg   sync.WaitGroup
	done chan struct{}
}

// Config bundles the knobs New needs, mirroring config.Keys without
// importing internal/config directly so this package stays testable in
// isolation.
type Config struct {
	WalDir           string
	ShardDir         string
	RotationInterval time.Duration
	TableBlacklist   []string
	TargetSchema     string
	S3Bucket         string
	S3Prefix         string
	StartEpoch       uint64
}

func New(cfg Config, client uploader.S3API, staged chan<- uploader.StagedFile) (*Pipeline, error) {
	rotator, err := wal.NewRotator(cfg.WalDir, cfg.RotationInterval, cfg.StartEpoch)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		parser:     parser.NewParser(cfg.TableBlacklist, cfg.TargetSchema),
		aggregator: aggregator.NewChangeProcessing(),
		rotator:    rotator,
		upload:     uploader.New(client, staged),
		shardDir:   cfg.ShardDir,
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
		done:       make(chan struct{}),
	}, nil
}

// Aggregator exposes the aggregation state so taskManager can wire
// PrintStats into the periodic scheduler.
func (p *Pipeline) Aggregator() *aggregator.ChangeProcessing {
	return p.aggregator
}

// Run reads lines from r until EOF or ctx is cancelled,
// writing each to the WAL before it is parsed (so a crash never loses a
// line the parser already consumed), then feeding it through the parser
// and aggregator, and flushing+uploading a table's accumulated rows
// whenever the rotator swaps epochs. It returns when r is exhausted, ctx
// is cancelled, or a line fails to parse or aggregate: a malformed line,
// an unrecognized declared type, or a primary-key violation is a fatal
// condition, not a skip.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	p.aggregator.RegisterWalEpoch(p.rotator.Current().Number)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		if swap, swapped, err := p.rotator.ObserveLine(); err != nil {
			log.Errorf("pipeline: rotation failed: %v", err)
		} else if swapped {
			p.flushEpoch(swap)
		}

		if err := p.rotator.Current().WriteLine(line); err != nil {
			log.Errorf("pipeline: wal write failed: %v", err)
		}

		parsed, err := p.parser.Parse(line)
		if err != nil {
			return fmt.Errorf("pipeline: fatal parse error on line %q: %w", line, err)
		}

		if _, isCommit := parsed.(parser.CommitLine); isCommit {
			p.rotator.ObserveCommit()
		}

		if err := p.aggregator.AddChange(parsed); err != nil {
			return fmt.Errorf("pipeline: fatal aggregation error on line %q: %w", line, err)
		}
	}
	return scanner.Err()
}

// flushEpoch drains the aggregator's collapsed rows for the epoch that
// just closed, writes each table's shard files, and enqueues them for
// upload, then releases the closed WAL epoch.
func (p *Pipeline) flushEpoch(swap wal.SwapWal) {
	p.aggregator.RegisterWalEpoch(swap.Opened.Number)
	byTable := p.aggregator.DrainFinalChanges()

	for table, rows := range byTable {
		paths, err := filewriter.WriteTable(p.shardDir, table, rows)
		if err != nil {
			log.Errorf("pipeline: write shards for %s: %v", table, err)
			continue
		}
		for _, path := range paths {
			p.upload.Enqueue(table, p.bucket, p.prefix, filewriter.KindOfShardPath(path), path)
		}
	}

	if err := swap.Closed.Release(true); err != nil {
		log.Errorf("pipeline: release epoch %d: %v", swap.Closed.Number, err)
	}
}

// Shutdown stops accepting new uploads and waits for in-flight ones to
// finish.
func (p *Pipeline) Shutdown(timeout time.Duration) {
	p.upload.Shutdown(timeout)
	close(p.done)
}
