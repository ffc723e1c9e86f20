// Package uploader ships finalized shard files to S3, one worker lane
// per table so a slow or throttled table never blocks another table's
// uploads. Grounded on original_source/src/file_uploader.rs and
// file_uploader_threads.rs's GenericTableThreadSplitter pattern, whose
// channel+goroutine+WaitGroup shape also follows the teacher's
// internal/repository/archiveWorker.go.
package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"

	"github.com/meetcleo/cdc-pipeline/internal/parser"
	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

// StagedFile is a shard file that has been durably uploaded and is ready
// for the warehouse to COPY from S3.
type StagedFile struct {
	Table  parser.TableName
	Kind   string // "insert", "update", or "delete", mirrors filewriter.Kind
	Bucket string
	Key    string
}

// S3API is the subset of the S3 client the uploader calls, narrowed so
// tests can substitute a fake without standing up real AWS credentials.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// jobQueueDepth bounds each table's upload lane; a table that falls this
// far behind blocks its producer rather than growing memory unboundedly.
const jobQueueDepth = 1000

type uploadJob struct {
	path   string
	kind   string
	bucket string
	prefix string
}

// Uploader owns one bounded channel and one consumer goroutine per table
// name it has seen, fanning work out across tables while still bounding
// total in-flight uploads per table.
type Uploader struct {
	client S3API
	staged chan<- StagedFile

	mu     sync.Mutex
	lanes  map[parser.TableName]chan uploadJob
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(client S3API, staged chan<- StagedFile) *Uploader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Uploader{
		client: client,
		staged: staged,
		lanes:  make(map[parser.TableName]chan uploadJob),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue schedules path for upload under the given table's lane,
// starting that lane's worker goroutine on first use.
func (u *Uploader) Enqueue(table parser.TableName, bucket, prefix, kind, path string) {
	u.mu.Lock()
	lane, ok := u.lanes[table]
	if !ok {
		lane = make(chan uploadJob, jobQueueDepth)
		u.lanes[table] = lane
		u.wg.Add(1)
		go u.runLane(table, lane)
	}
	u.mu.Unlock()
	lane <- uploadJob{path: path, kind: kind, bucket: bucket, prefix: prefix}
}

func (u *Uploader) runLane(table parser.TableName, lane chan uploadJob) {
	defer u.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("uploader: lane %s panicked: %v", table, r)
		}
	}()

	for job := range lane {
		if err := u.upload(table, job); err != nil {
			log.Errorf("uploader: table %s: giving up on %s after retries: %v", table, job.path, err)
			continue
		}
	}
}

func (u *Uploader) upload(table parser.TableName, job uploadJob) error {
	key := filepath.Join(job.prefix, filepath.Base(job.path))

	operation := func() error {
		f, err := os.Open(job.path)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("uploader: open %s: %w", job.path, err))
		}
		defer f.Close()

		_, err = u.client.PutObject(u.ctx, &s3.PutObjectInput{
			Bucket: aws.String(job.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		return err
	}

	bo := backoff.NewExponentialBackOff()
	if err := backoff.Retry(operation, backoff.WithContext(bo, u.ctx)); err != nil {
		return err
	}

	if err := os.Remove(job.path); err != nil {
		log.Warnf("uploader: uploaded %s but could not remove local copy: %v", job.path, err)
	}

	u.staged <- StagedFile{Table: table, Kind: job.kind, Bucket: job.bucket, Key: key}
	return nil
}

// Shutdown closes every lane and waits (up to timeout) for in-flight
// uploads to finish, mirroring the pipeline's cooperative, channel-close
// shutdown rather than hard cancellation.
func (u *Uploader) Shutdown(timeout time.Duration) {
	u.mu.Lock()
	for _, lane := range u.lanes {
		close(lane)
	}
	u.mu.Unlock()

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnf("uploader: shutdown timed out after %s, cancelling in-flight uploads", timeout)
		u.cancel()
		<-done
	}
}
