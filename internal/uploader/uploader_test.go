package uploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/meetcleo/cdc-pipeline/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu        sync.Mutex
	calls     int
	failUntil int
	err       error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return nil, errors.New("transient failure")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func tempShard(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "public.orders.insert.0.csv.gz")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,a\n"), 0o644))
	return path
}

func TestUploadSucceedsAndEmitsStagedFile(t *testing.T) {
	client := &fakeS3{}
	staged := make(chan StagedFile, 1)
	u := New(client, staged)

	path := tempShard(t)
	u.Enqueue(parser.InternTable("public.orders"), "bucket", "prefix", "insert", path)
	u.Shutdown(2 * time.Second)

	select {
	case sf := <-staged:
		assert.Equal(t, "bucket", sf.Bucket)
		assert.Contains(t, sf.Key, "public.orders.insert.0.csv.gz")
	default:
		t.Fatal("expected a staged file")
	}

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "local shard should be removed after upload")
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	client := &fakeS3{failUntil: 2}
	staged := make(chan StagedFile, 1)
	u := New(client, staged)

	path := tempShard(t)
	u.Enqueue(parser.InternTable("public.orders"), "bucket", "prefix", "insert", path)
	u.Shutdown(2 * time.Second)

	select {
	case <-staged:
	default:
		t.Fatal("expected a staged file after retries succeed")
	}
	assert.GreaterOrEqual(t, client.calls, 3)
}

func TestSeparateTablesGetIndependentLanes(t *testing.T) {
	client := &fakeS3{}
	staged := make(chan StagedFile, 2)
	u := New(client, staged)

	u.Enqueue(parser.InternTable("public.orders"), "bucket", "prefix", "insert", tempShard(t))
	u.Enqueue(parser.InternTable("public.users"), "bucket", "prefix", "insert", tempShard(t))
	u.Shutdown(2 * time.Second)

	assert.Len(t, staged, 2)
}
