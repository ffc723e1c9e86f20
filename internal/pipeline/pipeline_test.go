package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetcleo/cdc-pipeline/internal/uploader"
	"github.com/meetcleo/cdc-pipeline/internal/wal"
)

type fakeS3 struct{}

func (fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func TestRunParsesAggregatesAndUploadsOnRotation(t *testing.T) {
	dir := t.TempDir()
	staged := make(chan uploader.StagedFile, 10)

	p, err := New(Config{
		WalDir:           dir,
		ShardDir:         dir,
		RotationInterval: time.Millisecond,
		S3Bucket:         "bucket",
		S3Prefix:         "prefix",
		StartEpoch:       1,
	}, fakeS3{}, staged)
	require.NoError(t, err)

	input := strings.Join([]string{
		"BEGIN 1",
		`table public.orders: INSERT: id[integer]:1 name[text]:'a'`,
		"COMMIT 1",
	}, "\n") + "\n"

	time.Sleep(2 * time.Millisecond) // ensure the rotation interval has elapsed before the next BEGIN
	more := strings.Join([]string{
		"BEGIN 2",
		`table public.orders: INSERT: id[integer]:2 name[text]:'b'`,
		"COMMIT 2",
		"BEGIN 3", // trailing line so the rotator's post-commit swap check runs
	}, "\n") + "\n"

	err = p.Run(context.Background(), strings.NewReader(input+more))
	require.NoError(t, err)
	p.Shutdown(2 * time.Second)

	select {
	case sf := <-staged:
		assert.Equal(t, "bucket", sf.Bucket)
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one staged file after an epoch rotation")
	}
}

func TestRunStopsOnFatalParseErrorButStillWritesTheLineToWal(t *testing.T) {
	dir := t.TempDir()
	staged := make(chan uploader.StagedFile, 10)

	p, err := New(Config{
		WalDir:           dir,
		ShardDir:         dir,
		RotationInterval: time.Hour,
		S3Bucket:         "bucket",
		S3Prefix:         "prefix",
		StartEpoch:       1,
	}, fakeS3{}, staged)
	require.NoError(t, err)

	input := "this line matches no recognized prefix\n"
	err = p.Run(context.Background(), strings.NewReader(input))
	require.Error(t, err, "a malformed/unrecognized line must be fatal, not silently skipped")

	lines, rerr := wal.ReadLines(dir, 1)
	require.NoError(t, rerr)
	require.Len(t, lines, 1, "the line must be durably written to the WAL even though it failed to parse")
	assert.Equal(t, "this line matches no recognized prefix", lines[0])
}
