package warehouse

import (
	"testing"

	"github.com/meetcleo/cdc-pipeline/internal/schema"
	"github.com/meetcleo/cdc-pipeline/internal/uploader"
	"github.com/stretchr/testify/assert"
)

func TestStagingTableName(t *testing.T) {
	assert.Equal(t, "stg_orders", stagingTableName("orders"))
}

func TestSplitQualified(t *testing.T) {
	s, tbl := splitQualified("public.orders")
	assert.Equal(t, "public", s)
	assert.Equal(t, "orders", tbl)
}

func TestIDColumnTypeDefaultsToBigint(t *testing.T) {
	cache := schema.NewCache()
	assert.Equal(t, "bigint", idColumnType(cache, "public", "orders"))
}

func TestApplySkipsBlacklistedTable(t *testing.T) {
	a := NewApplier(nil, schema.NewCache(), "arn:aws:iam::acct:role/x", SkipTables{"public.secret": true}, "")
	err := a.Apply(nil, uploader.StagedFile{Table: "public.secret"})
	assert.NoError(t, err)
}

func TestApplySkipsUpdateStagedFiles(t *testing.T) {
	a := NewApplier(nil, schema.NewCache(), "arn:aws:iam::acct:role/x", nil, "")
	err := a.Apply(nil, uploader.StagedFile{Table: "public.orders", Kind: "update"})
	assert.NoError(t, err, "update staged files are explicitly skipped, not guessed at")
}

func TestCopySQLIncludesCredentialsAndOptions(t *testing.T) {
	a := NewApplier(nil, schema.NewCache(), "arn:aws:iam::acct:role/x", nil, "")
	sql := a.copySQL("stg_orders", uploader.StagedFile{Bucket: "b", Key: "k"})
	assert.Contains(t, sql, "COPY stg_orders FROM 's3://b/k'")
	assert.Contains(t, sql, "CREDENTIALS 'arn:aws:iam::acct:role/x'")
	assert.Contains(t, sql, "EMPTYASNULL BLANKSASNULL")
}
