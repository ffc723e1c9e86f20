package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTable(t *testing.T) {
	s, tbl, err := splitTable("public.orders")
	require.NoError(t, err)
	assert.Equal(t, "public", s)
	assert.Equal(t, "orders", tbl)
}

func TestSplitTableRejectsMissingSchema(t *testing.T) {
	_, _, err := splitTable("orders")
	assert.Error(t, err)
}

func TestCacheColumnsEmptyBeforeRefresh(t *testing.T) {
	c := NewCache()
	assert.Nil(t, c.Columns("public", "orders"))
}
