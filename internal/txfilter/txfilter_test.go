package txfilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinMaxAge(t *testing.T) {
	f := New(time.Hour)
	f.Now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	assert.True(t, f.Allow(time.Date(2026, 1, 1, 11, 30, 0, 0, time.UTC)))
}

func TestRejectsOlderThanMaxAge(t *testing.T) {
	f := New(time.Hour)
	f.Now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	assert.False(t, f.Allow(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)))
}

func TestZeroTimeAlwaysAllowed(t *testing.T) {
	f := New(time.Hour)
	assert.True(t, f.Allow(time.Time{}))
}

func TestDisabledFilterAllowsEverything(t *testing.T) {
	f := New(0)
	assert.True(t, f.Allow(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
}
