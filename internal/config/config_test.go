package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCSVHandlesEmptyAndTrailingCommas(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b"}, splitCSV("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitCSV("a,b,"))
}

func TestOptionalFallsBackToDefault(t *testing.T) {
	t.Setenv("CDC_TEST_OPTIONAL_KEY", "")
	assert.Equal(t, "fallback", optional("CDC_TEST_OPTIONAL_KEY_UNSET", "fallback"))
}

func TestOptionalBoolParsesTrueFalse(t *testing.T) {
	t.Setenv("CDC_TEST_BOOL", "true")
	assert.True(t, optionalBool("CDC_TEST_BOOL", false))
	t.Setenv("CDC_TEST_BOOL", "false")
	assert.False(t, optionalBool("CDC_TEST_BOOL", true))
}

func TestOptionalDurationParsesGoDuration(t *testing.T) {
	t.Setenv("CDC_TEST_DURATION", "90s")
	d := optionalDuration("CDC_TEST_DURATION", 0)
	assert.Equal(t, "1m30s", d.String())
}
