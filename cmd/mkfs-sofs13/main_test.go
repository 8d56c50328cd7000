package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"1024": 1024,
		"16K":  16 * 1024,
		"16k":  16 * 1024,
		"4M":   4 * 1024 * 1024,
		"1G":   1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseSizeRejectsEmpty(t *testing.T) {
	_, err := parseSize("")
	assert.Error(t, err)
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	_, err := parseSize("abc")
	assert.Error(t, err)
}
