package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEmitsForestJSONL(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--max-steps", "1000", "1"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	require.NotEmpty(t, lines)

	paths := 0
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["type"] != "nodeLabel" {
			paths++
		}
	}
	assert.Equal(t, 3, paths) // S, K, I
}

func TestRunNoLabelsOmitsLabelRecords(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--no-labels", "1"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout.String(), "nodeLabel")
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"0"},
		{"-3"},
		{"abc"},
		{"1", "2"},
		{"--bogus-flag", "1"},
	}
	for _, args := range cases {
		var stdout, stderr bytes.Buffer
		code := run(args, &stdout, &stderr)
		assert.Equalf(t, 1, code, "args=%v", args)
		assert.Emptyf(t, stdout.String(), "args=%v", args)
	}
}

func TestRunProgressGoesToStderrNotStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--progress", "--no-labels", "1"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "evaluated")
	assert.NotContains(t, stdout.String(), "evaluated")
}
