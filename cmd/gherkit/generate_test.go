package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSteps(t *testing.T) {
	steps, source, err := readSteps("-", strings.NewReader("\n1. Click Learn More\n2. Verify popup\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "stdin", source)
	assert.Equal(t, "1. Click Learn More\n2. Verify popup", steps)

	path := filepath.Join(t.TempDir(), "steps.txt")
	require.NoError(t, os.WriteFile(path, []byte("Click Cancel"), 0o644))
	steps, source, err = readSteps(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, "Click Cancel", steps)

	_, _, err = readSteps("-", strings.NewReader("  \n\t"))
	assert.ErrorContains(t, err, "empty")

	_, _, err = readSteps(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestGenerateFlagValidation(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"--url", "https://example.test", "--headless", "maybe"}, "--headless"},
		{[]string{"--url", "https://example.test", "--mode", "manual"}, "--mode"},
		{[]string{"--url", "https://example.test", "--mode", "custom"}, "--custom-test"},
		{[]string{}, "url"},
	}
	for _, tc := range cases {
		cmd := newGenerateCmd()
		cmd.SetArgs(tc.args)
		cmd.SetOut(&strings.Builder{})
		cmd.SetErr(&strings.Builder{})
		err := cmd.Execute()
		require.Error(t, err, tc.args)
		assert.Contains(t, err.Error(), tc.want)
	}
}
