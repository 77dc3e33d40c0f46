package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(context.Background(), []string{"-dir", dir, "create", "add_delivery_slots"}))

	matches, err := filepath.Glob(filepath.Join(dir, "*_add_delivery_slots.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, run(context.Background(), []string{"-dir", dir, "validate"}))
}

func TestRunValidateReportsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_broken.sql"), []byte("-- +goose Down\nSELECT 1;\n"), 0o644))
	assert.Error(t, run(context.Background(), []string{"-dir", dir, "validate"}))
}

func TestRunUsageErrors(t *testing.T) {
	for _, argv := range [][]string{
		nil,
		{"explode"},
		{"create"},
		{"-nope"},
	} {
		err := run(context.Background(), argv)
		assert.True(t, errors.Is(err, errUsage), "argv %v: %v", argv, err)
	}
}
