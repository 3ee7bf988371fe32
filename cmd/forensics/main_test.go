package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstat/forensics/internal/graph"
)

func TestGenerateThenValidate(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "dataset.json")

	require.NoError(t, runGenerate(ctx, []string{"-seed", "7", "-population", "80", "-out", out}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	d, err := graph.Decode(f)
	require.NoError(t, err)
	assert.Len(t, d.Nodes, 80)

	assert.NoError(t, runValidate(ctx, []string{out}))
}

func TestValidate_RejectsBrokenDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[{"id":"a","group":"whale"}]}`), 0o644))

	err := runValidate(context.Background(), []string{path})
	var schemaErr *graph.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestExplicitMissingConfigFails(t *testing.T) {
	err := runGenerate(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "nope.yaml")})
	assert.ErrorContains(t, err, "read config file")
}

func TestExport_InvalidFormat(t *testing.T) {
	err := runExport(context.Background(), []string{"-token", "0x1234567890123456789012345678901234567890", "-format", "xml"})
	assert.Error(t, err)
}
