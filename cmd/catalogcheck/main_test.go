package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateEmbeddedCatalog(t *testing.T) {
	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog OK: 22 items (2 reserved)")
}

func TestItemsListing(t *testing.T) {
	out, err := run(t, "items")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 23)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, out, "discovery disc_clueRelic")
	assert.Contains(t, out, "reserved")
}

func TestValidateDirectory(t *testing.T) {
	src := filepath.Join("..", "..", "internal", "catalog", "content")
	dir := t.TempDir()
	for _, name := range []string{"items.yaml", "clues.yaml", "discovery.yaml", "rewards.yaml", "riddles.yaml"} {
		data, err := os.ReadFile(filepath.Join(src, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}

	_, err := run(t, "validate", "--dir", dir)
	require.NoError(t, err)

	broken := []byte("items:\n  - id: item_01\n    slot: s1\n    unlock: { kind: discovery, discoveryId: nowhere }\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.yaml"), broken, 0o644))

	_, err = run(t, "validate", "--dir", dir)
	assert.Error(t, err)
}
