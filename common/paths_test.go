package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFileName(t *testing.T) {
	testCases := []struct {
		name      string
		basename  string
		dataDir   string
		sub       string
		extension string
		expected  string
	}{
		{"bare name", "counter", "/data", "contracts", ".pdo", "/data/contracts/counter.pdo"},
		{"extension present", "counter.pdo", "/data", "contracts", ".pdo", "/data/contracts/counter.pdo"},
		{"no sub", "counter", "/data", "", ".pdo", "/data/counter.pdo"},
		{"default data dir", "counter", "", "", ".pdo", filepath.Join(DefaultDataDirectory, "counter.pdo")},
		{"absolute path", "/tmp/counter.pdo", "/data", "contracts", ".pdo", "/tmp/counter.pdo"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, BuildFileName(tc.basename, tc.dataDir, tc.sub, tc.extension))
		})
	}
}

func TestBuildSimpleFileName(t *testing.T) {
	assert.Equal(t, "client.toml", BuildSimpleFileName("client", ".toml"))
	assert.Equal(t, "client.toml", BuildSimpleFileName("client.toml", ".toml"))

	abs := BuildSimpleFileName("./client", ".toml")
	assert.True(t, filepath.IsAbs(abs))
	assert.Equal(t, "client.toml", filepath.Base(abs))
}

func TestFindFileInPath(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "pcontract.toml"), []byte("x"), 0644))

	found, err := FindFileInPath("pcontract.toml", []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "pcontract.toml"), found)

	_, err = FindFileInPath("missing.toml", []string{first, second})
	require.ErrorIs(t, err, ErrFileNotFound)

	found, err = FindFileInPath(filepath.Join(second, "pcontract.toml"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "pcontract.toml"), found)

	_, err = FindFileInPath(filepath.Join(first, "pcontract.toml"), []string{second})
	require.ErrorIs(t, err, ErrFileNotFound)
}
