package files

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	ok, err := Exists(fs, "/artifacts/foo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, WriteString(fs, "/artifacts/foo/build.log", "done"))
	ok, err = Exists(fs, "/artifacts/foo")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteStringCreatesParents(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteString(fs, "/artifacts/foo/linux-64/build.log", "log line"))

	content, err := afero.ReadFile(fs, "/artifacts/foo/linux-64/build.log")
	require.NoError(t, err)
	assert.Equal(t, "log line", string(content))
}

func TestRemoveAllIfExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Absent path is not an error.
	require.NoError(t, RemoveAllIfExists(fs, "/artifacts/foo"))

	require.NoError(t, EnsureDir(fs, "/artifacts/foo/linux-64"))
	require.NoError(t, RemoveAllIfExists(fs, "/artifacts/foo"))
	ok, err := Exists(fs, "/artifacts/foo")
	require.NoError(t, err)
	assert.False(t, ok)
}
