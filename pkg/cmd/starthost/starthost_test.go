package starthost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSNameFromFlags(t *testing.T) {
	_, err := OSNameFromFlags(false, false)
	require.Error(t, err)

	_, err = OSNameFromFlags(true, true)
	require.Error(t, err)

	name, err := OSNameFromFlags(true, false)
	require.NoError(t, err)
	assert.Equal(t, "linux", name)

	name, err = OSNameFromFlags(false, true)
	require.NoError(t, err)
	assert.Equal(t, "windows", name)
}

func TestResolveToken(t *testing.T) {
	token, err := ResolveToken("explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", token)

	t.Setenv("GITHUB_TOKEN", "from-env")
	token, err = ResolveToken("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)

	t.Setenv("GITHUB_TOKEN", "")
	_, err = ResolveToken("")
	require.Error(t, err)
}
