package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferBarTracksBytes(t *testing.T) {
	bar := transferBar(2048, "Uploading payload.tar")
	assert.Equal(t, int64(2048), bar.GetMax64())

	// The bar sits on the write side of the copy, so bytes written are
	// bytes transferred.
	n, err := bar.Write(make([]byte, 512))
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, float64(512), bar.State().CurrentBytes)
}
