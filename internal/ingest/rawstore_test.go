package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawStoreRoundTrip(t *testing.T) {
	rs, err := NewRawStore(filepath.Join(t.TempDir(), "raw"))
	require.NoError(t, err)

	wl := []float64{4000, 4002.5, 4005}
	fx := []float64{1.25, 0.5, -0.125}
	require.NoError(t, rs.Write(42, wl, fx))
	assert.True(t, rs.Exists(42))

	gotWL, gotFX, err := rs.Read(42)
	require.NoError(t, err)
	assert.Equal(t, wl, gotWL)
	assert.Equal(t, fx, gotFX)
}

func TestRawStoreOverwrite(t *testing.T) {
	rs, err := NewRawStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, rs.Write(7, []float64{1, 2}, []float64{3, 4}))
	require.NoError(t, rs.Write(7, []float64{5, 6}, []float64{7, 8}))

	wl, fx, err := rs.Read(7)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, wl)
	assert.Equal(t, []float64{7, 8}, fx)

	// No temp files left behind.
	entries, err := os.ReadDir(rs.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "7.csv", entries[0].Name())
}

func TestRawStoreLengthMismatch(t *testing.T) {
	rs, err := NewRawStore(t.TempDir())
	require.NoError(t, err)

	err = rs.Write(1, []float64{1, 2}, []float64{3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lengths differ")
}

func TestRawStoreRemovesTempFileOnFailure(t *testing.T) {
	rs, err := NewRawStore(t.TempDir())
	require.NoError(t, err)

	// Occupy the destination path with a non-empty directory so the
	// finalizing rename fails.
	require.NoError(t, os.MkdirAll(filepath.Join(rs.Path(7), "x"), 0750))

	err = rs.Write(7, []float64{1, 2}, []float64{3, 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finalize")

	_, statErr := os.Stat(rs.Path(7) + ".tmp")
	assert.True(t, os.IsNotExist(statErr), "temp file left behind: %v", statErr)
}

func TestRawStoreReadMissing(t *testing.T) {
	rs, err := NewRawStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, rs.Exists(99))
	_, _, err = rs.Read(99)
	assert.Error(t, err)
}

func TestRawStoreReadEmptyFile(t *testing.T) {
	rs, err := NewRawStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(rs.Path(5), []byte("wavelength_angstrom,flux\n"), 0600))

	_, _, err = rs.Read(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no samples")
}
