package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stores.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadLocationsCSV(t *testing.T) {
	path := writeTempCSV(t, `id,name,lat,lon,opened_at
s1,Campus,39.9980,-83.0085,2019-06-01
s2,Polaris,40.0820,-82.9820,
`)

	locs, err := readLocationsCSV(path)
	require.NoError(t, err)
	require.Len(t, locs, 2)

	assert.Equal(t, "s1", locs[0].ID)
	assert.Equal(t, "Campus", locs[0].Name)
	assert.InDelta(t, 39.9980, locs[0].Lat, 1e-9)
	assert.Equal(t, 2019, locs[0].OpenedAt.Year())
	assert.True(t, locs[1].OpenedAt.IsZero())
}

func TestReadLocationsCSV_SkipsBadRows(t *testing.T) {
	path := writeTempCSV(t, `id,name,lat,lon
s1,Campus,39.9980,-83.0085
s2,Broken,not-a-number,-82.98
s3
`)

	locs, err := readLocationsCSV(path)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "s1", locs[0].ID)
}

func TestReadLocationsCSV_Empty(t *testing.T) {
	path := writeTempCSV(t, "id,name,lat,lon\n")

	_, err := readLocationsCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestReadLocationsCSV_Missing(t *testing.T) {
	_, err := readLocationsCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
