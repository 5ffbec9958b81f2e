package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	c := newTestClient(t,
		"IMMICH_VERSION=v1.119.0\nDB_USERNAME=immich\n",
		"services: {}\n")

	paths := &Paths{
		UploadLocation: "/data/lib",
		DBDataLocation: "/data/pg",
	}
	m := newManifest(c.cfg, "/tmp/work/immich_db_backup_20240101_120000.sql.gz", paths)

	dir := t.TempDir()
	require.NoError(t, writeManifest(dir, m))
	require.True(t, hasManifest(dir))

	got, err := readManifest(dir)
	require.NoError(t, err)

	assert.Equal(t, "immich_db_backup_20240101_120000.sql.gz", got.DatabaseBackup)
	assert.Equal(t, "filesystem", got.FilesystemBackup)
	assert.Equal(t, "v1.119.0", got.ImmichVersion)
	assert.Equal(t, "/data/lib", got.OriginalPaths.UploadLocation)
	assert.Equal(t, "immich", got.EnvVars["DB_USERNAME"])
	assert.NotEmpty(t, got.Timestamp)
}

func TestReadManifestMissing(t *testing.T) {
	_, err := readManifest(t.TempDir())
	assert.Error(t, err)
}
