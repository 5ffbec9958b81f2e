package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immivault/immivault/internal/compose"
	"github.com/immivault/immivault/internal/config"
)

func newTestClient(t *testing.T, envContent, composeContent string) *Client {
	t.Helper()
	dir := t.TempDir()

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(envContent), 0o600))
	cfg, err := config.Load(envPath)
	require.NoError(t, err)

	composePath := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(composePath, []byte(composeContent), 0o600))
	stack, err := compose.Load(composePath)
	require.NoError(t, err)

	return &Client{
		cfg:   cfg,
		stack: stack,
		log:   zerolog.Nop(),
		quiet: true,
	}
}

func TestResolvePathsTopologyOverridesEnvDefault(t *testing.T) {
	c := newTestClient(t,
		"UPLOAD_LOCATION=/data/lib\n",
		`
services:
  immich-server:
    container_name: immich_server
    volumes:
      - /data/lib:/data
  database:
    container_name: immich_postgres
    volumes:
      - /data/pg:/var/lib/postgresql/data
`)

	paths, err := c.ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, "/data/lib", paths.UploadLocation)
	assert.Equal(t, "/data/pg", paths.DBDataLocation)
}

func TestResolvePathsExpandsTopologyVariables(t *testing.T) {
	c := newTestClient(t,
		"UPLOAD_LOCATION=/srv/photos\nDB_DATA_LOCATION=/srv/pg\n",
		`
services:
  immich-server:
    volumes:
      - ${UPLOAD_LOCATION}:/data
  database:
    volumes:
      - ${DB_DATA_LOCATION}:/var/lib/postgresql/data
`)

	paths, err := c.ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, "/srv/photos", paths.UploadLocation)
	assert.Equal(t, "/srv/pg", paths.DBDataLocation)
}

func TestResolvePathsFallsBackToEnvDefaults(t *testing.T) {
	c := newTestClient(t,
		"UPLOAD_LOCATION=/from/env\n",
		"services:\n  immich-server:\n    image: x\n")

	paths, err := c.ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, "/from/env", paths.UploadLocation)
	// No DB_DATA_LOCATION declared anywhere: built-in relative default,
	// made absolute.
	assert.True(t, filepath.IsAbs(paths.DBDataLocation))
	assert.Equal(t, "postgres", filepath.Base(paths.DBDataLocation))
}

func TestResolvePathsReportsCriticalFolders(t *testing.T) {
	upload := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(upload, "library"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(upload, "profile"), 0o755))

	c := newTestClient(t,
		"UPLOAD_LOCATION="+upload+"\n",
		"services:\n  immich-server:\n    volumes:\n      - ${UPLOAD_LOCATION}:/data\n")

	paths, err := c.ResolvePaths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(upload, "library"),
		filepath.Join(upload, "profile"),
	}, paths.CriticalFolders)
}

func TestDBContainerFromTopology(t *testing.T) {
	c := newTestClient(t, "",
		"services:\n  database:\n    container_name: my_postgres\n")
	assert.Equal(t, "my_postgres", c.dbContainer())

	c = newTestClient(t, "", "services:\n  immich-server:\n    image: x\n")
	assert.Equal(t, "immich_postgres", c.dbContainer())
}

func TestDBUsername(t *testing.T) {
	c := newTestClient(t, "DB_USERNAME=immich\n", "services: {}\n")
	assert.Equal(t, "immich", c.dbUsername())

	c = newTestClient(t, "", "services: {}\n")
	assert.Equal(t, "postgres", c.dbUsername())
}
