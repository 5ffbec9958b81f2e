package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immivault/immivault/internal/archive"
	"github.com/immivault/immivault/internal/storage"
)

func TestLocateBackupDir(t *testing.T) {
	extractDir := t.TempDir()
	backupDir := filepath.Join(extractDir, "immich_backup_20240101_120000")
	require.NoError(t, os.MkdirAll(backupDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, manifestFilename), []byte("{}"), 0o600))

	got, err := locateBackupDir(extractDir)
	require.NoError(t, err)
	assert.Equal(t, backupDir, got)
}

func TestLocateBackupDirNoBackupDirectory(t *testing.T) {
	extractDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(extractDir, "unrelated"), 0o755))

	_, err := locateBackupDir(extractDir)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestLocateBackupDirMissingManifest(t *testing.T) {
	extractDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(extractDir, "immich_backup_x"), 0o755))

	_, err := locateBackupDir(extractDir)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestResolveBackupDirRejectsDirWithoutManifest(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")

	_, _, err := c.resolveBackupDir(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidBackup)
}

func TestResolveBackupDirAcceptsValidDir(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFilename), []byte("{}"), 0o600))

	backupDir, extractDir, err := c.resolveBackupDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, backupDir)
	assert.Empty(t, extractDir)
}

func TestResolveBackupDirUnknownLocation(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")

	_, _, err := c.resolveBackupDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestResolveBackupDirExtractsArchive(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")

	// Build a minimal valid backup archive.
	src := filepath.Join(t.TempDir(), "immich_backup_20240101_120000")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, manifestFilename), []byte("{}"), 0o600))

	archivePath := filepath.Join(t.TempDir(), "immich_backup_20240101_120000.tar.gz")
	require.NoError(t, archive.Create(src, archivePath, true))

	backupDir, extractDir, err := c.resolveBackupDir(context.Background(), archivePath)
	require.NoError(t, err)
	require.NotEmpty(t, extractDir)
	t.Cleanup(func() { os.RemoveAll(extractDir) })

	assert.Equal(t, "immich_backup_20240101_120000", filepath.Base(backupDir))
	assert.True(t, hasManifest(backupDir))
}

func TestResolveBackupDirRejectsArchiveWithoutManifest(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")

	src := filepath.Join(t.TempDir(), "immich_backup_20240101_120000")
	require.NoError(t, os.MkdirAll(src, 0o755))

	archivePath := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, archive.Create(src, archivePath, true))

	_, _, err := c.resolveBackupDir(context.Background(), archivePath)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestResolveBackupDirRejectsNonArchiveFile(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")
	store, err := storage.NewLocalStorage(&storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	c.store = store

	// An existing file that is not a .tar.gz must be rejected directly, not
	// treated as a remote archive name.
	location := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(location, []byte("not an archive"), 0o600))

	_, _, err = c.resolveBackupDir(context.Background(), location)
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrArchiveNotFound)
	assert.Contains(t, err.Error(), "not found or invalid")
}

func TestResolveBackupDirFetchesFromBackend(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")
	c.quiet = false

	// Store a valid backup archive under a bare name, as after a remote backup.
	src := filepath.Join(t.TempDir(), "immich_backup_20240101_120000")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, manifestFilename), []byte("{}"), 0o600))

	archivePath := filepath.Join(t.TempDir(), "immich_backup_20240101_120000.tar.gz")
	require.NoError(t, archive.Create(src, archivePath, true))

	store, err := storage.NewLocalStorage(&storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	c.store = store

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	name := filepath.Base(archivePath)
	require.NoError(t, store.Store(context.Background(), &storage.Archive{
		Name:       name,
		Metadata:   storage.Metadata{Name: name, Size: info.Size()},
		DataReader: f,
	}))
	require.NoError(t, f.Close())

	backupDir, extractDir, err := c.resolveBackupDir(context.Background(), name)
	require.NoError(t, err)
	require.NotEmpty(t, extractDir)
	t.Cleanup(func() { os.RemoveAll(extractDir) })

	assert.Equal(t, "immich_backup_20240101_120000", filepath.Base(backupDir))
	assert.True(t, hasManifest(backupDir))
}

func TestRestoreFilesystemMissingBackup(t *testing.T) {
	c := newTestClient(t, "", "services: {}\n")

	backupDir := t.TempDir()
	manifest := &Manifest{FilesystemBackup: filesystemDir}
	require.NoError(t, writeManifest(backupDir, manifest))

	err := c.restoreFilesystem(backupDir)
	assert.ErrorIs(t, err, ErrFilesystemBackupMissing)
}

func TestRestoreFilesystemReplacesUploadTree(t *testing.T) {
	uploadLocation := filepath.Join(t.TempDir(), "library")
	require.NoError(t, os.MkdirAll(uploadLocation, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uploadLocation, "stale.jpg"), []byte("old"), 0o644))

	c := newTestClient(t, "UPLOAD_LOCATION="+uploadLocation+"\n", "services: {}\n")

	backupDir := t.TempDir()
	require.NoError(t, writeManifest(backupDir, &Manifest{FilesystemBackup: filesystemDir}))
	archived := filepath.Join(backupDir, filesystemDir, uploadMember)
	require.NoError(t, os.MkdirAll(archived, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archived, "restored.jpg"), []byte("new"), 0o644))

	require.NoError(t, c.restoreFilesystem(backupDir))

	_, err := os.Stat(filepath.Join(uploadLocation, "stale.jpg"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(uploadLocation, "restored.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
