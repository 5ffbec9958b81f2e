package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/immivault/immivault/internal/archive"
	"github.com/immivault/immivault/internal/fsutil"
)

// searchPathFix relaxes the search_path reset that pg_dumpall emits back to a
// usable default before the dump is replayed.
const searchPathFix = `s/SELECT pg_catalog.set_config('search_path', '', false);/SELECT pg_catalog.set_config('search_path', 'public, pg_catalog', true);/g`

// Restore rebuilds the deployment from a backup archive, an extracted backup
// directory, or (with a remote backend) a stored archive name. The database
// is reloaded first, then the upload tree, then a best-effort health check
// runs. An extraction directory, if one was created, is always removed.
func (c *Client) Restore(ctx context.Context, location string) (err error) {
	backupDir, extractDir, err := c.resolveBackupDir(ctx, location)
	if err != nil {
		return err
	}
	if extractDir != "" {
		defer func() {
			if rmErr := os.RemoveAll(extractDir); rmErr != nil {
				c.log.Warn().Err(rmErr).Msg("failed to remove extraction directory")
			}
		}()
	}

	defer func() {
		if err != nil {
			c.log.Error().Err(err).Msg("restore failed")
		}
	}()

	if err = c.restoreDatabase(ctx, backupDir); err != nil {
		return err
	}
	if err = c.restoreFilesystem(backupDir); err != nil {
		return err
	}
	c.checkHealth(ctx)

	c.log.Info().Msg("restore completed")
	return nil
}

// resolveBackupDir turns the restore location into a validated backup
// directory, extracting archives to a temporary directory first. The second
// return value names the temporary directory to clean up, if any.
func (c *Client) resolveBackupDir(ctx context.Context, location string) (string, string, error) {
	info, statErr := os.Stat(location)

	switch {
	case statErr == nil && !info.IsDir() && strings.HasSuffix(location, ".tar.gz"):
		return c.extractBackup(location)

	case statErr == nil && !info.IsDir():
		return "", "", fmt.Errorf("backup location not found or invalid: %s", location)

	case statErr == nil && info.IsDir():
		if !hasManifest(location) {
			return "", "", fmt.Errorf("%w: manifest file not found in %s", ErrInvalidBackup, location)
		}
		c.log.Info().Str("dir", location).Msg("restoring from directory")
		return location, "", nil

	case c.store != nil:
		// Not a local path; try the storage backend by archive name.
		path, fetchErr := c.fetchArchive(ctx, location)
		if fetchErr != nil {
			return "", "", fetchErr
		}
		backupDir, extractDir, err := c.extractBackup(path)
		os.Remove(path)
		return backupDir, extractDir, err

	default:
		return "", "", fmt.Errorf("backup location not found or invalid: %s", location)
	}
}

// extractBackup unpacks an archive and locates the single timestamped backup
// directory inside it.
func (c *Client) extractBackup(archivePath string) (string, string, error) {
	c.log.Info().Str("archive", archivePath).Msg("extracting backup archive")

	extractDir, err := os.MkdirTemp("", "immich_restore_")
	if err != nil {
		return "", "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	if err := archive.Extract(archivePath, extractDir, c.quiet); err != nil {
		os.RemoveAll(extractDir)
		return "", "", fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	backupDir, err := locateBackupDir(extractDir)
	if err != nil {
		os.RemoveAll(extractDir)
		return "", "", err
	}
	return backupDir, extractDir, nil
}

// locateBackupDir finds the timestamped backup directory inside an
// extraction directory and validates its manifest.
func locateBackupDir(extractDir string) (string, error) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extraction directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), backupPrefix) {
			backupDir := filepath.Join(extractDir, entry.Name())
			if !hasManifest(backupDir) {
				return "", fmt.Errorf("%w: manifest file not found", ErrInvalidArchive)
			}
			return backupDir, nil
		}
	}
	return "", fmt.Errorf("%w: no backup directory found", ErrInvalidArchive)
}

// fetchArchive downloads a stored archive to a temporary file.
func (c *Client) fetchArchive(ctx context.Context, name string) (string, error) {
	stored, err := c.store.Retrieve(ctx, name)
	if err != nil {
		return "", err
	}
	if closer, ok := stored.DataReader.(io.Closer); ok {
		defer closer.Close()
	}

	f, err := os.CreateTemp("", "immivault-fetch-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	var out io.Writer = f
	if !c.quiet && stored.Metadata.Size > 0 {
		progress := archive.NewProgress(stored.Metadata.Size, "Downloading archive")
		defer progress.Finish()
		out = progress.Writer(f)
	}

	if _, err := io.Copy(out, stored.DataReader); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to download archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}

// restoreDatabase tears the stack down, brings up only the database
// container and replays the dump into it.
func (c *Client) restoreDatabase(ctx context.Context, backupDir string) error {
	manifest, err := readManifest(backupDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	dumpFile := filepath.Join(backupDir, manifest.DatabaseBackup)
	if _, err := os.Stat(dumpFile); err != nil {
		return fmt.Errorf("%w: database backup file not found: %s", ErrInvalidBackup, dumpFile)
	}

	dbContainer := c.dbContainer()

	c.log.Info().Msg("tearing down services")
	c.run.RunBestEffort(ctx, "docker", c.composeArgs("down", "-v")...)

	c.log.Info().Msg("recreating containers")
	if err := c.run.Run(ctx, "docker", c.composeArgs("create")...); err != nil {
		return err
	}
	if err := c.run.Run(ctx, "docker", "start", dbContainer); err != nil {
		return err
	}

	c.waitForDatabase(ctx, dbContainer)

	c.log.Info().Str("file", dumpFile).Msg("restoring database")
	err = c.run.RunPipeline(ctx, io.Discard,
		[]string{"gunzip", "--stdout", dumpFile},
		[]string{"sed", searchPathFix},
		[]string{"docker", "exec", "-i", dbContainer,
			"psql", "--dbname=postgres", "--username=" + c.dbUsername()},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseRestoreFailed, err)
	}

	c.log.Info().Msg("database restored")
	return nil
}

// waitForDatabase polls pg_isready until the freshly started database
// accepts connections, falling back to a fixed settle delay when polling
// never succeeds.
func (c *Client) waitForDatabase(ctx context.Context, dbContainer string) {
	c.log.Info().Msg("waiting for database to accept connections")
	for i := 0; i < dbReadyRetries; i++ {
		out, err := c.run.Capture(ctx, "docker", "exec", dbContainer,
			"pg_isready", "--username="+c.dbUsername())
		if err == nil && strings.Contains(out, "accepting connections") {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(dbReadyInterval):
		}
	}
	c.log.Warn().Dur("delay", c.dbSettle).Msg("database readiness unconfirmed, falling back to settle delay")
	time.Sleep(c.dbSettle)
}

// restoreFilesystem replaces the configured upload tree with the archived
// copy.
func (c *Client) restoreFilesystem(backupDir string) error {
	manifest, err := readManifest(backupDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	uploadBackup := filepath.Join(backupDir, manifest.FilesystemBackup, uploadMember)
	if _, err := os.Stat(uploadBackup); err != nil {
		return fmt.Errorf("%w: %s", ErrFilesystemBackupMissing, uploadBackup)
	}

	target, err := c.currentUploadLocation()
	if err != nil {
		return err
	}

	c.log.Info().Str("from", uploadBackup).Str("to", target).Msg("restoring upload tree")
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to remove existing upload tree: %w", err)
	}
	if err := fsutil.CopyTree(uploadBackup, target); err != nil {
		return fmt.Errorf("failed to restore upload tree: %w", err)
	}

	c.log.Info().Msg("filesystem restored")
	return nil
}
