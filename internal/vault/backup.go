package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/immivault/immivault/internal/archive"
	"github.com/immivault/immivault/internal/fsutil"
	"github.com/immivault/immivault/internal/storage"
)

// Backup captures the database cluster and the upload tree into one archive
// and stores it through the configured backend. Paused services are resumed
// and the temporary working directory removed whether or not the backup
// succeeds.
func (c *Client) Backup(ctx context.Context) error {
	c.log.Info().Msg("starting backup")

	if err := c.preflight(ctx); err != nil {
		return err
	}
	paths, err := c.ResolvePaths()
	if err != nil {
		return err
	}

	ts := timestamp()
	workDir := filepath.Join(os.TempDir(), backupPrefix+ts)
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			c.log.Warn().Err(err).Msg("failed to remove working directory")
		}
	}()

	c.log.Info().Str("workdir", workDir).Str("archive", archiveName(ts)).Msg("backup locations")

	// The database container stays up so the dump tool can connect.
	paused := c.pauseServices(ctx)
	defer c.resumeServices(ctx, paused)

	dumpFile, err := c.dumpDatabase(ctx, workDir, ts)
	if err != nil {
		return err
	}

	uploadCopy := filepath.Join(workDir, filesystemDir, uploadMember)
	c.log.Info().Str("from", paths.UploadLocation).Str("to", uploadCopy).Msg("backing up upload tree")
	if err := fsutil.CopyTree(paths.UploadLocation, uploadCopy); err != nil {
		return fmt.Errorf("failed to back up upload tree: %w", err)
	}

	if err := writeManifest(workDir, newManifest(c.cfg, dumpFile, paths)); err != nil {
		return err
	}

	if err := c.storeArchive(ctx, workDir, ts, paths); err != nil {
		return err
	}

	c.log.Info().Str("archive", archiveName(ts)).Msg("backup completed")
	return nil
}

// preflight verifies the database container exists among running or stopped
// containers before anything is touched.
func (c *Client) preflight(ctx context.Context) error {
	names, err := c.docker.ContainerNames(ctx)
	if err != nil {
		return err
	}
	dbContainer := c.dbContainer()
	for _, name := range names {
		if name == dbContainer {
			return nil
		}
	}
	return fmt.Errorf("%w: container '%s' not found, deploy the stack first", ErrEnvironmentNotReady, dbContainer)
}

// pauseServices stops every non-database service, best effort, and returns
// the containers that were actually running.
func (c *Client) pauseServices(ctx context.Context) []string {
	var paused []string
	for service, container := range c.stack.ContainerNames() {
		if strings.Contains(service, dbServiceKeyword) {
			continue
		}
		wasRunning, err := c.docker.StopContainer(ctx, container)
		if err != nil {
			c.log.Warn().Err(err).Str("container", container).Msg("failed to stop service")
			continue
		}
		if wasRunning {
			paused = append(paused, container)
		}
	}
	return paused
}

// resumeServices restarts previously paused containers.
func (c *Client) resumeServices(ctx context.Context, paused []string) {
	for _, container := range paused {
		if err := c.docker.StartContainer(ctx, container); err != nil {
			c.log.Warn().Err(err).Str("container", container).Msg("failed to restart service")
		}
	}
}

// dumpDatabase dumps the whole cluster through gzip into the working
// directory and returns the dump file path.
func (c *Client) dumpDatabase(ctx context.Context, workDir, ts string) (string, error) {
	dumpFile := filepath.Join(workDir, fmt.Sprintf("%s%s.sql.gz", dbBackupPrefix, ts))
	c.log.Info().Str("file", dumpFile).Msg("creating database backup")

	err := c.run.RunPipelineToFile(ctx, dumpFile,
		[]string{"docker", "exec", "-t", c.dbContainer(),
			"pg_dumpall", "--clean", "--if-exists", "--username=" + c.dbUsername()},
		[]string{"gzip"},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseBackupFailed, err)
	}
	return dumpFile, nil
}

// storeArchive packs the working directory into a tar.gz and hands it to the
// storage backend.
func (c *Client) storeArchive(ctx context.Context, workDir, ts string, paths *Paths) error {
	name := archiveName(ts)
	tempArchive := filepath.Join(os.TempDir(), name+".tmp")
	defer os.Remove(tempArchive)

	c.log.Info().Msg("creating compressed archive")
	if err := archive.Create(workDir, tempArchive, c.quiet); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	f, err := os.Open(tempArchive) // #nosec G304 - controlled archive path
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	return c.store.Store(ctx, &storage.Archive{
		Name: name,
		Metadata: storage.Metadata{
			Name:           name,
			Size:           info.Size(),
			CreatedAt:      time.Now(),
			AppVersion:     c.cfg.Get(appVersionKey, "unknown"),
			UploadLocation: paths.UploadLocation,
		},
		DataReader: f,
	})
}
