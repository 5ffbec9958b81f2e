package vault

import "errors"

// Errors surfaced by the backup and restore orchestrations. Configuration
// and command errors come from the config, compose and runner packages.
var (
	// ErrEnvironmentNotReady means the deployment's containers were not found.
	ErrEnvironmentNotReady = errors.New("environment not ready")
	// ErrDatabaseBackupFailed means the dump pipeline exited non-zero.
	ErrDatabaseBackupFailed = errors.New("database backup failed")
	// ErrDatabaseRestoreFailed means the restore pipeline exited non-zero.
	ErrDatabaseRestoreFailed = errors.New("database restore failed")
	// ErrInvalidArchive means an archive held no backup directory or manifest.
	ErrInvalidArchive = errors.New("invalid backup archive")
	// ErrInvalidBackup means a backup directory held no manifest.
	ErrInvalidBackup = errors.New("invalid backup")
	// ErrFilesystemBackupMissing means the archived upload tree is absent.
	ErrFilesystemBackupMissing = errors.New("filesystem backup missing")
)
