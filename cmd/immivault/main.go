package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/immivault/immivault/internal/storage"
	"github.com/immivault/immivault/internal/vault"
	"github.com/immivault/immivault/pkg/version"
)

// Global variables for CLI flags
var (
	composeFile string
	envFile     string
	quiet       bool
	verbose     bool
	interactive bool
	force       bool
	// Storage flags
	storageType  string
	gcsBucket    string
	gcsProject   string
	gcsCredsFile string
	s3Bucket     string
	s3Region     string
	s3Endpoint   string
	s3AccessKey  string
	s3SecretKey  string
)

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if quiet {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// buildStorageConfig assembles the backend configuration from the storage
// flags. localDir is used as the base path for local storage.
func buildStorageConfig(localDir string) (*storage.Config, error) {
	config := &storage.Config{
		Type: storageType,
	}

	switch storageType {
	case "local":
		config.Local = &storage.LocalConfig{
			BasePath: localDir,
		}
	case "gcs":
		if gcsBucket == "" {
			return nil, fmt.Errorf("GCS bucket is required when using GCS storage")
		}
		config.GCS = &storage.GCSConfig{
			Bucket:      gcsBucket,
			ProjectID:   gcsProject,
			Credentials: gcsCredsFile,
		}
	case "s3":
		if s3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required when using S3 storage")
		}
		if s3SecretKey == "" && s3AccessKey != "" {
			secret, err := promptSecret("S3 secret key: ")
			if err != nil {
				return nil, err
			}
			s3SecretKey = secret
		}
		config.S3 = &storage.S3Config{
			Bucket:    s3Bucket,
			Region:    s3Region,
			Endpoint:  s3Endpoint,
			AccessKey: s3AccessKey,
			SecretKey: s3SecretKey,
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}

	return config, nil
}

func newVaultClient(ctx context.Context, localDir string) (*vault.Client, error) {
	storageConfig, err := buildStorageConfig(localDir)
	if err != nil {
		return nil, err
	}

	backend, err := storage.NewBackend(ctx, storageConfig)
	if err != nil {
		return nil, err
	}

	return vault.New(vault.Options{
		ComposeFile: composeFile,
		EnvFile:     envFile,
		Store:       backend,
		Logger:      newLogger(),
		Quiet:       quiet,
	})
}

// promptSecret reads a secret without echo when stdin is a terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(raw), nil
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text()), scanner.Err()
}

// promptLine asks a question on stderr and reads one answer line.
func promptLine(prompt, fallback string) string {
	fmt.Fprintf(os.Stderr, "%s [%s]: ", prompt, fallback)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	answer := strings.TrimSpace(scanner.Text())
	if answer == "" {
		return fallback
	}
	return answer
}

func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s (y/N): ", question)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func main() {
	var rootCmd = &cobra.Command{
		Use:     "immivault",
		Short:   "Backup and restore tool for Immich deployments",
		Long:    "Immivault backs up and restores a self-hosted Immich deployment: the postgres database and the uploaded media tree, archived together with local and cloud storage backends",
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runInteractive()
			}
			return cmd.Help()
		},
	}
	rootCmd.SetVersionTemplate(version.Info() + "\n")

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "c", "docker-compose.yml", "Path to the deployment's docker-compose file")
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", ".env", "Path to the deployment's .env file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet output")
	rootCmd.PersistentFlags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for the run mode and locations")

	// Storage backend flags
	rootCmd.PersistentFlags().StringVar(&storageType, "storage", "local", "Storage backend type (local, gcs, s3)")

	// GCS flags
	rootCmd.PersistentFlags().StringVar(&gcsBucket, "gcs-bucket", "", "GCS bucket name")
	rootCmd.PersistentFlags().StringVar(&gcsProject, "gcs-project", "", "GCS project ID")
	rootCmd.PersistentFlags().StringVar(&gcsCredsFile, "gcs-creds", "", "Path to GCS credentials file")

	// S3 flags
	rootCmd.PersistentFlags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().StringVar(&s3Region, "s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3 endpoint (for S3-compatible services)")
	rootCmd.PersistentFlags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")

	rootCmd.AddCommand(createBackupCommand())
	rootCmd.AddCommand(createRestoreCommand())
	rootCmd.AddCommand(createListCommand())
	rootCmd.AddCommand(createDeleteCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runInteractive walks the user through a backup or restore with prompts
// instead of flags.
func runInteractive() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}
	ctx := context.Background()

	mode := promptLine("Mode (backup/restore)", "backup")
	composeFile = promptLine("Compose file", composeFile)
	envFile = promptLine("Env file", envFile)

	switch mode {
	case "backup":
		dir := promptLine("Backup destination directory", "./backups")
		return runBackup(ctx, dir)
	case "restore":
		location := promptLine("Backup archive, directory or name", "")
		if location == "" {
			return fmt.Errorf("a backup location is required")
		}
		if !confirm("This will replace the current database and upload tree. Continue?") {
			fmt.Fprintln(os.Stderr, "Restore cancelled")
			return nil
		}
		return runRestore(ctx, location)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func runBackup(ctx context.Context, localDir string) error {
	if storageType == "local" {
		if err := os.MkdirAll(localDir, 0o750); err != nil {
			return fmt.Errorf("cannot create backup directory %s: %w", localDir, err)
		}
	}
	client, err := newVaultClient(ctx, localDir)
	if err != nil {
		return err
	}
	return client.Backup(ctx)
}

func runRestore(ctx context.Context, location string) error {
	client, err := newVaultClient(ctx, ".")
	if err != nil {
		return err
	}
	return client.Restore(ctx, location)
}

func createBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [backup-dir]",
		Short: "Create a backup of the deployment",
		Long:  "Dump the database, copy the upload tree and store both as one archive. With local storage the positional argument names the destination directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "./backups"
			if len(args) == 1 {
				dir = args[0]
			}
			return runBackup(context.Background(), dir)
		},
	}
	return cmd
}

func createRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <archive|directory|name>",
		Short: "Restore the deployment from a backup",
		Long:  "Restore the database and upload tree from a backup archive, an extracted backup directory, or a stored archive name on a remote backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && !confirm("This will replace the current database and upload tree. Continue?") {
				fmt.Fprintln(os.Stderr, "Restore cancelled")
				return nil
			}
			return runRestore(context.Background(), args[0])
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompts")
	return cmd
}

func createListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [backup-dir]",
		Short: "List stored backup archives",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			dir := "./backups"
			if len(args) == 1 {
				dir = args[0]
			}

			storageConfig, err := buildStorageConfig(dir)
			if err != nil {
				return err
			}
			backend, err := storage.NewBackend(ctx, storageConfig)
			if err != nil {
				return err
			}

			archives, err := backend.List(ctx)
			if err != nil {
				return err
			}
			if len(archives) == 0 {
				fmt.Println("No backups found")
				return nil
			}

			for _, meta := range archives {
				fmt.Printf("%s\n", meta.Name)
				fmt.Printf("  ├─ Size: %.1f MB\n", float64(meta.Size)/(1024*1024))
				fmt.Printf("  ├─ Version: %s\n", meta.AppVersion)
				fmt.Printf("  └─ Created: %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	return cmd
}

func createDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <archive-name>",
		Short: "Delete a stored backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			name := args[0]

			storageConfig, err := buildStorageConfig("./backups")
			if err != nil {
				return err
			}
			backend, err := storage.NewBackend(ctx, storageConfig)
			if err != nil {
				return err
			}

			if !force && !confirm(fmt.Sprintf("Delete backup '%s'?", name)) {
				fmt.Fprintln(os.Stderr, "Delete cancelled")
				return nil
			}
			if err := backend.Delete(ctx, name); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompts")
	return cmd
}
