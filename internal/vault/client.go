// Package vault orchestrates point-in-time backup and restore of an Immich
// docker-compose deployment: the postgres cluster and the uploaded-media
// tree, captured together into one portable archive.
package vault

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/immivault/immivault/internal/compose"
	"github.com/immivault/immivault/internal/config"
	"github.com/immivault/immivault/internal/docker"
	"github.com/immivault/immivault/internal/runner"
	"github.com/immivault/immivault/internal/storage"
)

// Well-known facts about an Immich deployment.
const (
	// dbContainerDefault is used when the topology declares no database service.
	dbContainerDefault = "immich_postgres"
	// dbServiceKeyword marks the database service in the topology by name.
	dbServiceKeyword = "database"
	// uploadMountPath is the container path of the media volume on the server.
	uploadMountPath = "/data"
	// dbDataMountPath is the container path of the postgres data volume.
	dbDataMountPath = "/var/lib/postgresql/data"

	uploadLocationKey     = "UPLOAD_LOCATION"
	uploadLocationDefault = "./library"
	dbDataLocationKey     = "DB_DATA_LOCATION"
	dbDataLocationDefault = "./postgres"
	dbUsernameKey         = "DB_USERNAME"
	dbUsernameDefault     = "postgres"
	appVersionKey         = "IMMICH_VERSION"

	backupPrefix     = "immich_backup_"
	dbBackupPrefix   = "immich_db_backup_"
	manifestFilename = "backup_manifest.json"
	filesystemDir    = "filesystem"
	uploadMember     = "upload_location"
	timestampLayout  = "20060102_150405"

	pingURLDefault     = "http://localhost:2283/api/server/ping"
	pingRetries        = 6
	pingRetryDelay     = 10 * time.Second
	pingTimeout        = 10 * time.Second
	serviceSettleDelay = 30 * time.Second
	dbSettleDelay      = 10 * time.Second
	dbReadyRetries     = 30
	dbReadyInterval    = time.Second
)

// healthContainers are checked after a restore.
var healthContainers = []string{
	"immich_server",
	"immich_postgres",
	"immich_redis",
	"immich_machine_learning",
}

// containerAPI is the subset of the Docker client the orchestrations use.
type containerAPI interface {
	ContainerNames(ctx context.Context) ([]string, error)
	StopContainer(ctx context.Context, name string) (bool, error)
	StartContainer(ctx context.Context, name string) error
	ContainerStatus(ctx context.Context, name string) (string, error)
}

// commandRunner is the subset of the command runner the orchestrations use.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	RunBestEffort(ctx context.Context, name string, args ...string) bool
	Capture(ctx context.Context, name string, args ...string) (string, error)
	RunPipeline(ctx context.Context, out io.Writer, stages ...[]string) error
	RunPipelineToFile(ctx context.Context, path string, stages ...[]string) error
}

// Client drives backup and restore against one deployment.
type Client struct {
	cfg    *config.Config
	stack  *compose.File
	docker containerAPI
	run    commandRunner
	store  storage.Backend
	log    zerolog.Logger
	quiet  bool

	httpClient   *http.Client
	pingURL      string
	settleDelay  time.Duration
	dbSettle     time.Duration
	pingInterval time.Duration
}

// Options configures a Client.
type Options struct {
	ComposeFile string
	EnvFile     string
	Store       storage.Backend
	Logger      zerolog.Logger
	Quiet       bool
}

// New loads the environment and topology files and connects to the Docker
// daemon.
func New(opts Options) (*Client, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, err
	}

	stack, err := compose.Load(opts.ComposeFile)
	if err != nil {
		return nil, err
	}

	dockerClient, err := docker.NewClient(opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:          cfg,
		stack:        stack,
		docker:       dockerClient,
		run:          runner.New(opts.Logger),
		store:        opts.Store,
		log:          opts.Logger,
		quiet:        opts.Quiet,
		httpClient:   &http.Client{Timeout: pingTimeout},
		pingURL:      pingURLDefault,
		settleDelay:  serviceSettleDelay,
		dbSettle:     dbSettleDelay,
		pingInterval: pingRetryDelay,
	}, nil
}

// dbContainer returns the database container name declared in the topology,
// falling back to the conventional name.
func (c *Client) dbContainer() string {
	for service, container := range c.stack.ContainerNames() {
		if strings.Contains(service, dbServiceKeyword) {
			return container
		}
	}
	return dbContainerDefault
}

// dbUsername returns the configured database superuser.
func (c *Client) dbUsername() string {
	return c.cfg.Get(dbUsernameKey, dbUsernameDefault)
}

// composeArgs prefixes docker compose arguments with the topology file.
func (c *Client) composeArgs(args ...string) []string {
	return append([]string{"compose", "-f", c.stack.Path()}, args...)
}

func timestamp() string {
	return time.Now().Format(timestampLayout)
}

func archiveName(ts string) string {
	return fmt.Sprintf("%s%s.tar.gz", backupPrefix, ts)
}
