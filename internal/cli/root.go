// Package cli implements dashctl, the operator command line for the notifications dashboard.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	"github.com/noah-isme/notifications-dashboard-api/internal/repository"
	"github.com/noah-isme/notifications-dashboard-api/migrations"
	"github.com/noah-isme/notifications-dashboard-api/pkg/cache"
	"github.com/noah-isme/notifications-dashboard-api/pkg/config"
	"github.com/noah-isme/notifications-dashboard-api/pkg/database"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

type operatorStore interface {
	Create(ctx context.Context, user *models.User) error
}

type presenceStore interface {
	Get(ctx context.Context, id string) ([]byte, error)
	SetState(ctx context.Context, id, state string) error
	Clear(ctx context.Context, id string) error
}

type recordStore interface {
	ListSnapshot(ctx context.Context) ([]models.SnapshotEntry, int, error)
	HideMany(ctx context.Context, ids []string) error
}

// Backends are the stores a command may touch. Fields are nil when not connected.
type Backends struct {
	Migrate   func(ctx context.Context) ([]string, error)
	Operators operatorStore
	Records   recordStore
	Presence  presenceStore
}

// Needs tells the connector which backends a command uses.
type Needs struct {
	Postgres bool
	Redis    bool
}

// Connector opens the backends a command needs. The returned func releases them.
type Connector func(ctx context.Context, needs Needs) (*Backends, func(), error)

// NewRootCommand creates the root command for dashctl.
func NewRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "dashctl",
		Short:         "dashctl - notifications dashboard operator tool",
		Long:          "Maintenance commands for the notifications dashboard: schema, operators, presence, exports and bulk hiding.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts, connect))
	cmd.AddCommand(NewCreateOperatorCommand(opts, connect))
	cmd.AddCommand(NewPresenceCommand(opts, connect))
	cmd.AddCommand(NewExportCommand(opts, connect))
	cmd.AddCommand(NewHideAllCommand(opts, connect))

	return cmd
}

// DefaultConnector opens PostgreSQL and Redis from the environment configuration.
func DefaultConnector(cfg *config.Config, logger *zap.Logger) Connector {
	return func(ctx context.Context, needs Needs) (*Backends, func(), error) {
		var (
			db     *sqlx.DB
			client *redis.Client
			err    error
		)
		closeAll := func() {
			if db != nil {
				_ = db.Close()
			}
			if client != nil {
				_ = client.Close()
			}
		}

		backends := &Backends{}
		if needs.Postgres {
			db, err = database.NewPostgres(cfg.Database)
			if err != nil {
				return nil, nil, fmt.Errorf("connect postgres: %w", err)
			}
			records := repository.NewRecordRepository(db, cfg.Feed.Collection, logger)
			backends.Records = records
			backends.Operators = repository.NewUserRepository(db)
			backends.Migrate = func(ctx context.Context) ([]string, error) {
				return migrations.Apply(ctx, db, logger)
			}
		}
		if needs.Redis {
			client, err = cache.NewRedis(cfg.Redis)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("connect redis: %w", err)
			}
			backends.Presence = repository.NewPresenceRepository(client, cfg.Presence.KeyPrefix, logger)
		}
		return backends, closeAll, nil
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// emit writes a result either as indented JSON or through the text callback.
func emit(opts *RootOptions, w io.Writer, value interface{}, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	text(w)
	return nil
}

func verbosef(opts *RootOptions, cmd *cobra.Command, format string, args ...interface{}) {
	if opts.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}
