package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"social-backend/config"
	"social-backend/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string // comma-separated yaml files, later files win
}

// NewRootCommand creates the root command of the social backend.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "social",
		Short:         "Social backend with realtime chat and notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config files, e.g. common.yml,social.yml")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	return cmd
}

// bootstrap loads config, builds the logger and opens the database.
func bootstrap(opts *RootOptions) (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.IsDev())
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := config.InitDB(cfg)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}
