package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"social-backend/models"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := models.Migrate(db); err != nil {
				return errors.Wrap(err, "migrate")
			}
			log.Info("migration done", zap.String("driver", cfg.Database.Driver), zap.Int("models", len(models.All())))
			return nil
		},
	}
}
