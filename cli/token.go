package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"social-backend/models"
	"social-backend/utils"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID   uint
	Username string
}

// NewTokenCommand issues a JWT for local testing. With --username the user is
// created when missing.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development token for a user",
		Example: `  social token --user 3
  social token --username alice -c dev.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return issueToken(cmd, opts)
		},
	}
	cmd.Flags().UintVar(&opts.UserID, "user", 0, "existing user id")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username, created if missing")
	return cmd
}

func issueToken(cmd *cobra.Command, opts *TokenOptions) error {
	if opts.UserID == 0 && opts.Username == "" {
		return errors.New("either --user or --username is required")
	}
	cfg, log, db, err := bootstrap(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var user models.User
	if opts.UserID != 0 {
		err = db.First(&user, opts.UserID).Error
	} else {
		err = db.Where(models.User{Username: opts.Username}).FirstOrCreate(&user).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Errorf("user %d not found", opts.UserID)
	}
	if err != nil {
		return errors.Wrap(err, "load user")
	}

	token, err := utils.GenerateToken(cfg.Auth.Secret, user.ID, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user_id=%d username=%s\n%s\n", user.ID, user.Username, token)
	return nil
}
