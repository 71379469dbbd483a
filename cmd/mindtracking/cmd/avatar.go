package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"mindtracking-client/internal/bootstrap"
)

var avatarCmd = &cobra.Command{
	Use:   "avatar",
	Short: "Manage the profile photo",
}

var avatarUploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "Resize, upload and save a new profile photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if app.Avatar == nil {
				return errors.New("avatar upload is not configured")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			app.Profile.LoadFromCache(ctx)
			if _, err := app.Avatar.Upload(ctx, f); err != nil {
				return err
			}
			return printJSON(cmd, viewOf(app.Profile.Current(), nil))
		})
	},
}

func init() {
	avatarCmd.AddCommand(avatarUploadCmd)
	rootCmd.AddCommand(avatarCmd)
}
