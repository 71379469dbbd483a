package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"mindtracking-client/internal/bootstrap"
	"mindtracking-client/internal/domain/profile"
	"mindtracking-client/internal/transport/api"
)

type resultView struct {
	Photo   string `json:"photo"`
	Name    string `json:"name"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

func viewOf(snap profile.Snapshot, res *profile.Result) resultView {
	v := resultView{Photo: snap.Photo, Name: snap.Name}
	if res != nil {
		v.Outcome = string(res.Outcome)
		if res.Err != nil {
			v.Error = res.Err.Error()
		}
	}
	return v
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect or change the cached profile",
	Long: `Available subcommands:
  show       Print the cached profile
  refresh    Fetch the profile from the backend
  set-photo  Replace the photo URL locally
  clear      Remove the cached profile
  edit       Save the user's details on the backend`,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			return printJSON(cmd, viewOf(app.Profile.Persisted(ctx), nil))
		})
	},
}

var profileRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the profile from the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			app.Profile.LoadFromCache(ctx)
			_, res := app.Profile.LoadFromRemote(ctx)
			if err := printJSON(cmd, viewOf(app.Profile.Current(), &res)); err != nil {
				return err
			}
			return res.Err
		})
	},
}

var profileSetPhotoCmd = &cobra.Command{
	Use:   "set-photo <url>",
	Short: "Replace the photo URL locally",
	Long:  `set-photo stores a new photo URL without contacting the backend. An empty URL removes the photo.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			app.Profile.LoadFromCache(ctx)
			res := app.Profile.Update(ctx, args[0])
			return printJSON(cmd, viewOf(app.Profile.Current(), &res))
		})
	},
}

var profileClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			res := app.Profile.Clear(ctx)
			if err := printJSON(cmd, viewOf(app.Profile.Current(), &res)); err != nil {
				return err
			}
			return res.Err
		})
	},
}

var editPayload api.UpdateProfilePayload

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Save the user's details on the backend and reload the profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if err := app.Session.UpdateProfile(ctx, editPayload); err != nil {
				return err
			}
			return printJSON(cmd, viewOf(app.Profile.Current(), nil))
		})
	},
}

func init() {
	profileEditCmd.Flags().StringVar(&editPayload.Nome, "nome", "", "display name")
	profileEditCmd.Flags().StringVar(&editPayload.Telefone, "telefone", "", "phone number")
	profileEditCmd.Flags().StringVar(&editPayload.DataNascimento, "data-nascimento", "", "birth date (YYYY-MM-DD)")
	profileEditCmd.Flags().StringVar(&editPayload.Genero, "genero", "", "gender")

	profileCmd.AddCommand(profileShowCmd, profileRefreshCmd, profileSetPhotoCmd, profileClearCmd, profileEditCmd)
	rootCmd.AddCommand(profileCmd)
}
