package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"mindtracking-client/internal/bootstrap"
)

var (
	configPath string
	noDotEnv   bool
)

var rootCmd = &cobra.Command{
	Use:   "mindtracking",
	Short: "MindTracking profile client",
	Long: `mindtracking keeps the signed-in user's profile photo and name in sync between
the backend, the local cache and every screen that shows them.

Available commands:
  serve     Run the synchronizer and the local bridge for the app shell
  profile   Inspect or change the cached profile
  login     Sign in and load the profile
  logout    Sign out and clear the cached profile
  whoami    Print the signed-in user
  avatar    Upload a new profile photo

Use "mindtracking [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the yaml config file")
	rootCmd.PersistentFlags().BoolVar(&noDotEnv, "no-dotenv", false, "do not read variables from .env")
}

func options() bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: configPath,
		DotEnv:     !noDotEnv,
	}
}

// withApp builds the application without starting any background service.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx := cmd.Context()
	app, err := bootstrap.Build(ctx, options())
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
