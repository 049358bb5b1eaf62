package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/liuran001/SongProxy-Go/proxy/app"
	"github.com/spf13/cobra"
)

var (
	configPath string
	buildInfo  app.BuildInfo
)

var rootCmd = &cobra.Command{
	Use:           "songproxy",
	Short:         "Song-request proxy for the WeChat mini-program plugin.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		application, err := app.New(ctx, configPath, buildInfo)
		if err != nil {
			return err
		}
		if err := application.Start(ctx); err != nil {
			return err
		}

		waitErr := application.Wait(ctx)
		if err := application.Shutdown(context.Background()); err != nil && waitErr == nil {
			return err
		}
		return waitErr
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.ini", "配置文件")
}

// Execute runs the root command with the given build metadata.
func Execute(build app.BuildInfo) {
	buildInfo = build
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
