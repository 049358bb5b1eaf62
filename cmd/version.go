package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "songproxy %s\n", valueOr(buildInfo.BinVersion, "dev"))
		fmt.Fprintf(out, "commit:  %s\n", valueOr(buildInfo.CommitSHA, "unknown"))
		fmt.Fprintf(out, "built:   %s\n", valueOr(buildInfo.BuildTime, "unknown"))
		fmt.Fprintf(out, "runtime: %s %s\n", buildInfo.RuntimeVer, buildInfo.BuildArch)
	},
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
