package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version %s\nBuilt at %s\nGit commit %s\n",
			version.Version, version.Timestamp, version.GitHash)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
