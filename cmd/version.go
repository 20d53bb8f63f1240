package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of k8s-resource-client",
		Long:  `All software has versions. This is k8s-resource-client's.`,
		Run: func(cmd *cobra.Command, args []string) {
			// rootCmd.Version is injected by main at build time.
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "k8s-resource-client version %s\n", rootCmd.Version)
		},
	}
}
