package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/k8s-resource-client/pkg/kubeconfig"
)

func newContextsCmd(config *CLIConfig) *cobra.Command {
	var current bool

	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "List the contexts of the kubeconfig",
		Long: `List the contexts of the kubeconfig, marking the current one with "*".
With --current only the name of the current context is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, currentContext, err := kubeconfig.Contexts(config.Kubeconfig)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if current {
				if currentContext == "" {
					return errors.New("no current context set in kubeconfig")
				}
				_, err := fmt.Fprintln(w, currentContext)
				return err
			}

			for _, name := range names {
				marker := " "
				if name == currentContext {
					marker = "*"
				}
				if _, err := fmt.Fprintf(w, "%s %s\n", marker, name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&current, "current", false, "Only print the current context")
	return cmd
}
