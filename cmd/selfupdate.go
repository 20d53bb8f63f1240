package cmd

import (
	"errors"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the repository the release binaries are published to.
const githubRepoSlug = "giantswarm/k8s-resource-client"

// newSelfUpdateCmd creates the Cobra command that replaces the running
// binary with the latest GitHub release.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update k8s-resource-client to the latest version",
		Long: `Check GitHub for the latest release of k8s-resource-client and, when it is
newer than the running version, download it and replace the current binary.
Release archives are verified against the published checksums.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			currentVersion := rootCmd.Version
			if currentVersion == "" || currentVersion == "dev" {
				return errors.New("cannot self-update a development version")
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			updater, err := selfupdate.NewUpdater(selfupdate.Config{
				Validator: &selfupdate.ChecksumValidator{UniqueFilename: "checksums.txt"},
			})
			if err != nil {
				return fmt.Errorf("failed to create updater: %w", err)
			}

			latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
			if err != nil {
				return fmt.Errorf("failed to detect latest version: %w", err)
			}
			if !found {
				return fmt.Errorf("no release found for %s", githubRepoSlug)
			}
			if latest.LessOrEqual(currentVersion) {
				_, _ = fmt.Fprintf(w, "Current version %s is the latest\n", currentVersion)
				return nil
			}

			exe, err := selfupdate.ExecutablePath()
			if err != nil {
				return fmt.Errorf("failed to locate executable: %w", err)
			}
			if err := updater.UpdateTo(ctx, latest, exe); err != nil {
				return fmt.Errorf("failed to update binary: %w", err)
			}
			_, _ = fmt.Fprintf(w, "Updated to version %s\n", latest.Version())
			return nil
		},
	}
}
