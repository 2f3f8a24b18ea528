package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// defaultUpdateRepository is the GitHub owner/repo whose releases carry
// gadgethost binaries. Override with --repository for forks.
const defaultUpdateRepository = "gadgethost/gadgethost"

var errDevelopmentVersion = fmt.Errorf("cannot self-update a development version")

// newSelfUpdateCmd creates the Cobra command for the self-update functionality.
func newSelfUpdateCmd() *cobra.Command {
	var repository string
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update gadgethost to the latest release",
		Long: `Checks for the latest release of gadgethost on GitHub and
replaces the running binary if a newer version is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd, repository, checkOnly)
		},
	}
	cmd.Flags().StringVar(&repository, "repository", defaultUpdateRepository, "GitHub owner/repo to check for releases")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether a newer release exists")
	return cmd
}

func runSelfUpdate(cmd *cobra.Command, repository string, checkOnly bool) error {
	currentVersion := rootCmd.Version
	// Development builds do not follow semantic versioning.
	if currentVersion == "" || currentVersion == "dev" {
		return errDevelopmentVersion
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintf(out, "Current version: %s\n", cyan(currentVersion))

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create updater: %w", err)
	}

	stop := startSpinner(out, " Checking for updates...")
	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(repository))
	stop()
	if err != nil {
		return fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest release for %s could not be found", repository)
	}

	if !latest.GreaterThan(currentVersion) {
		fmt.Fprintln(out, green("Current version is the latest."))
		return nil
	}

	fmt.Fprintf(out, "Found newer version: %s (published at %s)\n", cyan(latest.Version()), latest.PublishedAt.Format(time.RFC3339))
	if checkOnly {
		return nil
	}
	fmt.Fprintf(out, "Release notes:\n%s\n", latest.ReleaseNotes)

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	stop = startSpinner(out, fmt.Sprintf(" Updating %s to %s...", exe, latest.Version()))
	err = updater.UpdateTo(ctx, latest, exe)
	stop()
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Fprintf(out, "%s %s\n", green("Successfully updated to version"), latest.Version())
	return nil
}

// startSpinner shows progress on out until the returned func is called.
func startSpinner(out io.Writer, suffix string) func() {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}
