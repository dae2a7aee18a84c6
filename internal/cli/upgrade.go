//go:build !docker

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/blang/semver"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
)

const releaseRepo = "seuros/mfdash"

// Swapped out by tests.
var (
	detectLatest = selfupdate.DetectLatest
	updateBinary = selfupdate.UpdateTo
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade mfdash to the latest release",
	Long: `Check GitHub for a newer mfdash release and replace the running binary.

Example:
  mfdash upgrade --check
  mfdash upgrade --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		checkOnly, _ := cmd.Flags().GetBool("check")
		autoYes, _ := cmd.Flags().GetBool("yes")
		return runSelfUpgrade(cmd.InOrStdin(), cmd.OutOrStdout(), checkOnly, autoYes)
	},
}

// currentRelease parses the embedded version; dev builds have nothing to
// compare against.
func currentRelease() (semver.Version, error) {
	v := strings.TrimPrefix(strings.TrimSpace(Version), "v")
	if v == "" || v == "dev" {
		return semver.Version{}, errors.New("mfdash was built from source; upgrade works on release builds only")
	}
	parsed, err := semver.Parse(v)
	if err != nil {
		return semver.Version{}, fmt.Errorf("parse version %q: %w", Version, err)
	}
	return parsed, nil
}

// confirm reads a yes/no answer; an empty line counts as yes.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [Y/n] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true, nil
	}
	return false, nil
}

func runSelfUpgrade(in io.Reader, out io.Writer, checkOnly, autoYes bool) error {
	current, err := currentRelease()
	if err != nil {
		return err
	}

	latest, found, err := detectLatest(releaseRepo)
	switch {
	case err != nil:
		return fmt.Errorf("query releases of %s: %w", releaseRepo, err)
	case !found:
		return fmt.Errorf("no releases published for %s", releaseRepo)
	}

	if !latest.Version.GT(current) {
		fmt.Fprintf(out, "mfdash v%s is the latest release\n", current)
		return nil
	}
	fmt.Fprintf(out, "mfdash v%s is available (running v%s)\n", latest.Version, current)
	if checkOnly {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate running binary: %w", err)
	}
	fmt.Fprintf(out, "  binary:   %s\n", exe)
	fmt.Fprintf(out, "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if latest.AssetURL != "" {
		fmt.Fprintf(out, "  asset:    %s\n", latest.AssetURL)
	}

	if !autoYes {
		ok, err := confirm(in, out, "Replace the binary?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Upgrade skipped.")
			return nil
		}
	}

	if err := updateBinary(latest.AssetURL, exe); err != nil {
		return fmt.Errorf("install v%s: %w", latest.Version, err)
	}
	fmt.Fprintf(out, "✓ mfdash upgraded to v%s\n", latest.Version)
	return nil
}

func init() {
	upgradeCmd.Flags().Bool("check", false, "Only check whether a newer release is available")
	upgradeCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	RootCmd.AddCommand(upgradeCmd)
}
