// Package starthost is for the start-host command
package starthost

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/config"
	"github.com/anaconda/sisyphus/pkg/rocket"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var instanceTypes = []string{"g4dn.4xlarge", "p3.2xlarge"}

var (
	startHostLong    = "Create a Linux or Windows GPU instance using rocket-platform"
	startHostExample = "sisyphus start-host --linux -t g4dn.4xlarge"
)

// OSNameFromFlags validates the --linux/--windows pair and returns the OS
// name rocket-platform expects.
func OSNameFromFlags(linux, windows bool) (string, error) {
	if !linux && !windows {
		return "", fmt.Errorf("either --linux or --windows must be specified")
	}
	if linux && windows {
		return "", fmt.Errorf("only one of --linux or --windows can be specified")
	}
	if linux {
		return "linux", nil
	}
	return "windows", nil
}

// ResolveToken falls back to the GITHUB_TOKEN environment variable when no
// token was passed on the command line.
func ResolveToken(token string) (string, error) {
	if token == "" {
		token = config.GlobalConfig.GetGithubToken()
	}
	if token == "" {
		return "", fmt.Errorf("a GitHub token is required, pass --token or set GITHUB_TOKEN")
	}
	return token, nil
}

func NewCmdStartHost(t *terminal.Terminal) *cobra.Command {
	var (
		linux        bool
		windows      bool
		instanceType string
		lifetime     int
		token        string
	)

	cmd := &cobra.Command{
		Use:                   "start-host",
		DisableFlagsInUseLine: true,
		Short:                 "Create a GPU build host",
		Long:                  startHostLong,
		Example:               startHostExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			osName, err := OSNameFromFlags(linux, windows)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			if !lo.Contains(instanceTypes, instanceType) {
				return breverrors.WrapAndTrace(fmt.Errorf("instance type must be one of %v", instanceTypes))
			}
			token, err = ResolveToken(token)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}

			spin := t.NewSpinner("Creating the instance...")
			client := rocket.NewClient(config.GlobalConfig.GetRocketAPIURL(), token)
			instance, err := client.CreateInstance(cmd.Context(), osName, instanceType, lifetime)
			spin.Stop()
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}

			t.Vprint(t.Green("Host '%s' is up at %s", instance.ID, instance.Address))
			t.Vprintf("Prepare it for building with: sisyphus prepare -H %s\n", instance.Address)
			return nil
		},
	}
	cmd.Flags().BoolVar(&linux, "linux", false, "create a Linux GPU instance")
	cmd.Flags().BoolVar(&windows, "windows", false, "create a Windows GPU instance")
	cmd.Flags().StringVarP(&instanceType, "instance-type", "t", "g4dn.4xlarge", "EC2 GPU instance type (g4dn.4xlarge, p3.2xlarge)")
	cmd.Flags().IntVar(&lifetime, "lifetime", 24, "hours before instance termination")
	cmd.Flags().StringVar(&token, "token", "", "GitHub token (defaults to GITHUB_TOKEN environment variable)")

	return cmd
}
