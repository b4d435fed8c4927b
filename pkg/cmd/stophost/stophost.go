// Package stophost is for the stop-host command
package stophost

import (
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/cmd/starthost"
	"github.com/anaconda/sisyphus/pkg/config"
	"github.com/anaconda/sisyphus/pkg/rocket"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	stopHostLong    = "Stop a GPU instance by ID or IP using rocket-platform"
	stopHostExample = "sisyphus stop-host 198.51.100.7"
)

func NewCmdStopHost(t *terminal.Terminal) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:                   "stop-host ID_OR_IP",
		DisableFlagsInUseLine: true,
		Short:                 "Stop a GPU build host",
		Long:                  stopHostLong,
		Example:               stopHostExample,
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := starthost.ResolveToken(token)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			client := rocket.NewClient(config.GlobalConfig.GetRocketAPIURL(), token)
			err = client.StopInstance(cmd.Context(), args[0])
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			t.Vprint(t.Green("Host '%s' is stopping", args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "GitHub token (defaults to GITHUB_TOKEN environment variable)")

	return cmd
}
