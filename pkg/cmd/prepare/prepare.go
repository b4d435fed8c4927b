// Package prepare is for the prepare command
package prepare

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	prepareLong    = "Prepare the host for building: conda environment, work directories, and CUDA on Windows"
	prepareExample = "sisyphus prepare -H 198.51.100.7"
)

func NewCmdPrepare(t *terminal.Terminal) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:                   "prepare",
		DisableFlagsInUseLine: true,
		Short:                 "Prepare the host for building",
		Long:                  prepareLong,
		Example:               prepareExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			err = o.Prepare()
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			err = o.WatchPrepare(cmd.Context())
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.MarkFlagRequired("host") //nolint:errcheck,gosec // flag exists

	return cmd
}
