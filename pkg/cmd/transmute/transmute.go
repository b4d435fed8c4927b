// Package transmute is for the transmute command
package transmute

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	transmuteLong    = "Wait for the build to finish, then convert .tar.bz2 packages to .conda packages and vice-versa"
	transmuteExample = "sisyphus transmute -H 198.51.100.7 -P libpng"
)

func NewCmdTransmute(t *terminal.Terminal) *cobra.Command {
	var (
		host string
		pkg  string
	)

	cmd := &cobra.Command{
		Use:                   "transmute",
		DisableFlagsInUseLine: true,
		Short:                 "Transmute built packages between archive formats",
		Long:                  transmuteLong,
		Example:               transmuteExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			_, err = o.Wait(cmd.Context(), pkg)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			err = o.Transmute(pkg)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&pkg, "package", "P", "", "name of the package being built")
	cmd.MarkFlagRequired("host")    //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("package") //nolint:errcheck,gosec // flag exists

	return cmd
}
