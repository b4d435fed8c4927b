// Package status is for the status command
package status

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

func NewCmdStatus(t *terminal.Terminal) *cobra.Command {
	var (
		host string
		pkg  string
	)

	cmd := &cobra.Command{
		Use:                   "status",
		DisableFlagsInUseLine: true,
		Short:                 "Print the build status",
		Example:               "sisyphus status -H 198.51.100.7 -P libpng",
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			status, err := o.Status(pkg)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			t.Vprint(string(status))
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&pkg, "package", "P", "", "name of the package being built")
	cmd.MarkFlagRequired("host")    //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("package") //nolint:errcheck,gosec // flag exists

	return cmd
}
