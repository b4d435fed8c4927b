// Package wait is for the wait command
package wait

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

func NewCmdWait(t *terminal.Terminal) *cobra.Command {
	var (
		host string
		pkg  string
	)

	cmd := &cobra.Command{
		Use:                   "wait",
		DisableFlagsInUseLine: true,
		Short:                 "Wait for the build to finish and set exit code based on result",
		Example:               "sisyphus wait -H 198.51.100.7 -P libpng",
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			ok, err := o.Wait(cmd.Context(), pkg)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			if !ok {
				return breverrors.WrapAndTrace(fmt.Errorf("build of '%s' failed", pkg))
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
