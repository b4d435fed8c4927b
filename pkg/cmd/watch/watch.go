// Package watch is for the watch command
package watch

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	watchLong    = "Watch a build in real-time if a package name is passed, otherwise watch the prepare process"
	watchExample = "sisyphus watch -H 198.51.100.7 -P libpng"
)

func NewCmdWatch(t *terminal.Terminal) *cobra.Command {
	var (
		host string
		pkg  string
	)

	cmd := &cobra.Command{
		Use:                   "watch",
		DisableFlagsInUseLine: true,
		Short:                 "Watch the build or prepare process",
		Long:                  watchLong,
		Example:               watchExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			if pkg != "" {
				err = o.WatchBuild(cmd.Context(), pkg)
			} else {
				err = o.WatchPrepare(cmd.Context())
			}
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&pkg, "package", "P", "", "name of the package being built")
	cmd.MarkFlagRequired("host") //nolint:errcheck,gosec // flag exists

	return cmd
}
