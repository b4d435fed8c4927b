// Package build is for the build command
package build

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	buildLong    = "Ship the feedstock to the host and start building the package there"
	buildExample = "sisyphus build -H 198.51.100.7 -P libpng"
)

func NewCmdBuild(t *terminal.Terminal) *cobra.Command {
	var (
		host    string
		pkg     string
		branch  string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:                   "build",
		DisableFlagsInUseLine: true,
		Short:                 "Build a package on the host",
		Long:                  buildLong,
		Example:               buildExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			err = o.Build(cmd.Context(), pkg, branch)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			if noWatch {
				log.Infof("You can watch the build with: sisyphus watch -H %s -P %s", host, pkg)
				return nil
			}
			err = o.WatchBuild(cmd.Context(), pkg)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&pkg, "package", "P", "", "name of the package to build")
	cmd.Flags().StringVarP(&branch, "branch", "B", "", "branch to build from in the feedstock's repository")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "don't watch the build process after it starts")
	cmd.MarkFlagRequired("host")    //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("package") //nolint:errcheck,gosec // flag exists

	return cmd
}
