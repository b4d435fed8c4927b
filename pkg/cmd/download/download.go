// Package download is for the download command
package download

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	downloadLong    = "Wait for the build to finish, then download the built packages from the remote host"
	downloadExample = "sisyphus download -H 198.51.100.7 -P libpng -d ./artifacts"
)

func NewCmdDownload(t *terminal.Terminal) *cobra.Command {
	var (
		host        string
		pkg         string
		destination string
		all         bool
	)

	cmd := &cobra.Command{
		Use:                   "download",
		DisableFlagsInUseLine: true,
		Short:                 "Download built packages from the remote host",
		Long:                  downloadLong,
		Example:               downloadExample,
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

			if destination == "" {
				destination, err = os.Getwd()
				if err != nil {
					return breverrors.WrapAndTrace(err)
				}
			}
			err = o.Download(pkg, destination, all)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&pkg, "package", "P", "", "name of the package being built")
	cmd.Flags().StringVarP(&destination, "destination", "d", "", "destination directory (defaults to the current directory)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "download the whole work directory for debugging")
	cmd.MarkFlagRequired("host")    //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("package") //nolint:errcheck,gosec // flag exists

	return cmd
}
