// Package upload is for the upload command
package upload

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	uploadLong    = "Upload packages built on the remote host to a channel on anaconda.org"
	uploadExample = "sisyphus upload -H 198.51.100.7 -P libpng -C my-channel -t $ANACONDA_TOKEN"
)

func NewCmdUpload(t *terminal.Terminal) *cobra.Command {
	var (
		host    string
		pkg     string
		channel string
		token   string
	)

	cmd := &cobra.Command{
		Use:                   "upload",
		DisableFlagsInUseLine: true,
		Short:                 "Upload built packages to anaconda.org",
		Long:                  uploadLong,
		Example:               uploadExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			err = o.Upload(pkg, channel, token)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&pkg, "package", "P", "", "name of the package being built")
	cmd.Flags().StringVarP(&channel, "channel", "C", "", "target channel on anaconda.org to upload the packages")
	cmd.Flags().StringVarP(&token, "token", "t", "", "token for the target channel on anaconda.org")
	cmd.MarkFlagRequired("host")    //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("package") //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("channel") //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("token")   //nolint:errcheck,gosec // flag exists

	return cmd
}
