// Package logs is for the log command
package logs

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var (
	logLong    = "Print the build log to standard output (does not update in real-time)"
	logExample = "sisyphus log -H 198.51.100.7 -P libpng"
)

func NewCmdLog(t *terminal.Terminal) *cobra.Command {
	var (
		host   string
		pkg    string
		noWait bool
	)

	cmd := &cobra.Command{
		Use:                   "log",
		Aliases:               []string{"logs"},
		DisableFlagsInUseLine: true,
		Short:                 "Print the build log",
		Long:                  logLong,
		Example:               logExample,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := remote.Detect(host)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			defer s.Close() //nolint:errcheck // best-effort teardown

			o := build.NewOrchestrator(s, afero.NewOsFs())
			content, err := o.Log(cmd.Context(), pkg, !noWait)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			t.Print(content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&pkg, "package", "P", "", "name of the package being built")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "don't wait for the build to finish before printing the log")
	cmd.MarkFlagRequired("host")    //nolint:errcheck,gosec // flag exists
	cmd.MarkFlagRequired("package") //nolint:errcheck,gosec // flag exists

	return cmd
}
