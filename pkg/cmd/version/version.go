// Package version holds the build-time version stamp
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/terminal"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func NewCmdVersion(t *terminal.Terminal) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "version",
		DisableFlagsInUseLine: true,
		Short:                 "Print the version of sisyphus",
		Args:                  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			t.Vprint(fmt.Sprintf("sisyphus %s", Version))
		},
	}
	return cmd
}
