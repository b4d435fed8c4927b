// Package cmd is the entrypoint to the cli
package cmd

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/cmd/auto"
	buildcmd "github.com/anaconda/sisyphus/pkg/cmd/build"
	"github.com/anaconda/sisyphus/pkg/cmd/download"
	"github.com/anaconda/sisyphus/pkg/cmd/logs"
	"github.com/anaconda/sisyphus/pkg/cmd/prepare"
	"github.com/anaconda/sisyphus/pkg/cmd/starthost"
	"github.com/anaconda/sisyphus/pkg/cmd/status"
	"github.com/anaconda/sisyphus/pkg/cmd/stophost"
	"github.com/anaconda/sisyphus/pkg/cmd/transmute"
	"github.com/anaconda/sisyphus/pkg/cmd/upload"
	"github.com/anaconda/sisyphus/pkg/cmd/version"
	"github.com/anaconda/sisyphus/pkg/cmd/wait"
	"github.com/anaconda/sisyphus/pkg/cmd/watch"
	"github.com/anaconda/sisyphus/pkg/featureflag"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

func NewDefaultSisyphusCommand() *cobra.Command {
	cmd := NewSisyphusCommand(os.Stdin, os.Stdout, os.Stderr)
	return cmd
}

func NewSisyphusCommand(in io.Reader, out io.Writer, err io.Writer) *cobra.Command {
	t := terminal.New()
	var logLevel string

	cmds := &cobra.Command{
		Use:   "sisyphus",
		Short: "sisyphus builds conda packages on remote GPU hosts",
		Long: `
      sisyphus builds conda packages on remote Linux and Windows GPU hosts
      over ssh, then pulls the artifacts and logs back`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = featureflag.LoadFeatureFlags(".")
			return setupLogging(logLevel)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           runHelp,
	}
	cmds.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (error, warning, info, debug)")

	cmds.AddCommand(prepare.NewCmdPrepare(t))
	cmds.AddCommand(buildcmd.NewCmdBuild(t))
	cmds.AddCommand(watch.NewCmdWatch(t))
	cmds.AddCommand(status.NewCmdStatus(t))
	cmds.AddCommand(wait.NewCmdWait(t))
	cmds.AddCommand(logs.NewCmdLog(t))
	cmds.AddCommand(upload.NewCmdUpload(t))
	cmds.AddCommand(download.NewCmdDownload(t))
	cmds.AddCommand(transmute.NewCmdTransmute(t))
	cmds.AddCommand(starthost.NewCmdStartHost(t))
	cmds.AddCommand(stophost.NewCmdStopHost(t))
	cmds.AddCommand(auto.NewCmdAuto(t))
	cmds.AddCommand(version.NewCmdVersion(t))

	return cmds
}

// setupLogging maps the command-line level onto logrus. Only the level and
// the message are shown, except in debug mode where a timestamp helps
// correlate the remote command chatter.
func setupLogging(level string) error {
	if level == "warning" {
		level = "warn"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: lvl != log.DebugLevel,
		FullTimestamp:    lvl == log.DebugLevel,
	})
	return nil
}

func runHelp(cmd *cobra.Command, _ []string) {
	cmd.Help() //nolint:errcheck,gosec // command forwards its own errors
}
