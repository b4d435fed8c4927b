// Package auto is for the auto command, the whole build lifecycle in one shot
package auto

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/anaconda/sisyphus/pkg/build"
	"github.com/anaconda/sisyphus/pkg/cmd/starthost"
	"github.com/anaconda/sisyphus/pkg/config"
	"github.com/anaconda/sisyphus/pkg/files"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/rocket"
	"github.com/anaconda/sisyphus/pkg/terminal"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

var instanceTypes = []string{"g4dn.4xlarge", "p3.2xlarge"}

const (
	// A freshly created instance reports running before sshd is reachable,
	// so detection gets a few tries.
	detectAttempts = 10
	detectInterval = 15 * time.Second
)

var (
	autoLong    = "Create a build host if needed, build the package, and download the build log and artifacts"
	autoExample = "sisyphus auto libpng --linux"
)

type autoOptions struct {
	host          string
	branch        string
	destination   string
	linux         bool
	windows       bool
	doNotStopHost bool
	instanceType  string
	lifetime      int
	token         string
}

func NewCmdAuto(t *terminal.Terminal) *cobra.Command {
	opts := autoOptions{}

	cmd := &cobra.Command{
		Use:                   "auto PACKAGE",
		DisableFlagsInUseLine: true,
		Short:                 "Build a package end-to-end",
		Long:                  autoLong,
		Example:               autoExample,
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runAuto(cmd.Context(), args[0], opts)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "IP or FQDN of the build host")
	cmd.Flags().StringVarP(&opts.branch, "branch", "B", "", "branch to build from in the feedstock's repository")
	cmd.Flags().StringVarP(&opts.destination, "destination", "d", "", "destination directory for downloaded packages and logs")
	cmd.Flags().BoolVar(&opts.linux, "linux", false, "automatically create a Linux GPU instance")
	cmd.Flags().BoolVar(&opts.windows, "windows", false, "automatically create a Windows GPU instance")
	cmd.Flags().BoolVar(&opts.doNotStopHost, "do-not-stop-host", false, "do not stop the host at the end of the process")
	cmd.Flags().StringVarP(&opts.instanceType, "instance-type", "t", "g4dn.4xlarge", "EC2 GPU instance type (g4dn.4xlarge, p3.2xlarge)")
	cmd.Flags().IntVar(&opts.lifetime, "lifetime", 24, "hours before instance termination")
	cmd.Flags().StringVar(&opts.token, "token", "", "GitHub token (defaults to GITHUB_TOKEN environment variable)")

	return cmd
}

func runAuto(ctx context.Context, pkg string, opts autoOptions) error {
	fs := afero.NewOsFs()

	var client *rocket.Client
	addr := opts.host
	if opts.host == "" {
		osName, err := starthost.OSNameFromFlags(opts.linux, opts.windows)
		if err != nil {
			return breverrors.WrapAndTrace(fmt.Errorf("%s when no host is provided", err.Error()))
		}
		if !lo.Contains(instanceTypes, opts.instanceType) {
			return breverrors.WrapAndTrace(fmt.Errorf("instance type must be one of %v", instanceTypes))
		}
		opts.token, err = starthost.ResolveToken(opts.token)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		client = rocket.NewClient(config.GlobalConfig.GetRocketAPIURL(), opts.token)
		instance, err := client.CreateInstance(ctx, osName, opts.instanceType, opts.lifetime)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		addr = instance.Address
	} else if opts.linux || opts.windows {
		return breverrors.WrapAndTrace(fmt.Errorf("either --linux or --windows can't be specified when a host is provided"))
	}

	s, err := detectWithRetry(ctx, addr, opts.host == "")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	defer s.Close() //nolint:errcheck // best-effort teardown
	o := build.NewOrchestrator(s, fs)

	destination := opts.destination
	if destination == "" {
		destination, err = filepath.Abs(".")
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
	}
	// Pre-create the local directory for the log in case the build produces
	// no artifacts and download never creates it.
	localPkgdir := filepath.Join(destination, pkg, s.Commands().ArchTag())
	err = files.RemoveAllIfExists(fs, localPkgdir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = files.EnsureDir(fs, localPkgdir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	err = o.Build(ctx, pkg, opts.branch)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.Info("Build started, you can watch it live in another terminal with:")
	log.Infof("    sisyphus watch -H %s -P %s", addr, pkg)

	buildOK, err := o.Wait(ctx, pkg)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	err = o.Download(pkg, destination, false)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	content, err := o.Log(ctx, pkg, false)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = files.WriteString(fs, filepath.Join(localPkgdir, "build.log"), content)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	if buildOK {
		log.Infof("Build successful, artifacts and log are in %s", localPkgdir)
		switch {
		case opts.host != "":
			log.Info("A host was specified manually, so we won't stop it automatically")
		case opts.doNotStopHost:
			log.Info("Not stopping the host, as requested")
		default:
			err = client.StopInstance(ctx, addr)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		}
	} else {
		log.Error("Build failed, you can ssh onto the host with:")
		log.Errorf("    ssh %s@%s", s.Commands().User(), addr)
		log.Errorf("The work directory is at %s", s.Path(pkg))
	}

	log.Warn("Please don't forget to stop the instance once you're done with it:")
	log.Warnf("    sisyphus stop-host %s", addr)
	return nil
}

// detectWithRetry probes the host, retrying for a while when the host was
// just created and its sshd may not be up yet.
func detectWithRetry(ctx context.Context, addr string, fresh bool) (*remote.Session, error) {
	attempts := 1
	if fresh {
		attempts = detectAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, breverrors.WrapAndTrace(ctx.Err())
			case <-time.After(detectInterval):
			}
		}
		s, err := remote.Detect(addr)
		if err == nil {
			return s, nil
		}
		lastErr = err
		log.Debugf("Host '%s' not reachable yet: %s", addr, err)
	}
	return nil, breverrors.WrapAndTrace(lastErr)
}
