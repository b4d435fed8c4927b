// Package build is the orchestration façade: it prepares a host for conda
// builds, ships the feedstock payload, launches the build as a sentinel job,
// and exposes the follow-up verbs (watch, wait, log, upload, download).
package build

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/anaconda/sisyphus/pkg/artifact"
	breverrors "github.com/anaconda/sisyphus/pkg/errors"
	"github.com/anaconda/sisyphus/pkg/remote"
	"github.com/anaconda/sisyphus/pkg/sentinel"
)

const (
	condaPackages = "conda-build distro-tooling::anaconda-linter git anaconda-client conda-package-handling"
	buildOptions  = "--error-overlinking -c ai-staging"

	// Activate prefixes every command that must run inside the build
	// environment.
	Activate = "conda activate sisyphus &&"

	// The CUDA installers run much longer than the conda bootstrap, so their
	// sentinels are polled less often.
	prepareWatchInterval = 10 * time.Second
	cudaWatchInterval    = 30 * time.Second
)

// Orchestrator drives the full build lifecycle against one host session.
type Orchestrator struct {
	session   *remote.Session
	fs        afero.Fs
	sentinels *sentinel.Controller
	packager  *artifact.Packager
}

func NewOrchestrator(s *remote.Session, fs afero.Fs) *Orchestrator {
	return &Orchestrator{
		session:   s,
		fs:        fs,
		sentinels: sentinel.NewController(s),
		packager:  artifact.NewPackager(s, fs, Activate),
	}
}

func (o *Orchestrator) Session() *remote.Session { return o.session }

// Prepare sets the host up for building. The conda bootstrap runs as a
// sentinel job; when the environment already exists the ready sentinel is
// dropped directly so that a later watch returns immediately. Windows hosts
// additionally get the CUDA driver installed, once.
func (o *Orchestrator) Prepare() error {
	err := o.session.Mkdir(o.session.SessionDir())
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	out, err := o.session.Run("conda env list")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	found := false
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "sisyphus ") {
			found = true
			break
		}
	}
	touch := fmt.Sprintf("%s %s", o.session.Commands().TouchVerb(), o.session.Path("conda."))
	if found {
		log.Info("Environment 'sisyphus' already exists")
		_, err = o.session.Run(touch + "ready")
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
	} else {
		err = o.sentinels.Launch("conda create -y -n sisyphus "+condaPackages, o.session.SessionDir(), "conda")
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		log.Info("Environment 'sisyphus' is being created")
	}

	if o.session.Kind() == remote.Windows {
		err = o.prepareCuda()
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
	}
	return nil
}

// prepareCuda launches the CUDA driver and toolkit installers as one chained
// sentinel job. The install logs double as the already-ran marker: their
// presence means an install finished or is still underway, and the installers
// are not safe to run twice.
func (o *Orchestrator) prepareCuda() error {
	for _, logName := range []string{"cuda_driver.log", "cuda_12.3.0.log"} {
		exists, err := o.session.Exists(o.session.Path(logName))
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if exists {
			log.Info("CUDA is already installed or being installed")
			return nil
		}
	}

	// Separate powershell calls chained from cmd; the && operator doesn't
	// exist in the powershell version shipped on the build images.
	start := "powershell -ExecutionPolicy ByPass -File \\prefect\\install_"
	middle := fmt.Sprintf(".ps1 > %s\\", o.session.SessionDir())
	end := ".log 2>&1"
	cudaDriver := start + "cuda_driver" + middle + "cuda_driver" + end
	cudaToolkit := start + "cuda_12.3.0" + middle + "cuda_12.3.0" + end
	touch := fmt.Sprintf("%s %s", o.session.Commands().TouchVerb(), o.session.Path("cuda."))
	err := o.session.RunAsync(fmt.Sprintf("%s && %s && %sready || %sfailed", cudaDriver, cudaToolkit, touch, touch))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.Info("CUDA is being installed")
	return nil
}

// WatchPrepare blocks until the bootstrap jobs launched by Prepare reach a
// terminal sentinel. A failure doesn't short-circuit: on Windows the CUDA
// wait still runs so both outcomes get reported before the error surfaces.
func (o *Orchestrator) WatchPrepare(ctx context.Context) error {
	failed := false

	log.Info("Waiting for Conda setup to finish")
	ok, err := o.sentinels.WaitForSentinel(ctx, o.session.Path("conda"), prepareWatchInterval)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if ok {
		log.Info("Conda is ready")
	} else {
		log.Warn("Conda setup failed")
		failed = true
	}

	if o.session.Kind() == remote.Windows {
		log.Info("Waiting for CUDA installation to finish")
		ok, err = o.sentinels.WaitForSentinel(ctx, o.session.Path("cuda"), cudaWatchInterval)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if ok {
			log.Info("CUDA is ready")
		} else {
			log.Warn("CUDA installation failed")
			failed = true
		}
	}

	if failed {
		return breverrors.WrapAndTrace(fmt.Errorf("host preparation failed"))
	}
	err = o.session.Reacquire(0)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Build prepares the host, ships the feedstock payload, and launches the
// conda build as a sentinel job. It returns as soon as the build is running;
// watching and waiting are separate verbs.
func (o *Orchestrator) Build(ctx context.Context, pkg, branch string) error {
	workdir := o.session.Path(pkg)

	err := o.Prepare()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	payload := NewPayload(pkg, branch, o.fs)
	err = payload.Upload(o.session)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	tarPath := o.session.Path(payload.TarName)

	// Start from a blank slate, untar the payload, drop the transport tar.
	err = o.session.Remove(workdir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = o.session.Untar(tarPath, workdir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = o.session.Remove(tarPath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.Info("Data ready on host")

	err = o.WatchPrepare(ctx)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	builddir := o.session.Join(workdir, "build")
	cbc := o.session.Join(workdir, "conda_build_config.yaml")
	feedstock := o.session.Join(workdir, "feedstock")
	err = o.session.Mkdir(builddir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	cmd := fmt.Sprintf("%s conda build %s -e %s --croot=%s %s", Activate, buildOptions, cbc, builddir, feedstock)
	err = o.sentinels.Launch(cmd, workdir, "build")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.Info("Build is starting")
	return nil
}

// WatchBuild streams the build log until the job finishes.
func (o *Orchestrator) WatchBuild(ctx context.Context, pkg string) error {
	err := o.sentinels.Watch(ctx, o.session.Path(pkg), "build")
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Status reports the build state for a package.
func (o *Orchestrator) Status(pkg string) (sentinel.Status, error) {
	status, err := o.sentinels.Status(o.session.Path(pkg), "build")
	if err != nil {
		return status, breverrors.WrapAndTrace(err)
	}
	return status, nil
}

// Wait blocks until the build finishes and reports whether it succeeded.
func (o *Orchestrator) Wait(ctx context.Context, pkg string) (bool, error) {
	ok, err := o.sentinels.Wait(ctx, o.session.Path(pkg), "build")
	if err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	return ok, nil
}

// Log returns the full build log. With wait set it first blocks until the
// build finishes; the log is returned either way, success or failure.
func (o *Orchestrator) Log(ctx context.Context, pkg string, wait bool) (string, error) {
	if wait {
		_, err := o.Wait(ctx, pkg)
		if err != nil {
			return "", breverrors.WrapAndTrace(err)
		}
	}
	log.Info("Downloading the build log")
	logfile := o.session.Path(pkg, "build.log")
	out, err := o.session.Run(fmt.Sprintf("%s %s", o.session.Commands().CatVerb(), logfile))
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	err = o.session.Reacquire(0)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return out, nil
}

// Upload pushes the built .tar.bz2 artifacts to a channel on anaconda.org.
func (o *Orchestrator) Upload(pkg, channel, token string) error {
	pkgdir := o.session.Path(pkg, "build", o.session.Commands().ArchTag())
	log.Infof("Uploading packages in: %s", pkgdir)
	log.Infof("To channel: %s", channel)
	_, err := o.session.Run(fmt.Sprintf(
		"%s anaconda -t %s upload -c %s --force %s%s*.tar.bz2",
		Activate, token, channel, pkgdir, o.session.Commands().Separator(),
	))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.Info("Done")
	err = o.session.Reacquire(0)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Download fetches the build artifacts to a local directory.
func (o *Orchestrator) Download(pkg, destination string, full bool) error {
	err := o.packager.Download(pkg, destination, full)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Transmute converts artifacts between the two conda archive formats.
func (o *Orchestrator) Transmute(pkg string) error {
	err := o.packager.Transmute(pkg)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}
