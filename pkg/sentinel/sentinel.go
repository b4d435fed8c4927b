// Package sentinel drives remote jobs whose entire state is encoded as
// marker files in the job's working directory: <name>.log once the job
// started, then exactly one of <name>.ready or <name>.failed when it
// finished. The job itself is opaque: it cannot be cancelled, paused, or
// signaled, only observed.
//
// Concurrent invocations against the same host and job directory are not
// coordinated; a second launch for the same job will race the first and
// corrupt its sentinels.
package sentinel

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
	"github.com/anaconda/sisyphus/pkg/remote"
)

// Status is the coarse state of a remote job.
type Status string

const (
	NotStarted Status = "Not started"
	Building   Status = "Building"
	Complete   Status = "Complete"
	Failed     Status = "Failed"
)

const (
	// DefaultPollInterval is how long Wait sleeps between status reads.
	DefaultPollInterval = 60 * time.Second
	// DefaultWatchInterval is how long Watch sleeps between log reads.
	DefaultWatchInterval = 10 * time.Second
	// maxWatchLines bounds one log read so a chatty build can't overflow a
	// single round trip.
	maxWatchLines = 1000
)

// Derive computes the job status from sentinel presence. It is a pure
// function: ready wins, then failed, then log. Both terminal sentinels at
// once is a data-integrity fault, never a valid state.
func Derive(hasLog, hasReady, hasFailed bool) (Status, error) {
	if hasReady && hasFailed {
		return Failed, breverrors.WrapAndTrace(fmt.Errorf("both ready and failed sentinels present, job state is corrupt"))
	}
	switch {
	case hasReady:
		return Complete, nil
	case hasFailed:
		return Failed, nil
	case hasLog:
		return Building, nil
	default:
		return NotStarted, nil
	}
}

// Controller launches sentinel jobs on one host session and observes them.
type Controller struct {
	session *remote.Session

	// PollInterval and WatchInterval are overridable for tests.
	PollInterval  time.Duration
	WatchInterval time.Duration
}

func NewController(s *remote.Session) *Controller {
	return &Controller{
		session:       s,
		PollInterval:  DefaultPollInterval,
		WatchInterval: DefaultWatchInterval,
	}
}

// LaunchCommand composes the single remote command that runs the payload
// with combined output redirected to the log, then drops the ready or failed
// sentinel depending on the payload's exit.
func (c *Controller) LaunchCommand(payload, jobDir, name string) string {
	logfile := c.session.Join(jobDir, name+".log")
	touch := fmt.Sprintf("%s %s", c.session.Commands().TouchVerb(), c.session.Join(jobDir, name+"."))
	return fmt.Sprintf("%s > %s 2>&1 && %sready || %sfailed", payload, logfile, touch, touch)
}

// Launch submits the composed command detached. There is no success signal
// from the submission; completion is observed through the sentinels alone.
func (c *Controller) Launch(payload, jobDir, name string) error {
	err := c.session.RunAsync(c.LaunchCommand(payload, jobDir, name))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Status reads the job directory and derives the job state. A missing job
// directory means the job was never started.
func (c *Controller) Status(jobDir, name string) (Status, error) {
	exists, err := c.session.Exists(jobDir)
	if err != nil {
		return NotStarted, breverrors.WrapAndTrace(err)
	}
	if !exists {
		return NotStarted, nil
	}
	entries, err := c.session.List(jobDir)
	if err != nil {
		return NotStarted, breverrors.WrapAndTrace(err)
	}
	var hasLog, hasReady, hasFailed bool
	for _, entry := range entries {
		switch entry {
		case name + ".log":
			hasLog = true
		case name + ".ready":
			hasReady = true
		case name + ".failed":
			hasFailed = true
		}
	}
	status, err := Derive(hasLog, hasReady, hasFailed)
	if err != nil {
		return status, breverrors.WrapAndTrace(err)
	}
	return status, nil
}

// Wait blocks until the job reaches a terminal state and reports whether it
// completed successfully. It polls indefinitely: there is no timeout and no
// way to cancel the remote job, only this wait (via ctx). The channel is
// proactively replaced before every retry because long-idle transports die
// silently.
func (c *Controller) Wait(ctx context.Context, jobDir, name string) (bool, error) {
	waitingToStart := false
	waitingToFinish := false
	for {
		status, err := c.Status(jobDir, name)
		if err != nil {
			return false, breverrors.WrapAndTrace(err)
		}
		switch status {
		case Complete:
			log.Info("Build complete")
			return true, nil
		case Failed:
			log.Error("Build failed")
			return false, nil
		case NotStarted:
			if !waitingToStart {
				log.Info("Waiting for build to start")
				waitingToStart = true
			}
		case Building:
			if waitingToStart {
				waitingToStart = false
			}
			if !waitingToFinish {
				log.Info("Waiting for build to finish")
				waitingToFinish = true
			}
		}
		if err := c.sleep(ctx, c.PollInterval); err != nil {
			return false, breverrors.WrapAndTrace(err)
		}
		if err := c.session.Reacquire(0); err != nil {
			return false, breverrors.WrapAndTrace(err)
		}
	}
}

// Watch streams the job log as it grows and returns once a terminal sentinel
// appears. A failed job is an error for the watcher's caller; the stream
// itself delivers at most maxWatchLines lines per tick, tracking how many
// lines were already delivered.
func (c *Controller) Watch(ctx context.Context, jobDir, name string) error {
	logfile := c.session.Join(jobDir, name+".log")
	linesRead := 0
	for {
		// Best-effort read: the log may not exist in the window between
		// submission and the payload's first write.
		out := c.session.RunQuiet(c.session.Commands().TailLog(logfile, linesRead, maxWatchLines))
		if out != "" {
			lines := strings.Split(out, "\n")
			for _, line := range lines {
				log.Info(line)
			}
			linesRead += len(lines)
		}

		ready, err := c.session.Exists(c.session.Join(jobDir, name+".ready"))
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if ready {
			log.Info("Build complete")
			return nil
		}
		failed, err := c.session.Exists(c.session.Join(jobDir, name+".failed"))
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if failed {
			return breverrors.WrapAndTrace(fmt.Errorf("build failed"))
		}

		if err := c.sleep(ctx, c.WatchInterval); err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if err := c.session.Reacquire(0); err != nil {
			return breverrors.WrapAndTrace(err)
		}
	}
}

// WaitForSentinel polls a bare sentinel pair (base + ".ready"/".failed")
// that lives outside a job directory, such as the environment bootstrap
// markers. Returns whether the ready sentinel appeared.
func (c *Controller) WaitForSentinel(ctx context.Context, base string, interval time.Duration) (bool, error) {
	for {
		ready, err := c.session.Exists(base + ".ready")
		if err != nil {
			return false, breverrors.WrapAndTrace(err)
		}
		if ready {
			return true, nil
		}
		failed, err := c.session.Exists(base + ".failed")
		if err != nil {
			return false, breverrors.WrapAndTrace(err)
		}
		if failed {
			return false, nil
		}
		if err := c.sleep(ctx, interval); err != nil {
			return false, breverrors.WrapAndTrace(err)
		}
		if err := c.session.Reacquire(0); err != nil {
			return false, breverrors.WrapAndTrace(err)
		}
	}
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
