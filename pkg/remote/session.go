// Package remote owns everything that talks to the build host: the SSH
// channel, the per-OS command translation, and the host session built on both.
package remote

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

const sessionDirName = "sisyphus"

// Session represents one addressed remote machine for the lifetime of a CLI
// invocation. The OS kind is fixed once at detection and never changes; all
// path and command generation after that is a pure function of it.
//
// The session exclusively owns its Transport and recreates it on demand; no
// caller may cache the Transport across a suspension point.
type Session struct {
	Addr string

	cmds       CommandSet
	dial       Dialer
	ch         Transport
	sessionDir string
}

// Detect probes the host to figure out its OS family and returns a ready
// session. Probing is ordered and short-circuits: only one of the two
// user/OS combinations can succeed on a real host, so this doubles as a
// reachability check. Any probe failure (refused, timeout, auth, nonzero
// exit) is treated identically.
func Detect(addr string) (*Session, error) {
	s, err := DetectWithDialer(addr, DialSSH)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return s, nil
}

func DetectWithDialer(addr string, dial Dialer) (*Session, error) {
	for _, kind := range []Kind{Linux, Windows} {
		cmds := CommandsFor(kind)
		log.Debugf("Attempting to connect to '%s' assuming it's %s", addr, kind)
		ch, err := dial(cmds.User(), addr)
		if err != nil {
			log.Debugf("Couldn't connect to host '%s': %s", addr, err)
			continue
		}
		out, err := ch.Run(cmds.Probe())
		if err != nil {
			log.Debugf("Host '%s' isn't %s: %s", addr, kind, err)
			_ = ch.Close()
			continue
		}
		log.Debug(out)
		log.Infof("'%s' is a %s host", addr, kind)

		s := &Session{
			Addr:       addr,
			cmds:       cmds,
			dial:       dial,
			ch:         ch,
			sessionDir: PathJoin(cmds.Separator(), cmds.TopDir(), sessionDirName),
		}
		err = s.init()
		if err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
		return s, nil
	}
	return nil, breverrors.WrapAndTrace(&breverrors.DetectionError{Host: addr})
}

// NewSession builds a session with a known OS kind, skipping the detection
// probes and host initialization. Used when the kind was established out of
// band.
func NewSession(addr string, kind Kind, dial Dialer) (*Session, error) {
	cmds := CommandsFor(kind)
	ch, err := dial(cmds.User(), addr)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return &Session{
		Addr:       addr,
		cmds:       cmds,
		dial:       dial,
		ch:         ch,
		sessionDir: PathJoin(cmds.Separator(), cmds.TopDir(), sessionDirName),
	}, nil
}

func (s *Session) init() error {
	// Without shell integration no later conda command would work, so a
	// failure here is fatal.
	_, err := s.Run(s.cmds.Init())
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = s.Mkdir(s.sessionDir)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (s *Session) Commands() CommandSet { return s.cmds }
func (s *Session) Kind() Kind           { return s.cmds.Kind() }
func (s *Session) SessionDir() string   { return s.sessionDir }

// Path builds a path on the host under the session directory.
func (s *Session) Path(paths ...string) string {
	return PathJoin(s.cmds.Separator(), append([]string{s.sessionDir}, paths...)...)
}

// Join joins host paths with the host separator.
func (s *Session) Join(paths ...string) string {
	return PathJoin(s.cmds.Separator(), paths...)
}

// Run executes a command over the current channel, logging output at debug
// level. A failure is an error to propagate; commands where failure is
// acceptable go through RunQuiet instead.
func (s *Session) Run(cmd string) (string, error) {
	log.Debugf("Running '%s'", cmd)
	out, err := s.ch.Run(cmd)
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	for _, line := range strings.Split(out, "\n") {
		log.Debug(line)
	}
	return out, nil
}

// RunQuiet is best-effort: failures are logged and swallowed, for speculative
// cleanup commands.
func (s *Session) RunQuiet(cmd string) string {
	out, err := s.Run(cmd)
	if err != nil {
		log.Debugf("Ignoring failure of '%s': %s", cmd, err)
	}
	return out
}

// RunAsync launches a command detached in the background. There is no direct
// success or failure signal from the submission beyond the remote shell
// being reachable; completion is observed via sentinel files only.
func (s *Session) RunAsync(cmd string) error {
	wrapped := s.cmds.Background(cmd)
	log.Debugf("Running asynchronously '%s'", wrapped)
	err := s.ch.Start(wrapped)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Exists checks if a remote file or directory exists. Remote state is always
// re-queried live; a background job may be writing its own sentinel files
// between calls.
func (s *Session) Exists(path string) (bool, error) {
	out, err := s.Run(s.cmds.Exists(path))
	if err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	if out == existsMarker {
		log.Debugf("'%s' exists", path)
		return true, nil
	}
	log.Debugf("'%s' doesn't exist", path)
	return false, nil
}

// IsDir checks if a remote path is a directory.
func (s *Session) IsDir(path string) (bool, error) {
	out, err := s.Run(s.cmds.IsDir(path))
	if err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	return out == existsMarker, nil
}

// Mkdir creates a remote directory recursively. It is a no-op when the
// directory already exists; a name collision with an existing file is
// unrecoverable.
func (s *Session) Mkdir(path string) error {
	exists, err := s.Exists(path)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if exists {
		isDir, err := s.IsDir(path)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if isDir {
			log.Debugf("Directory '%s' already exists", path)
			return nil
		}
		return breverrors.WrapAndTrace(fmt.Errorf("'%s' already exists and is a file, can't create directory", path))
	}
	_, err = s.Run(s.cmds.Mkdir(path))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// List returns the entry names of a remote directory, one per line,
// non-recursive.
func (s *Session) List(path string) ([]string, error) {
	out, err := s.Run(s.cmds.List(path))
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	var entries []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// Remove deletes a remote file or directory, tolerating its absence. Windows
// branches by target kind because its delete verbs differ.
func (s *Session) Remove(path string) error {
	exists, err := s.Exists(path)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !exists {
		return nil
	}
	isDir, err := s.IsDir(path)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	cmd := s.cmds.RemoveFile(path)
	if isDir {
		cmd = s.cmds.RemoveDir(path)
	}
	_, err = s.Run(cmd)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Untar extracts a remote archive into a remote directory, creating the
// destination first.
func (s *Session) Untar(archive, dest string) error {
	err := s.Mkdir(dest)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	_, err = s.Run(s.cmds.ExtractTar(archive, dest))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Put uploads a local file. The transfer layer won't handle backslashes or
// volume names in remote paths, so Windows paths are normalized first.
func (s *Session) Put(localPath, remotePath string) error {
	log.Debugf("Uploading '%s' to '%s'", localPath, remotePath)
	err := s.ch.Put(localPath, s.transferPath(remotePath))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Get downloads a remote file.
func (s *Session) Get(remotePath, localPath string) error {
	log.Debugf("Downloading '%s' to '%s'", remotePath, localPath)
	err := s.ch.Get(s.transferPath(remotePath), localPath)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func (s *Session) transferPath(path string) string {
	if s.cmds.Kind() == Windows {
		return strings.ReplaceAll(path, "\\", "/")
	}
	return path
}

// Reacquire closes the channel and opens a fresh one after optionally waiting
// for a while. Long-idle channels die silently with no error raised at the
// time of death, so anything spanning a long wall-clock gap assumes the
// transport is already dead and replaces it up front.
func (s *Session) Reacquire(wait time.Duration) error {
	_ = s.ch.Close()
	time.Sleep(wait)
	ch, err := s.dial(s.cmds.User(), s.Addr)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	s.ch = ch
	return nil
}

func (s *Session) Close() error {
	err := s.ch.Close()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}
