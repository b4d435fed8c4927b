package remote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport answers scripted commands; unknown commands succeed with
// empty output, which reads as "doesn't exist" for existence tests.
type fakeTransport struct {
	responses map[string]string
	failures  map[string]error
	calls     []string
	started   []string
	closed    bool
}

func (f *fakeTransport) Run(cmd string) (string, error) {
	f.calls = append(f.calls, cmd)
	if err, ok := f.failures[cmd]; ok {
		return "", err
	}
	return f.responses[cmd], nil
}

func (f *fakeTransport) Start(cmd string) error {
	f.started = append(f.started, cmd)
	return nil
}

func (f *fakeTransport) Put(localPath, remotePath string) error { return nil }
func (f *fakeTransport) Get(remotePath, localPath string) error { return nil }

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func dialerFor(user string, ch Transport) Dialer {
	return func(u, addr string) (Transport, error) {
		if u != user {
			return nil, errors.New("connection refused")
		}
		return ch, nil
	}
}

func TestDetectLinux(t *testing.T) {
	ch := &fakeTransport{responses: map[string]string{
		"uname -a": "Linux build-host 6.1.0",
	}}
	s, err := DetectWithDialer("198.51.100.7", dialerFor("ec2-user", ch))
	require.NoError(t, err)
	assert.Equal(t, Linux, s.Kind())
	assert.Equal(t, "/tmp/sisyphus", s.SessionDir())
	// Detection also ran the conda shell integration and created the session dir.
	assert.Contains(t, ch.calls, "conda init")
	assert.Contains(t, ch.calls, "mkdir -p /tmp/sisyphus")
}

func TestDetectWindows(t *testing.T) {
	ch := &fakeTransport{responses: map[string]string{
		"ver":                               "Microsoft Windows [Version 10.0]",
		`if exist "\tmp\sisyphus" echo Yes`: "",
	}}
	s, err := DetectWithDialer("198.51.100.8", dialerFor("dev-admin", ch))
	require.NoError(t, err)
	assert.Equal(t, Windows, s.Kind())
	assert.Equal(t, `\tmp\sisyphus`, s.SessionDir())
	assert.Contains(t, ch.calls, `C:\miniconda3\Scripts\conda.exe init`)
}

func TestDetectProbeFailureFallsThrough(t *testing.T) {
	// The host accepts both users but only answers the Windows probe; a
	// nonzero probe exit must be treated like a refused connection.
	ch := &fakeTransport{
		responses: map[string]string{"ver": "Microsoft Windows [Version 10.0]"},
		failures:  map[string]error{"uname -a": errors.New("exited with 1")},
	}
	s, err := DetectWithDialer("198.51.100.9", func(u, addr string) (Transport, error) {
		return ch, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Windows, s.Kind())
}

func TestDetectNeither(t *testing.T) {
	dial := func(u, addr string) (Transport, error) {
		return nil, errors.New("connection timed out")
	}
	s, err := DetectWithDialer("203.0.113.1", dial)
	require.Error(t, err)
	assert.Nil(t, s)
}

func newLinuxSession(ch Transport) *Session {
	cmds := CommandsFor(Linux)
	return &Session{
		Addr:       "test-host",
		cmds:       cmds,
		dial:       dialerFor(cmds.User(), ch),
		ch:         ch,
		sessionDir: PathJoin(cmds.Separator(), cmds.TopDir(), sessionDirName),
	}
}

func TestMkdirIdempotent(t *testing.T) {
	ch := &fakeTransport{responses: map[string]string{
		"if [[ -e '/tmp/sisyphus/foo' ]]; then echo Yes; fi": "Yes",
		"if [[ -d '/tmp/sisyphus/foo' ]]; then echo Yes; fi": "Yes",
	}}
	s := newLinuxSession(ch)
	require.NoError(t, s.Mkdir("/tmp/sisyphus/foo"))
	require.NoError(t, s.Mkdir("/tmp/sisyphus/foo"))
	assert.NotContains(t, ch.calls, "mkdir -p /tmp/sisyphus/foo")
}

func TestMkdirCreatesWhenMissing(t *testing.T) {
	ch := &fakeTransport{}
	s := newLinuxSession(ch)
	require.NoError(t, s.Mkdir("/tmp/sisyphus/foo"))
	assert.Contains(t, ch.calls, "mkdir -p /tmp/sisyphus/foo")
}

func TestMkdirFileCollisionIsFatal(t *testing.T) {
	ch := &fakeTransport{responses: map[string]string{
		"if [[ -e '/tmp/sisyphus/foo' ]]; then echo Yes; fi": "Yes",
		// not a directory
	}}
	s := newLinuxSession(ch)
	err := s.Mkdir("/tmp/sisyphus/foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists and is a file")
}

func TestMkdirFileCollisionIsFatalOnWindows(t *testing.T) {
	cmds := CommandsFor(Windows)
	ch := &fakeTransport{responses: map[string]string{
		// The path exists but the directory test (trailing \*) stays silent.
		`if exist "\tmp\sisyphus\foo" echo Yes`: "Yes",
	}}
	s := &Session{
		Addr:       "test-host",
		cmds:       cmds,
		dial:       dialerFor(cmds.User(), ch),
		ch:         ch,
		sessionDir: PathJoin(cmds.Separator(), cmds.TopDir(), sessionDirName),
	}
	err := s.Mkdir(`\tmp\sisyphus\foo`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists and is a file")
	assert.NotContains(t, ch.calls, `mkdir "\tmp\sisyphus\foo"`)
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	ch := &fakeTransport{}
	s := newLinuxSession(ch)
	require.NoError(t, s.Remove("/tmp/sisyphus/nope"))
	assert.Len(t, ch.calls, 1) // only the existence test
}

func TestRemoveBranchesOnWindows(t *testing.T) {
	cmds := CommandsFor(Windows)
	ch := &fakeTransport{responses: map[string]string{
		`if exist "\tmp\sisyphus\d" echo Yes`:   "Yes",
		`if exist "\tmp\sisyphus\d\*" echo Yes`: "Yes",
		`if exist "\tmp\sisyphus\f" echo Yes`:   "Yes",
	}}
	s := &Session{
		Addr:       "test-host",
		cmds:       cmds,
		dial:       dialerFor(cmds.User(), ch),
		ch:         ch,
		sessionDir: PathJoin(cmds.Separator(), cmds.TopDir(), sessionDirName),
	}
	require.NoError(t, s.Remove(`\tmp\sisyphus\d`))
	assert.Contains(t, ch.calls, `rd /s /q "\tmp\sisyphus\d"`)
	require.NoError(t, s.Remove(`\tmp\sisyphus\f`))
	assert.Contains(t, ch.calls, `del "\tmp\sisyphus\f"`)
}

func TestListSplitsLines(t *testing.T) {
	ch := &fakeTransport{responses: map[string]string{
		"ls -1A /tmp/sisyphus/foo": "build.log\nbuild.ready\nbuild",
	}}
	s := newLinuxSession(ch)
	entries, err := s.List("/tmp/sisyphus/foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"build.log", "build.ready", "build"}, entries)
}

func TestRunAsyncWrapsInBackground(t *testing.T) {
	ch := &fakeTransport{}
	s := newLinuxSession(ch)
	require.NoError(t, s.RunAsync("sleep 5"))
	require.Len(t, ch.started, 1)
	assert.Contains(t, ch.started[0], "nohup sh -c")
	assert.Contains(t, ch.started[0], "sleep 5")
}

func TestReacquireReplacesChannel(t *testing.T) {
	old := &fakeTransport{}
	fresh := &fakeTransport{}
	first := true
	s := newLinuxSession(old)
	s.dial = func(u, addr string) (Transport, error) {
		if first {
			first = false
		}
		return fresh, nil
	}
	require.NoError(t, s.Reacquire(0))
	assert.True(t, old.closed)
	assert.Same(t, fresh, s.ch)
}
