package sentinel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anaconda/sisyphus/pkg/remote"
)

// fakeTransport answers scripted commands; unknown commands succeed with
// empty output.
type fakeTransport struct {
	responses map[string]string
	started   []string
}

func (f *fakeTransport) Run(cmd string) (string, error) {
	return f.responses[cmd], nil
}

func (f *fakeTransport) Start(cmd string) error {
	f.started = append(f.started, cmd)
	return nil
}

func (f *fakeTransport) Put(localPath, remotePath string) error { return nil }
func (f *fakeTransport) Get(remotePath, localPath string) error { return nil }
func (f *fakeTransport) Close() error                           { return nil }

func newLinuxController(t *testing.T, ch remote.Transport) *Controller {
	t.Helper()
	s, err := remote.NewSession("test-host", remote.Linux, func(u, addr string) (remote.Transport, error) {
		return ch, nil
	})
	require.NoError(t, err)
	c := NewController(s)
	c.PollInterval = time.Millisecond
	c.WatchInterval = time.Millisecond
	return c
}

func TestDerive(t *testing.T) {
	cases := []struct {
		hasLog, hasReady, hasFailed bool
		want                        Status
	}{
		{false, false, false, NotStarted},
		{true, false, false, Building},
		{true, true, false, Complete},
		{true, false, true, Failed},
		// ready wins even without a log; both imply the log exists but the
		// derivation must not depend on it
		{false, true, false, Complete},
		{false, false, true, Failed},
	}
	for _, c := range cases {
		got, err := Derive(c.hasLog, c.hasReady, c.hasFailed)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestDeriveIntegrityFault(t *testing.T) {
	_, err := Derive(true, true, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestLaunchCommand(t *testing.T) {
	c := newLinuxController(t, &fakeTransport{})
	cmd := c.LaunchCommand("conda build feedstock", "/tmp/sisyphus/foo", "build")
	assert.Equal(
		t,
		"conda build feedstock > /tmp/sisyphus/foo/build.log 2>&1 && touch /tmp/sisyphus/foo/build.ready || touch /tmp/sisyphus/foo/build.failed",
		cmd,
	)
}

func TestLaunchSubmitsDetached(t *testing.T) {
	ch := &fakeTransport{}
	c := newLinuxController(t, ch)
	require.NoError(t, c.Launch("sleep 1", "/tmp/sisyphus/foo", "build"))
	require.Len(t, ch.started, 1)
	assert.Contains(t, ch.started[0], "nohup sh -c")
	assert.Contains(t, ch.started[0], "build.ready")
}

func existsCmd(path string) string {
	return "if [[ -e '" + path + "' ]]; then echo Yes; fi"
}

func TestStatusLifecycle(t *testing.T) {
	jobDir := "/tmp/sisyphus/foo"
	ch := &fakeTransport{responses: map[string]string{}}
	c := newLinuxController(t, ch)

	// No prior state at all.
	status, err := c.Status(jobDir, "build")
	require.NoError(t, err)
	assert.Equal(t, NotStarted, status)

	// Job launched, log present, no terminal sentinel yet.
	ch.responses[existsCmd(jobDir)] = "Yes"
	ch.responses["ls -1A "+jobDir] = "build.log\nbuild\nconda_build_config.yaml"
	status, err = c.Status(jobDir, "build")
	require.NoError(t, err)
	assert.Equal(t, Building, status)

	// The remote job wrote its ready sentinel.
	ch.responses["ls -1A "+jobDir] = "build.log\nbuild.ready\nbuild"
	status, err = c.Status(jobDir, "build")
	require.NoError(t, err)
	assert.Equal(t, Complete, status)

	// wait returns success without further polling delay
	ok, err := c.Wait(context.Background(), jobDir, "build")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatusFailed(t *testing.T) {
	jobDir := "/tmp/sisyphus/foo"
	ch := &fakeTransport{responses: map[string]string{
		existsCmd(jobDir):  "Yes",
		"ls -1A " + jobDir: "build.log\nbuild.failed",
	}}
	c := newLinuxController(t, ch)
	status, err := c.Status(jobDir, "build")
	require.NoError(t, err)
	assert.Equal(t, Failed, status)

	ok, err := c.Wait(context.Background(), jobDir, "build")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatchStopsOnReady(t *testing.T) {
	jobDir := "/tmp/sisyphus/foo"
	ch := &fakeTransport{responses: map[string]string{
		`tail -n +1 "/tmp/sisyphus/foo/build.log" | tail -n 1000`: "line one\nline two",
		existsCmd(jobDir + "/build.ready"):                        "Yes",
	}}
	c := newLinuxController(t, ch)
	require.NoError(t, c.Watch(context.Background(), jobDir, "build"))
}

func TestWatchFailurePropagates(t *testing.T) {
	jobDir := "/tmp/sisyphus/foo"
	ch := &fakeTransport{responses: map[string]string{
		existsCmd(jobDir + "/build.failed"): "Yes",
	}}
	c := newLinuxController(t, ch)
	err := c.Watch(context.Background(), jobDir, "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")
}

func TestWaitForSentinel(t *testing.T) {
	ch := &fakeTransport{responses: map[string]string{
		existsCmd("/tmp/sisyphus/conda.ready"): "Yes",
	}}
	c := newLinuxController(t, ch)
	ok, err := c.WaitForSentinel(context.Background(), "/tmp/sisyphus/conda", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ch2 := &fakeTransport{responses: map[string]string{
		existsCmd("/tmp/sisyphus/cuda.failed"): "Yes",
	}}
	c2 := newLinuxController(t, ch2)
	ok, err = c2.WaitForSentinel(context.Background(), "/tmp/sisyphus/cuda", time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}
