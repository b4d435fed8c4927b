package cmd

import (
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistersAllVerbs(t *testing.T) {
	cmds := NewSisyphusCommand(os.Stdin, os.Stdout, os.Stderr)

	want := []string{
		"prepare", "build", "watch", "status", "wait", "log", "upload",
		"download", "transmute", "start-host", "stop-host", "auto", "version",
	}
	got := map[string]bool{}
	for _, c := range cmds.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "missing command %q", name)
	}
}

func TestSetupLogging(t *testing.T) {
	require.NoError(t, setupLogging("debug"))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	// click-style spelling maps onto logrus
	require.NoError(t, setupLogging("warning"))
	assert.Equal(t, log.WarnLevel, log.GetLevel())

	require.NoError(t, setupLogging("info"))
	assert.Equal(t, log.InfoLevel, log.GetLevel())

	require.Error(t, setupLogging("chatty"))
}
