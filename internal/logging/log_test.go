package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerbosityFiltersIndependently(t *testing.T) {
	var console, file bytes.Buffer
	l := New(LevelError, LevelDebug)
	l.console = &console
	l.file = &file

	l.Debug("debug detail")
	l.Error("boom")

	require.NotContains(t, console.String(), "debug detail", "console filtered above error")
	require.Contains(t, console.String(), "boom")
	require.Contains(t, file.String(), "debug detail", "file verbosity is debug")
	require.Contains(t, file.String(), "boom")
}

func TestWarningsAlwaysReachConsole(t *testing.T) {
	var console bytes.Buffer
	l := New(LevelCrit, LevelCrit)
	l.console = &console

	l.Warn("heads up")
	require.Contains(t, console.String(), "heads up")
}

func TestStateLabel(t *testing.T) {
	var console bytes.Buffer
	l := New(LevelDebug, LevelDebug)
	l.console = &console

	l.Info("one")
	require.True(t, strings.Contains(console.String(), "[Startup]"))

	l.SetState(StateRunning)
	l.Info("two")
	require.True(t, strings.Contains(console.String(), "[Running]"))

	l.SetState(StateShutdown)
	l.Info("three")
	require.True(t, strings.Contains(console.String(), "[Shutdown]"))
}

func TestWarnOnceSuppressesRepeats(t *testing.T) {
	var console bytes.Buffer
	l := New(LevelDebug, LevelDebug)
	l.console = &console

	for i := 0; i < 5; i++ {
		l.WarnOnce("dup-key", "repeated condition")
	}
	require.Equal(t, 1, strings.Count(console.String(), "repeated condition"))
}
